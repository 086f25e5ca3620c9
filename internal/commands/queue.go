package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"finanzas/internal/cli"
	"finanzas/internal/offline"
)

func newQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the offline write queue",
	}

	cmd.AddCommand(
		queueSubcommand("stats", "Show queue counters and pending actions", runQueueStats),
		queueSubcommand("drain", "Replay queued actions against the data API", runQueueDrain),
		queueSubcommand("clear-failed", "Remove permanently failed actions", runQueueClearFailed),
	)

	return cmd
}

func queueSubcommand(use, short string, run func(ctx context.Context, w io.Writer, q *offline.Queue) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				return run(ctx, cmd.OutOrStdout(), app.Queue)
			})
		},
	}
}

func runQueueStats(_ context.Context, w io.Writer, q *offline.Queue) error {
	st := q.Stats()
	fmt.Fprintf(w, "pending: %d\nfailed:  %d\n", st.PendingCount, st.FailedCount)

	actions := q.Actions()
	if len(actions) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATE\tRETRIES\tQUEUED\tLAST ERROR")
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			a.ID, a.Kind(), a.State, a.RetryCount, humanize.Time(a.EnqueuedAt), a.LastError)
	}
	return tw.Flush()
}

func runQueueDrain(ctx context.Context, w io.Writer, q *offline.Queue) error {
	res := q.Drain(ctx)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write drain result: %w", err)
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d actions failed permanently", len(res.Failed))
	}
	return nil
}

func runQueueClearFailed(ctx context.Context, w io.Writer, q *offline.Queue) error {
	n, err := q.ClearFailed(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "removed %s failed actions\n", humanize.Comma(int64(n)))
	return nil
}
