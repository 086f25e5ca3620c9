package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"finanzas/internal/cli"
	"finanzas/internal/report"
)

type reportOptions struct {
	period   report.Period
	userID   string
	familyID string
	start    string
	end      string
	format   string
	export   bool
}

func newReportCommand() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report <weekly|monthly|yearly>",
		Short: "Generate a financial report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.period = report.Period(args[0])
			if !opts.period.Valid() {
				return fmt.Errorf("%w: %q", report.ErrInvalidPeriod, args[0])
			}
			if opts.format != "json" && opts.format != "csv" {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			return withApp(cmd.Context(), func(ctx context.Context, app *cli.App) error {
				return runReport(ctx, cmd.OutOrStdout(), app, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&opts.familyID, "family", "", "report on this family instead of the user alone")
	cmd.Flags().StringVar(&opts.start, "start", "", "range start, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.end, "end", "", "range end, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.format, "format", "json", "output format: json or csv")
	cmd.Flags().BoolVar(&opts.export, "export", false, "also append the report to the configured spreadsheet")

	return cmd
}

func runReport(ctx context.Context, w io.Writer, app *cli.App, opts reportOptions) error {
	rep, err := generateReport(ctx, app.Reports, opts)
	if err != nil {
		return err
	}

	if opts.export {
		if app.Exporter == nil {
			return errors.New("no spreadsheet configured for export")
		}
		ref, err := app.Exporter.Export(ctx, rep)
		if err != nil {
			return fmt.Errorf("export report: %w", err)
		}
		app.Logger.Info("Report exported", "range", ref)
	}

	if opts.format == "csv" {
		return report.WriteCSV(w, rep)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func generateReport(ctx context.Context, gen *report.Generator, opts reportOptions) (report.Report, error) {
	if opts.start == "" && opts.end == "" {
		return gen.ForPeriod(ctx, opts.period, opts.userID, opts.familyID)
	}
	req := report.Request{Period: opts.period, UserID: opts.userID, FamilyID: opts.familyID}
	var err error
	if req.Start, err = time.Parse(time.DateOnly, opts.start); err != nil {
		return report.Report{}, fmt.Errorf("invalid start: %w", err)
	}
	if req.End, err = time.Parse(time.DateOnly, opts.end); err != nil {
		return report.Report{}, fmt.Errorf("invalid end: %w", err)
	}
	// End is inclusive of the whole day.
	req.End = req.End.Add(24*time.Hour - time.Nanosecond)
	return gen.Generate(ctx, req)
}
