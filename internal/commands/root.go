package commands

import (
	"context"

	"github.com/spf13/cobra"

	"finanzas/internal/cli"
	"finanzas/internal/log"
)

// Version is set at build time with -ldflags "-X finanzas/internal/commands.Version=...".
var Version = "dev"

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "finanzas",
		Short:   "Personal and family finance service with offline write queueing",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newQueueCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newSheetsAuthCommand())

	return rootCmd
}

// withApp loads configuration, builds the component graph, runs fn and
// closes everything afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, app *cli.App) error) error {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg)
	app, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to release resources", log.FieldError, err)
		}
	}()
	return fn(ctx, app)
}
