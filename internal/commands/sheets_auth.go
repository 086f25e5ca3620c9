package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"finanzas/internal/cli"
	"finanzas/internal/config"
	"finanzas/internal/report/sheets"
)

func newSheetsAuthCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize report export with a Google user account and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			secret, err := cfg.OAuthClientSecret()
			if err != nil {
				return err
			}
			oc, err := sheets.OAuthConfig(secret)
			if err != nil {
				return err
			}

			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			tok, err := sheets.Authorize(ctx, oc, cfg.OAuthRedirectPort, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := sheets.SaveToken(cfg.GoogleOAuthTokenFile, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", cfg.GoogleOAuthTokenFile)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser redirect")

	return cmd
}
