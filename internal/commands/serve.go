package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"finanzas/internal/cli"
	apphttp "finanzas/internal/http"
	"finanzas/internal/log"
	"finanzas/internal/report"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	var writeLimit int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with connectivity probing and cache maintenance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := cli.SignalContext(cmd.Context())
			defer stop()
			return withApp(ctx, func(ctx context.Context, app *cli.App) error {
				return runServe(ctx, app, writeLimit)
			})
		},
	}

	cmd.Flags().IntVar(&writeLimit, "write-limit", 60, "mutating requests per client IP and minute")

	return cmd
}

func runServe(ctx context.Context, app *cli.App, writeLimit int) error {
	cfg, logger := app.Config, app.Logger

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Budgets:      app.Budgets,
		Reports:      app.Reports,
		Transactions: app.Transactions,
		Families:     app.Families,
		Stats:        app.Stats,
		Queue:        app.Queue,
		Monitor:      app.Monitor,
		Cache:        app.Cache,
		Pinger:       app.Backend.Backend,
		CORSOrigins:  cfg.CORSOrigins,
		WriteLimit:   writeLimit,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	app.CacheManager.StartCleanup(cfg.CacheSweepInterval)
	if err := app.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("start connectivity monitor: %w", err)
	}

	var scheduler *report.Scheduler
	if cfg.ReportScheduleEnabled {
		scheduler, err = report.NewScheduler(report.SchedulerOptions{
			Generator: app.Reports,
			Targets:   app.ReportTargets(),
			Exporter:  app.Exporter,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start report scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting finanzas server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if app.AMQP != nil {
		g.Go(func() error {
			err := app.AMQP.ConsumeInvalidations(gctx, app.Invalidator.ApplyRemote)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume invalidations: %w", err)
			}
			return nil
		})
	}

	if len(cfg.ReportUsers) > 0 {
		g.Go(func() error {
			users := make([]string, 0, len(cfg.ReportUsers))
			for _, t := range app.ReportTargets() {
				users = append(users, t.UserID)
			}
			warmed := app.Budgets.Prewarm(gctx, users)
			logger.Info("Budget cache prewarmed", "users", warmed)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop report scheduler: %w", err))
			}
		}
		if err := app.Monitor.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop connectivity monitor: %w", err))
		}
		app.Monitor.WaitDrains()
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with errors", log.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
