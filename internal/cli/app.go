package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finanzas/internal/amqp"
	"finanzas/internal/backend"
	"finanzas/internal/budget"
	"finanzas/internal/cache"
	"finanzas/internal/config"
	"finanzas/internal/connectivity"
	"finanzas/internal/log"
	"finanzas/internal/offline"
	"finanzas/internal/report"
	"finanzas/internal/report/sheets"
	"finanzas/internal/services"
)

// App is the wired component graph. Every command builds one and closes it.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Backend *backend.BackendResult

	Cache        *cache.Store
	CacheManager *cache.Manager
	Monitor      *connectivity.Monitor
	Queue        *offline.Queue
	Invalidator  *services.Invalidator
	// AMQP is nil when AMQP_URL is empty or the broker was unreachable.
	AMQP *amqp.Client

	Budgets      *budget.Manager
	Reports      *report.Generator
	Transactions *services.TransactionService
	Families     *services.FamilyService
	Stats        *services.StatsService
	// Exporter is nil unless a spreadsheet is configured.
	Exporter report.Exporter
}

// Build creates the backend and every service on top of it.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Backend: res}
	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger, data := a.Config, a.Logger, a.Backend.Backend

	a.Cache = cache.NewStore(cache.Options{
		MaxEntries:     cfg.CacheMaxEntries,
		MaxMemoryBytes: cfg.CacheMaxMemoryBytes(),
		DefaultTTL:     cfg.CacheDefaultTTL,
		Logger:         logger,
	})
	a.CacheManager = cache.NewManager(logger)
	a.CacheManager.Register(a.Cache)

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(amqp.Config{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			Queue:      cfg.AMQPQueue,
			InstanceID: cfg.InstanceID,
			Logger:     logger,
		})
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without cache fan-out", log.FieldError, err)
		} else {
			a.AMQP = client
		}
	}
	var publisher services.Publisher
	if a.AMQP != nil {
		publisher = a.AMQP
	}
	a.Invalidator = services.NewInvalidator(a.Cache, publisher, logger)

	a.Monitor = connectivity.New(connectivity.Options{
		Pinger:        data,
		ProbeInterval: cfg.ProbeInterval,
		Logger:        logger,
	})
	queue, err := offline.New(ctx, offline.Options{
		Store:        a.Backend.KV,
		Replayer:     offline.RemoteReplayer{Transactions: data, Families: data},
		Connectivity: a.Monitor,
		Logger:       logger,
		AfterApply:   a.Invalidator.AfterApply,
	})
	if err != nil {
		return fmt.Errorf("load offline queue: %w", err)
	}
	a.Queue = queue
	a.Monitor.SetDrainer(queue)

	a.Budgets, err = budget.NewManager(budget.Options{
		Budgets: data, Transactions: data, Cache: a.Cache, Logger: logger,
	})
	if err != nil {
		return err
	}
	a.Reports, err = report.NewGenerator(report.Options{
		Transactions: data, Budgets: a.Budgets, Cache: a.Cache, Logger: logger,
	})
	if err != nil {
		return err
	}
	a.Transactions = services.NewTransactionService(services.TransactionDeps{
		Data: data, Queue: queue, Connectivity: a.Monitor, Invalidator: a.Invalidator, Cache: a.Cache, Logger: logger,
	})
	a.Families = services.NewFamilyService(services.FamilyDeps{
		Data: data, Queue: queue, Connectivity: a.Monitor, Invalidator: a.Invalidator, Cache: a.Cache, Logger: logger,
	})
	a.Stats = services.NewStatsService(data, a.Cache)

	if cfg.GoogleSpreadsheetID != "" {
		sc := sheets.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleCredentialsJSON,
			CredentialsFile: cfg.GoogleCredentialsFile,
			OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
			Logger:          logger,
		}
		if cfg.HasOAuthClient() {
			if sc.OAuthClientJSON, err = cfg.OAuthClientSecret(); err != nil {
				return err
			}
		}
		exp, err := sheets.New(ctx, sc)
		if err != nil {
			return fmt.Errorf("initialize report export: %w", err)
		}
		a.Exporter = exp
	}
	return nil
}

// ReportTargets turns REPORT_USERS into scheduler targets. An entry of the
// form user:family reports on the family.
func (a *App) ReportTargets() []report.Target {
	out := make([]report.Target, 0, len(a.Config.ReportUsers))
	for _, entry := range a.Config.ReportUsers {
		user, family, _ := strings.Cut(entry, ":")
		if user != "" {
			out = append(out, report.Target{UserID: user, FamilyID: family})
		}
	}
	return out
}

// Close releases the broker connection and the backend.
func (a *App) Close() error {
	var errs []error
	if a.CacheManager != nil {
		a.CacheManager.Stop()
	}
	if a.AMQP != nil {
		if err := a.AMQP.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}
