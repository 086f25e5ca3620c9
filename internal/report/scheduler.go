package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finanzas/internal/log"
)

// Reports are generated at this hour of the day, in the clock's location.
const scheduleHour = 9

// Exporter publishes a generated report somewhere outside the process and
// returns a reference to where it landed.
type Exporter interface {
	Export(ctx context.Context, r Report) (string, error)
}

// Target is a report owner. FamilyID is empty for personal reports.
type Target struct {
	UserID   string
	FamilyID string
}

type SchedulerOptions struct {
	Generator *Generator
	Targets   []Target
	// Exporter is optional; without it reports are only generated and cached.
	Exporter Exporter
	Now      func() time.Time
	Logger   *log.Logger
}

// Scheduler generates weekly reports every Sunday and monthly reports on the
// first of each month.
type Scheduler struct {
	gen      *Generator
	targets  []Target
	exporter Exporter
	now      func() time.Time
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Generator == nil {
		return nil, errors.New("report: generator is required")
	}
	s := &Scheduler{
		gen:      opts.Generator,
		targets:  opts.Targets,
		exporter: opts.Exporter,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	s.logger = s.logger.WithComponent(log.ComponentReport)
	return s, nil
}

// NextWeekly returns the first Sunday 09:00 strictly after now.
func NextWeekly(now time.Time) time.Time {
	days := (7 - int(now.Weekday())) % 7
	next := time.Date(now.Year(), now.Month(), now.Day()+days, scheduleHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// NextMonthly returns the first 1st-of-month 09:00 strictly after now.
func NextMonthly(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), 1, scheduleHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// Start runs the schedule in the background until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("report scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	s.logger.InfoContext(ctx, "Report scheduler started", "targets", len(s.targets))
	return nil
}

// Stop waits for the loop, including a run in progress, to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	select {
	case <-s.doneCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "Report scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Report scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		now := s.now()
		weekly, monthly := NextWeekly(now), NextMonthly(now)
		next := weekly
		if monthly.Before(next) {
			next = monthly
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// Both schedules can fall on the same instant.
		if !weekly.After(next) {
			s.Run(ctx, Weekly)
		}
		if !monthly.After(next) {
			s.Run(ctx, Monthly)
		}
	}
}

// Run generates, and exports when configured, one report of the given period
// per target. It returns how many targets succeeded.
func (s *Scheduler) Run(ctx context.Context, p Period) int {
	ok := 0
	for _, t := range s.targets {
		r, err := s.gen.ForPeriod(ctx, p, t.UserID, t.FamilyID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Scheduled report failed",
				log.FieldOperation, log.OpGenerate, log.FieldUserID, t.UserID, log.FieldPeriod, string(p), log.FieldError, err)
			continue
		}
		if s.exporter != nil {
			ref, err := s.exporter.Export(ctx, r)
			if err != nil {
				s.logger.ErrorContext(ctx, "Scheduled report export failed",
					log.FieldOperation, log.OpExport, log.FieldUserID, t.UserID, log.FieldPeriod, string(p), log.FieldError, err)
				continue
			}
			s.logger.InfoContext(ctx, "Scheduled report exported",
				log.FieldUserID, t.UserID, log.FieldPeriod, string(p), "ref", ref)
		}
		ok++
	}
	return ok
}
