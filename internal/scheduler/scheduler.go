package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/expander"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/reconciler"
)

type Expander interface {
	ExpandAll(ctx context.Context, horizonMonths int) (*expander.Result, error)
}

type Reconciler interface {
	ReconcileAll(ctx context.Context, window models.Window, authoritative bool) (*reconciler.Result, error)
}

type Options struct {
	// Schedule is a standard five-field cron expression.
	Schedule      string
	HorizonMonths int
	WindowDays    int
	Location      *time.Location
	Now           func() time.Time
	// StartDelay postpones the first run after Start.
	StartDelay time.Duration
}

type Scheduler struct {
	expander   Expander
	reconciler Reconciler
	schedule   cron.Schedule
	opts       Options
	notifyCh   chan struct{}
	mu         sync.Mutex // serializes runs
}

// Run holds the results of one expand and reconcile cycle.
type Run struct {
	Expand    *expander.Result
	Reconcile *reconciler.Result
}

func New(exp Expander, rec Reconciler, opts Options) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonMonths <= 0 {
		opts.HorizonMonths = 3
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 30
	}
	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", opts.Schedule, err)
	}
	return &Scheduler{
		expander:   exp,
		reconciler: rec,
		schedule:   sched,
		opts:       opts,
		notifyCh:   make(chan struct{}, 1),
	}, nil
}

// Notify triggers an immediate run. Non-blocking if a run is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Next returns the first scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.opts.Location))
}

// Start runs once after StartDelay, then on every scheduled tick or
// notification until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("Scheduler started schedule=%q", s.opts.Schedule)

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.opts.StartDelay):
	}
	s.tick(ctx)

	for {
		next := s.Next(s.opts.Now())
		timer := time.NewTimer(time.Until(next))
		log.Printf("Next scheduled run at %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Scheduler stopped")
			return
		case <-timer.C:
			s.tick(ctx)
		case <-s.notifyCh:
			timer.Stop()
			log.Println("Scheduler triggered by notification")
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("Failed to run sync cycle: %v", err)
	}
}

// RunOnce expands every active master and then pushes the upcoming window
// to the calendar without deleting unmatched remote events. A failing expand
// does not prevent the reconcile step.
func (s *Scheduler) RunOnce(ctx context.Context) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{}
	var expandErr error
	run.Expand, expandErr = s.expander.ExpandAll(ctx, s.opts.HorizonMonths)
	if expandErr != nil {
		log.Printf("Failed to expand masters: %v", expandErr)
	}
	if err := ctx.Err(); err != nil {
		return run, err
	}

	window := models.NewWindow(models.Today(s.opts.Now(), s.opts.Location), s.opts.WindowDays)
	res, err := s.reconciler.ReconcileAll(ctx, window, false)
	if err != nil {
		return run, fmt.Errorf("failed to reconcile %s: %w", window, err)
	}
	run.Reconcile = res
	if expandErr != nil {
		return run, fmt.Errorf("failed to expand masters: %w", expandErr)
	}
	return run, nil
}
