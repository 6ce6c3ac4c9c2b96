package expander

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/rrule"
)

// historySize is how many past occurrences are handed to the resolver.
const historySize = 5

// Store is the persistence the expander needs.
type Store interface {
	// ActiveMasters returns the recurring masters of active communities.
	ActiveMasters(ctx context.Context) ([]models.Event, error)
	GetRule(ctx context.Context, ruleID int64) (*models.RecurrenceRule, error)
	// LatestInstanceDate returns nil when the master has no instances yet.
	LatestInstanceDate(ctx context.Context, masterID int64) (*time.Time, error)
	// SlotTaken reports whether any event of the community, the master
	// included, already starts at slot.
	SlotTaken(ctx context.Context, slot models.SlotKey) (bool, error)
	// CreateInstance inserts ev and sets its EventID. It returns false when
	// the slot was taken concurrently.
	CreateInstance(ctx context.Context, ev *models.Event) (bool, error)
	// RecentDates returns up to limit dates of the master and its instances
	// before the given date, ascending.
	RecentDates(ctx context.Context, masterID int64, before time.Time, limit int) ([]time.Time, error)
}

type Options struct {
	HorizonMonths int
	Workers       int
	Location      *time.Location
	Now           func() time.Time
	DryRun        bool
}

type Expander struct {
	store Store
	clock *rrule.Clock
	opts  Options
}

func New(store Store, clock *rrule.Clock, opts Options) *Expander {
	if opts.HorizonMonths <= 0 {
		opts.HorizonMonths = 3
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Expander{store: store, clock: clock, opts: opts}
}

type Result struct {
	RunID   string             `json:"run_id"`
	Masters int                `json:"masters"`
	Created int                `json:"created"`
	Skipped int                `json:"skipped"` // slot already had an instance
	DryRun  bool               `json:"dry_run"`
	Errors  []models.ItemError `json:"errors,omitempty"`
}

func (r *Result) String() string {
	return fmt.Sprintf("run=%s masters=%d created=%d skipped=%d errors=%d dry_run=%t",
		r.RunID, r.Masters, r.Created, r.Skipped, len(r.Errors), r.DryRun)
}

// pass is the outcome for one master.
type pass struct {
	created int
	skipped int
	errs    []models.ItemError
}

// Expand materializes instances of master over the default horizon and
// returns how many were created. Slots that already exist are skipped.
// Individual insert failures do not stop the run; they are joined into the
// returned error.
func (e *Expander) Expand(ctx context.Context, master *models.Event) (int, error) {
	p, err := e.expand(ctx, master, e.opts.HorizonMonths)
	if err != nil {
		return p.created, err
	}
	if len(p.errs) > 0 {
		errs := make([]error, len(p.errs))
		for i := range p.errs {
			errs[i] = p.errs[i]
		}
		return p.created, errors.Join(errs...)
	}
	return p.created, nil
}

// ExpandAll expands every active master on a bounded worker pool. It fails
// only when the masters cannot be listed.
func (e *Expander) ExpandAll(ctx context.Context, horizonMonths int) (*Result, error) {
	masters, err := e.store.ActiveMasters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring masters: %w", err)
	}

	res := &Result{RunID: uuid.NewString(), Masters: len(masters), DryRun: e.opts.DryRun}
	log.Printf("Expanding %d masters run=%s horizon=%dmo", len(masters), res.RunID, horizonMonths)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := range masters {
		master := &masters[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := e.expand(gctx, master, horizonMonths)
			if err != nil {
				log.Printf("Failed to expand master %d: %v", master.EventID, err)
				p.errs = append(p.errs, models.ItemError{Ref: models.EventRef(master.EventID), Op: "expand", Err: err})
			}

			mu.Lock()
			defer mu.Unlock()
			res.Created += p.created
			res.Skipped += p.skipped
			res.Errors = append(res.Errors, p.errs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	log.Printf("Expansion finished %s", res)
	return res, nil
}

// Preview returns the dates rule would produce from baseDate without writing.
func (e *Expander) Preview(ctx context.Context, rule *models.RecurrenceRule, baseDate time.Time, months int, start models.TimeOfDay) ([]time.Time, error) {
	if months <= 0 {
		months = e.opts.HorizonMonths
	}
	return e.clock.Generate(ctx, rule, baseDate, months, rrule.Hints{StartTime: start})
}

func (e *Expander) expand(ctx context.Context, master *models.Event, horizonMonths int) (pass, error) {
	var p pass
	if !master.IsRecurringMaster || master.RecurrenceRuleID == nil {
		return p, &models.ValidationError{
			Field:   "event",
			Message: fmt.Sprintf("event %d is not a recurring master", master.EventID),
		}
	}

	rule, err := e.store.GetRule(ctx, *master.RecurrenceRuleID)
	if err != nil {
		return p, fmt.Errorf("failed to get rule %d: %w", *master.RecurrenceRuleID, err)
	}

	today := models.Today(e.opts.Now(), e.opts.Location)
	base, err := e.baseDate(ctx, master, today)
	if err != nil {
		return p, err
	}
	end := rrule.Cutoff(rule, today, horizonMonths)
	if base.After(end) {
		return p, nil
	}

	history, err := e.store.RecentDates(ctx, master.EventID, base, historySize)
	if err != nil {
		// History only improves resolver output.
		log.Printf("Failed to load history for master %d: %v", master.EventID, err)
	}

	dates, err := e.clock.Generate(ctx, rule, base, horizonMonths, rrule.Hints{
		StartTime: master.StartTime,
		History:   history,
	})
	if err != nil {
		return p, err
	}

	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		if d.Before(base) || d.After(end) {
			continue
		}

		ev := newInstance(master, d)
		exists, err := e.store.SlotTaken(ctx, ev.SlotKey())
		if err != nil {
			p.errs = append(p.errs, models.ItemError{Ref: models.EventRef(master.EventID), Op: "check_slot", Err: err})
			continue
		}
		if exists {
			p.skipped++
			continue
		}
		if e.opts.DryRun {
			log.Printf("Would create instance community=%d date=%s start=%s",
				ev.CommunityID, d.Format(models.DateLayout), ev.StartTime)
			p.created++
			continue
		}

		created, err := e.store.CreateInstance(ctx, ev)
		if err != nil {
			log.Printf("Failed to create instance for master %d on %s: %v", master.EventID, d.Format(models.DateLayout), err)
			p.errs = append(p.errs, models.ItemError{Ref: models.EventRef(master.EventID), Op: "create_instance", Err: err})
			continue
		}
		if !created {
			p.skipped++
			continue
		}
		p.created++
	}

	if p.created > 0 {
		log.Printf("Created %d instances for master %d (community %d)", p.created, master.EventID, master.CommunityID)
	}
	return p, nil
}

// baseDate is the day after the latest instance, or the master's own date,
// never earlier than today.
func (e *Expander) baseDate(ctx context.Context, master *models.Event, today time.Time) (time.Time, error) {
	latest, err := e.store.LatestInstanceDate(ctx, master.EventID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest instance of master %d: %w", master.EventID, err)
	}

	base := models.Date(master.Date)
	if latest != nil {
		base = models.Date(*latest).AddDate(0, 0, 1)
	}
	if base.Before(today) {
		base = today
	}
	return base, nil
}

func newInstance(master *models.Event, d time.Time) *models.Event {
	masterID := master.EventID
	duration := master.Duration
	if duration <= 0 {
		duration = models.DefaultDuration
	}
	return &models.Event{
		CommunityID:       master.CommunityID,
		Date:              d,
		StartTime:         master.StartTime,
		Duration:          duration,
		Weekday:           models.WeekdayOf(d),
		RecurringMasterID: &masterID,
	}
}
