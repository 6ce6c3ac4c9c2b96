package retention

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// Store is the local state a cleanup touches.
type Store interface {
	ActiveCommunities(ctx context.Context) ([]models.Community, error)
	// EventsFrom returns the community's events, masters included, dated on
	// or after fromDate.
	EventsFrom(ctx context.Context, communityID int64, fromDate time.Time) ([]models.Event, error)
	Rules(ctx context.Context, communityID int64) ([]models.RecurrenceRule, error)
	// DeleteFrom deletes, in one transaction, the community's events dated on
	// or after fromDate and, when deleteRules is set, its recurrence rules
	// after unlinking the masters that remain.
	DeleteFrom(ctx context.Context, communityID int64, fromDate time.Time, deleteRules bool) (events, rules int, err error)
}

type Calendar interface {
	List(ctx context.Context, timeMin, timeMax time.Time) ([]models.RemoteEvent, error)
	Delete(ctx context.Context, id string) error
}

// AmbiguityError is recorded when the summary fallback refuses to run because
// other active communities share the name.
type AmbiguityError struct {
	Name  string
	Count int
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("community name %q is shared by %d other active communities; remote search skipped", e.Name, e.Count)
}

type Options struct {
	Location *time.Location
	// WindowDays is the span of one fallback listing call.
	WindowDays int
	// Years is how far past fromDate the fallback search looks.
	Years int
}

// CleanupOptions selects what one cleanup does.
type CleanupOptions struct {
	// DeleteRules removes the community's recurrence rules.
	DeleteRules bool
	// Sweep forces the summary search. Without it the search runs only when
	// an instance had no remote id, a delete by id failed, or nothing local
	// was left to delete, as on a re-run.
	Sweep  bool
	DryRun bool
}

type Cleaner struct {
	store Store
	cal   Calendar
	opts  Options
}

func New(store Store, cal Calendar, opts Options) *Cleaner {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 180
	}
	if opts.Years <= 0 {
		opts.Years = 3
	}
	return &Cleaner{store: store, cal: cal, opts: opts}
}

type Result struct {
	RunID         string             `json:"run_id"`
	CommunityID   int64              `json:"community_id"`
	FromDate      time.Time          `json:"from_date"`
	LocalDeleted  int                `json:"local_deleted"`
	RulesDeleted  int                `json:"rules_deleted"`
	RemoteDeleted int                `json:"remote_deleted"`
	DryRun        bool               `json:"dry_run"`
	Errors        []models.ItemError `json:"errors,omitempty"`
}

func (r *Result) String() string {
	return fmt.Sprintf("run=%s community=%d from=%s local_deleted=%d rules_deleted=%d remote_deleted=%d errors=%d dry_run=%t",
		r.RunID, r.CommunityID, r.FromDate.Format(models.DateLayout), r.LocalDeleted, r.RulesDeleted, r.RemoteDeleted, len(r.Errors), r.DryRun)
}

func (r *Result) fail(ref, op string, err error) {
	log.Printf("Failed to %s %s: %v", op, ref, err)
	r.Errors = append(r.Errors, models.ItemError{Ref: ref, Op: op, Err: err})
}

// Cleanup deletes the community's local events from fromDate on and then
// best-effort deletes their remote counterparts. Remote failures are recorded
// in the result; only local failures are returned as errors.
func (c *Cleaner) Cleanup(ctx context.Context, community *models.Community, fromDate time.Time, opts CleanupOptions) (*Result, error) {
	from := models.Date(fromDate)
	res := &Result{RunID: uuid.NewString(), CommunityID: community.CommunityID, FromDate: from, DryRun: opts.DryRun}

	events, err := c.store.EventsFrom(ctx, community.CommunityID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of community %d: %w", community.CommunityID, err)
	}

	remoteIDs := make([]string, 0, len(events))
	missingIDs := 0
	for _, ev := range events {
		if ev.IsMirrored() {
			remoteIDs = append(remoteIDs, ev.RemoteEventID)
		} else if ev.IsInstance() {
			missingIDs++
		}
	}

	if opts.DryRun {
		res.LocalDeleted = len(events)
		if opts.DeleteRules {
			rules, err := c.store.Rules(ctx, community.CommunityID)
			if err != nil {
				return nil, fmt.Errorf("failed to list rules of community %d: %w", community.CommunityID, err)
			}
			res.RulesDeleted = len(rules)
		}
	} else {
		n, rules, err := c.store.DeleteFrom(ctx, community.CommunityID, from, opts.DeleteRules)
		if err != nil {
			return nil, fmt.Errorf("failed to delete events of community %d: %w", community.CommunityID, err)
		}
		res.LocalDeleted, res.RulesDeleted = n, rules
	}

	// seen holds every remote id already attempted, failed ones included.
	seen := make(map[string]bool, len(remoteIDs))
	failed := 0
	for _, id := range remoteIDs {
		if err := ctx.Err(); err != nil {
			res.fail(models.CommunityRef(community.CommunityID), "cleanup", err)
			return res, nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if !opts.DryRun {
			if err := c.cal.Delete(ctx, id); err != nil {
				res.fail(models.RemoteRef(id), "delete_remote", err)
				failed++
				continue
			}
		}
		res.RemoteDeleted++
	}

	if missingIDs > 0 || failed > 0 || len(events) == 0 || opts.Sweep {
		c.sweep(ctx, community, from, opts.DryRun, seen, res)
	}

	log.Printf("Cleanup finished %s", res)
	return res, nil
}

// sweep deletes remote events carrying the community's summary that start on
// or after from, scanning the search span chunk by chunk. It refuses to act
// when the name is not unique among active communities.
func (c *Cleaner) sweep(ctx context.Context, community *models.Community, from time.Time, dryRun bool, seen map[string]bool, res *Result) {
	name := community.CalendarSummary()
	ref := models.CommunityRef(community.CommunityID)

	active, err := c.store.ActiveCommunities(ctx)
	if err != nil {
		res.fail(ref, "list_communities", err)
		return
	}
	others := 0
	for i := range active {
		if active[i].CommunityID != community.CommunityID && active[i].CalendarSummary() == name {
			others++
		}
	}
	if others > 0 {
		res.fail(ref, "sweep_remote", &AmbiguityError{Name: name, Count: others})
		return
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, c.opts.Location)
	limit := start.AddDate(c.opts.Years, 0, 0)
	for chunk := start; chunk.Before(limit); chunk = chunk.AddDate(0, 0, c.opts.WindowDays) {
		if err := ctx.Err(); err != nil {
			res.fail(ref, "sweep_remote", err)
			return
		}
		end := chunk.AddDate(0, 0, c.opts.WindowDays)
		if end.After(limit) {
			end = limit
		}

		listed, err := c.cal.List(ctx, chunk, end)
		if err != nil {
			res.fail(ref, "list_remote", err)
			continue
		}
		for _, ev := range listed {
			if seen[ev.ID] || strings.TrimSpace(ev.Summary) != name || ev.Start.Before(start) {
				continue
			}
			if !dryRun {
				if err := c.cal.Delete(ctx, ev.ID); err != nil {
					res.fail(models.RemoteRef(ev.ID), "delete_remote", err)
					continue
				}
				log.Printf("Deleted remote event %s of %q found by summary at %s", ev.ID, name, ev.Start.Format(time.RFC3339))
			}
			seen[ev.ID] = true
			res.RemoteDeleted++
		}
	}
}
