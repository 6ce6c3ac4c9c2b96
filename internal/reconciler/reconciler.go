package reconciler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/gcal"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// Store is the local state the reconciler reads and links.
type Store interface {
	ActiveCommunities(ctx context.Context) ([]models.Community, error)
	// ListInstances returns the community's non-master events dated inside window.
	ListInstances(ctx context.Context, communityID int64, window models.Window) ([]models.Event, error)
	// SetRemoteEventID stores the remote link; an empty id clears it.
	SetRemoteEventID(ctx context.Context, eventID int64, remoteID string) error
}

// Calendar is the remote side, normally a *gcal.Gateway.
type Calendar interface {
	List(ctx context.Context, timeMin, timeMax time.Time) ([]models.RemoteEvent, error)
	Get(ctx context.Context, id string) (*models.RemoteEvent, error)
	Create(ctx context.Context, in models.RemoteEventInput) (*models.RemoteEvent, error)
	Update(ctx context.Context, id string, in models.RemoteEventInput) (*models.RemoteEvent, error)
	Delete(ctx context.Context, id string) error
}

type Options struct {
	Location *time.Location
	Workers  int
}

type Reconciler struct {
	store Store
	cal   Calendar
	opts  Options
}

func New(store Store, cal Calendar, opts Options) *Reconciler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Reconciler{store: store, cal: cal, opts: opts}
}

type Result struct {
	RunID         string             `json:"run_id"`
	Window        models.Window      `json:"window"`
	Authoritative bool               `json:"authoritative"`
	Communities   int                `json:"communities"`
	Created       int                `json:"created"`
	Updated       int                `json:"updated"`
	Adopted       int                `json:"adopted"`
	Unchanged     int                `json:"unchanged"`
	Cleared       int                `json:"cleared"` // local links to vanished remote events
	Deleted       int                `json:"deleted"` // orphans removed in authoritative mode
	Errors        []models.ItemError `json:"errors,omitempty"`
}

func (r *Result) String() string {
	return fmt.Sprintf("run=%s window=%s communities=%d created=%d updated=%d adopted=%d unchanged=%d cleared=%d deleted=%d errors=%d",
		r.RunID, r.Window, r.Communities, r.Created, r.Updated, r.Adopted, r.Unchanged, r.Cleared, r.Deleted, len(r.Errors))
}

// tally collects one community's outcome before it is merged into a Result.
type tally struct {
	created, updated, adopted, unchanged, cleared, deleted int
	errs                                                   []models.ItemError
}

func (t *tally) fail(ref, op string, err error) {
	log.Printf("Failed to %s %s: %v", op, ref, err)
	t.errs = append(t.errs, models.ItemError{Ref: ref, Op: op, Err: err})
}

func (r *Result) merge(t *tally) {
	r.Created += t.created
	r.Updated += t.updated
	r.Adopted += t.adopted
	r.Unchanged += t.unchanged
	r.Cleared += t.cleared
	r.Deleted += t.deleted
	r.Errors = append(r.Errors, t.errs...)
}

func newResult(window models.Window, authoritative bool) *Result {
	return &Result{RunID: uuid.NewString(), Window: window, Authoritative: authoritative}
}

// Reconcile converges the remote calendar to the community's local instances
// in window. Orphans carrying the community's summary are deleted only when
// authoritative is set, the pass had no errors and no other active community
// shares the name.
func (r *Reconciler) Reconcile(ctx context.Context, community *models.Community, window models.Window, authoritative bool) (*Result, error) {
	res := newResult(window, authoritative)
	res.Communities = 1

	snap, err := r.snapshot(ctx, window)
	if err != nil {
		t := &tally{}
		t.fail(models.CommunityRef(community.CommunityID), "list_remote", err)
		res.merge(t)
		return res, nil
	}

	t := &tally{}
	clean := r.pass(ctx, snap, community, window, t)

	if authoritative && clean && ctx.Err() == nil {
		summary := community.CalendarSummary()
		if n, err := r.activeWithSummary(ctx, summary); err != nil {
			t.fail(models.CommunityRef(community.CommunityID), "list_communities", err)
		} else if n > 1 {
			t.fail(models.CommunityRef(community.CommunityID), "delete_orphans",
				fmt.Errorf("summary %q is shared by %d active communities", summary, n))
		} else {
			r.deleteOrphans(ctx, snap, t, func(s string) bool { return s == summary })
		}
	}

	res.merge(t)
	log.Printf("Reconciled community %d: %s", community.CommunityID, res)
	return res, nil
}

// ReconcileAll reconciles every active community against a single listing of
// the window on a bounded worker pool. In authoritative mode every unclaimed
// remote event in the window is then deleted, except those whose summary
// belongs to a community whose pass recorded errors.
func (r *Reconciler) ReconcileAll(ctx context.Context, window models.Window, authoritative bool) (*Result, error) {
	communities, err := r.store.ActiveCommunities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active communities: %w", err)
	}

	res := newResult(window, authoritative)
	res.Communities = len(communities)
	log.Printf("Reconciling %d communities run=%s window=%s authoritative=%t", len(communities), res.RunID, window, authoritative)

	snap, err := r.snapshot(ctx, window)
	if err != nil {
		t := &tally{}
		t.fail("calendar", "list_remote", err)
		res.merge(t)
		return res, nil
	}

	var (
		mu    sync.Mutex
		dirty = make(map[string]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := range communities {
		community := &communities[i]
		g.Go(func() error {
			t := &tally{}
			clean := r.pass(gctx, snap, community, window, t)

			mu.Lock()
			defer mu.Unlock()
			res.merge(t)
			if !clean {
				dirty[community.CalendarSummary()] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	if authoritative && ctx.Err() == nil {
		t := &tally{}
		r.deleteOrphans(ctx, snap, t, func(s string) bool { return !dirty[s] })
		res.merge(t)
	}

	log.Printf("Reconciliation finished %s", res)
	return res, nil
}

// snapshot lists the remote events starting inside window.
func (r *Reconciler) snapshot(ctx context.Context, window models.Window) (*snapshot, error) {
	from, to := window.Bounds(r.opts.Location)
	listed, err := r.cal.List(ctx, from, to)
	if err != nil {
		return nil, err
	}

	// The listing also returns events that merely overlap the window.
	inside := listed[:0]
	for _, ev := range listed {
		if !ev.Start.Before(from) && ev.Start.Before(to) {
			inside = append(inside, ev)
		}
	}
	return newSnapshot(inside), nil
}

// pass syncs one community's instances. It reports whether every event
// succeeded. It stops between events when ctx is canceled.
func (r *Reconciler) pass(ctx context.Context, snap *snapshot, community *models.Community, window models.Window, t *tally) bool {
	events, err := r.store.ListInstances(ctx, community.CommunityID, window)
	if err != nil {
		t.fail(models.CommunityRef(community.CommunityID), "list_local", err)
		return false
	}

	before := len(t.errs)
	for i := range events {
		if err := ctx.Err(); err != nil {
			t.fail(models.CommunityRef(community.CommunityID), "reconcile", err)
			return false
		}
		r.syncEvent(ctx, snap, community, &events[i], t)
	}
	return len(t.errs) == before
}

func (r *Reconciler) syncEvent(ctx context.Context, snap *snapshot, community *models.Community, ev *models.Event, t *tally) {
	ref := models.EventRef(ev.EventID)
	in := r.input(community, ev)

	if ev.RemoteEventID != "" {
		remote, err := r.lookup(ctx, snap, ev.RemoteEventID)
		switch {
		case err != nil:
			t.fail(ref, "get_remote", err)
			return
		case remote == nil || !snap.claim(remote.ID, ev.EventID):
			// Gone remotely, or bound to another local event: relink below.
			if err := r.store.SetRemoteEventID(ctx, ev.EventID, ""); err != nil {
				t.fail(ref, "clear_remote_id", err)
				return
			}
			log.Printf("Cleared remote id %s of event %d", ev.RemoteEventID, ev.EventID)
			ev.RemoteEventID = ""
			t.cleared++
		default:
			if needsUpdate(remote, in) {
				if _, err := r.cal.Update(ctx, remote.ID, in); err != nil {
					t.fail(ref, "update", err)
					return
				}
				t.updated++
				return
			}
			t.unchanged++
			return
		}
	}

	if cand := snap.adopt(matchKey(in.Start, in.Summary), ev.EventID); cand != nil {
		if err := r.store.SetRemoteEventID(ctx, ev.EventID, cand.ID); err != nil {
			t.fail(ref, "adopt", err)
			return
		}
		log.Printf("Adopted remote event %s for event %d", cand.ID, ev.EventID)
		t.adopted++
		if needsUpdate(cand, in) {
			if _, err := r.cal.Update(ctx, cand.ID, in); err != nil {
				t.fail(ref, "update", err)
				return
			}
			t.updated++
		}
		return
	}

	created, err := r.cal.Create(ctx, in)
	if err != nil {
		t.fail(ref, "create", err)
		return
	}
	snap.claim(created.ID, ev.EventID)
	// If this write fails the next pass adopts the event by key.
	if err := r.store.SetRemoteEventID(ctx, ev.EventID, created.ID); err != nil {
		t.fail(ref, "store_remote_id", err)
		return
	}
	t.created++
}

// lookup finds id in the snapshot, confirming with Get before declaring it
// gone since listings may lag behind writes. Nil means it no longer exists.
func (r *Reconciler) lookup(ctx context.Context, snap *snapshot, id string) (*models.RemoteEvent, error) {
	if remote, ok := snap.byID[id]; ok {
		return remote, nil
	}
	remote, err := r.cal.Get(ctx, id)
	if gcal.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func (r *Reconciler) deleteOrphans(ctx context.Context, snap *snapshot, t *tally, deletable func(summary string) bool) {
	for _, ev := range snap.unclaimed() {
		if ctx.Err() != nil {
			return
		}
		if !deletable(strings.TrimSpace(ev.Summary)) {
			continue
		}
		if err := r.cal.Delete(ctx, ev.ID); err != nil {
			t.fail(models.RemoteRef(ev.ID), "delete_orphan", err)
			continue
		}
		log.Printf("Deleted orphan remote event %s (%s at %s)", ev.ID, ev.Summary, ev.Start.Format(time.RFC3339))
		t.deleted++
	}
}

func (r *Reconciler) activeWithSummary(ctx context.Context, summary string) (int, error) {
	communities, err := r.store.ActiveCommunities(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range communities {
		if communities[i].CalendarSummary() == summary {
			n++
		}
	}
	return n, nil
}

func (r *Reconciler) input(community *models.Community, ev *models.Event) models.RemoteEventInput {
	return models.RemoteEventInput{
		Summary:     community.CalendarSummary(),
		Description: Description(community, ev),
		Start:       ev.StartAt(r.opts.Location),
		End:         ev.EndAt(r.opts.Location),
		TimeZone:    r.opts.Location.String(),
	}
}

// needsUpdate reports drift of the matching key or the end time.
func needsUpdate(remote *models.RemoteEvent, in models.RemoteEventInput) bool {
	return matchKey(remote.Start, remote.Summary) != matchKey(in.Start, in.Summary) ||
		!sameMinute(remote.End, in.End)
}

// Description renders the remote event body.
func Description(community *models.Community, ev *models.Event) string {
	duration := ev.Duration
	if duration <= 0 {
		duration = models.DefaultDuration
	}

	lines := []string{
		"Community: " + community.CalendarSummary(),
		fmt.Sprintf("Date: %s %s", ev.Date.Format(models.DateLayout), ev.StartTime),
		fmt.Sprintf("Duration: %d min", duration),
	}
	if community.Description != "" {
		lines = append(lines, "\n"+community.Description)
	}
	if community.GroupURL != "" {
		lines = append(lines, "\nURL: "+community.GroupURL)
	}
	return strings.Join(lines, "\n")
}
