// Package icsfeed renders the upcoming instances of active communities as an
// iCalendar feed.
package icsfeed

import (
	"context"
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/reconciler"
)

const productID = "-//vrc-ta-hub//meetupsync//EN"

type Store interface {
	ActiveCommunities(ctx context.Context) ([]models.Community, error)
	ListInstances(ctx context.Context, communityID int64, window models.Window) ([]models.Event, error)
}

type Options struct {
	Name     string
	Location *time.Location
	// UIDDomain is appended to event UIDs.
	UIDDomain string
	Now       func() time.Time
}

type Feed struct {
	store Store
	opts  Options
}

func New(store Store, opts Options) *Feed {
	if opts.Name == "" {
		opts.Name = "Community meetups"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.UIDDomain == "" {
		opts.UIDDomain = "meetupsync"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Feed{store: store, opts: opts}
}

// Build returns a calendar with one VEVENT per instance in window.
func (f *Feed) Build(ctx context.Context, window models.Window) (*ical.Calendar, int, error) {
	communities, err := f.store.ActiveCommunities(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list communities: %w", err)
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(f.opts.Name)
	cal.SetXWRTimezone(f.opts.Location.String())

	stamp := f.opts.Now().UTC()
	count := 0
	for i := range communities {
		c := &communities[i]
		events, err := f.store.ListInstances(ctx, c.CommunityID, window)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list instances of community %d: %w", c.CommunityID, err)
		}
		for j := range events {
			ev := &events[j]
			ve := cal.AddEvent(f.uid(ev))
			ve.SetDtStampTime(stamp)
			ve.SetStartAt(ev.StartAt(f.opts.Location))
			ve.SetEndAt(ev.EndAt(f.opts.Location))
			ve.SetSummary(c.CalendarSummary())
			ve.SetDescription(reconciler.Description(c, ev))
			if c.GroupURL != "" {
				ve.SetURL(c.GroupURL)
			}
			count++
		}
	}
	return cal, count, nil
}

// Write serializes the feed for window to w.
func (f *Feed) Write(ctx context.Context, w io.Writer, window models.Window) (int, error) {
	cal, n, err := f.Build(ctx, window)
	if err != nil {
		return 0, err
	}
	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return 0, fmt.Errorf("failed to write feed: %w", err)
	}
	return n, nil
}

func (f *Feed) uid(ev *models.Event) string {
	return fmt.Sprintf("event-%d@%s", ev.EventID, f.opts.UIDDomain)
}
