package gcal

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

const (
	listPageSize   = 250
	statusCanceled = "cancelled"
)

// GoogleAPI talks to one Google calendar through the Calendar v3 API.
type GoogleAPI struct {
	service    *calendar.Service
	calendarID string
}

// NewGoogleAPI creates a client for calendarID. An empty credentialsFile
// uses application default credentials.
func NewGoogleAPI(ctx context.Context, calendarID, credentialsFile string, opts ...option.ClientOption) (*GoogleAPI, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(calendar.CalendarEventsScope))

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleAPI{service: service, calendarID: calendarID}, nil
}

func (g *GoogleAPI) ListPage(ctx context.Context, timeMin, timeMax time.Time, pageToken string) (*Page, error) {
	call := g.service.Events.List(g.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		OrderBy("startTime").
		MaxResults(listPageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, classify(err)
	}

	page := &Page{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Status == statusCanceled {
			continue
		}
		page.Events = append(page.Events, fromGoogle(item))
	}
	return page, nil
}

func (g *GoogleAPI) Get(ctx context.Context, id string) (*models.RemoteEvent, error) {
	item, err := g.service.Events.Get(g.calendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	// Deleted events stay readable for a while with status "cancelled".
	if item.Status == statusCanceled {
		return nil, fmt.Errorf("%w: %s is cancelled", ErrNotFound, id)
	}
	ev := fromGoogle(item)
	return &ev, nil
}

func (g *GoogleAPI) Insert(ctx context.Context, in models.RemoteEventInput) (*models.RemoteEvent, error) {
	body := toGoogle(in)
	body.Id = in.ID
	item, err := g.service.Events.Insert(g.calendarID, body).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	ev := fromGoogle(item)
	return &ev, nil
}

func (g *GoogleAPI) Update(ctx context.Context, id string, in models.RemoteEventInput) (*models.RemoteEvent, error) {
	item, err := g.service.Events.Update(g.calendarID, id, toGoogle(in)).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}
	ev := fromGoogle(item)
	return &ev, nil
}

func (g *GoogleAPI) Delete(ctx context.Context, id string) error {
	return classify(g.service.Events.Delete(g.calendarID, id).Context(ctx).Do())
}

func toGoogle(in models.RemoteEventInput) *calendar.Event {
	return &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start: &calendar.EventDateTime{
			DateTime: in.Start.Format(time.RFC3339),
			TimeZone: in.TimeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: in.End.Format(time.RFC3339),
			TimeZone: in.TimeZone,
		},
	}
}

func fromGoogle(item *calendar.Event) models.RemoteEvent {
	ev := models.RemoteEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Status:      item.Status,
		Start:       parseDateTime(item.Start),
		End:         parseDateTime(item.End),
	}
	if t, err := time.Parse(time.RFC3339, item.Created); err == nil {
		ev.CreatedAt = t
	}
	return ev
}

// parseDateTime reads a timed or all-day boundary. All-day dates become
// midnight UTC and never match a timed local event.
func parseDateTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse(models.DateLayout, dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
