// Package memcal is an in-memory gcal.API with paging, listing lag and fault
// injection.
package memcal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/gcal"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

const (
	OpList   = "list"
	OpGet    = "get"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type fault struct {
	op    string
	id    string // empty matches any id
	times int
	err   error
}

type Calendar struct {
	mu       sync.Mutex
	events   map[string]models.RemoteEvent
	hidden   map[string]bool
	faults   []*fault
	calls    map[string]int
	seq      int
	pageSize int
	now      func() time.Time
}

var _ gcal.API = (*Calendar)(nil)

// New creates an empty calendar returning pages of pageSize events (0 means 250).
func New(pageSize int) *Calendar {
	if pageSize <= 0 {
		pageSize = 250
	}
	return &Calendar{
		events:   make(map[string]models.RemoteEvent),
		hidden:   make(map[string]bool),
		calls:    make(map[string]int),
		pageSize: pageSize,
		now:      time.Now,
	}
}

// SetClock overrides the creation timestamp source.
func (c *Calendar) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Seed stores ev as if a human had created it. An empty ID is generated.
func (c *Calendar) Seed(ev models.RemoteEvent) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.ID == "" {
		ev.ID = c.nextID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = c.now()
	}
	ev.Status = "confirmed"
	c.events[ev.ID] = ev
	return ev.ID
}

// Hide keeps id out of list results while Get still finds it, like a
// listing that has not caught up yet.
func (c *Calendar) Hide(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hidden[id] = true
}

// Fail makes the next times calls of op on id (any id when empty) return err.
func (c *Calendar) Fail(op, id string, times int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, &fault{op: op, id: id, times: times, err: err})
}

// FailTransient injects retryable 503 failures.
func (c *Calendar) FailTransient(op, id string, times int) {
	c.Fail(op, id, times, &gcal.TransientError{Code: 503, Err: fmt.Errorf("backend unavailable")})
}

// Calls returns how many times op was invoked, failed attempts included.
func (c *Calendar) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Events returns all stored events ordered by start then id.
func (c *Calendar) Events() []models.RemoteEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sorted(func(models.RemoteEvent) bool { return true })
}

func (c *Calendar) ListPage(_ context.Context, timeMin, timeMax time.Time, pageToken string) (*gcal.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(OpList, ""); err != nil {
		return nil, err
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	matching := c.sorted(func(ev models.RemoteEvent) bool {
		return !c.hidden[ev.ID] && ev.End.After(timeMin) && ev.Start.Before(timeMax)
	})
	if offset > len(matching) {
		offset = len(matching)
	}
	end := offset + c.pageSize
	page := &gcal.Page{}
	if end < len(matching) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(matching)
	}
	page.Events = append(page.Events, matching[offset:end]...)
	return page, nil
}

func (c *Calendar) Get(_ context.Context, id string) (*models.RemoteEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(OpGet, id); err != nil {
		return nil, err
	}
	ev, ok := c.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gcal.ErrNotFound, id)
	}
	return &ev, nil
}

func (c *Calendar) Insert(_ context.Context, in models.RemoteEventInput) (*models.RemoteEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(OpInsert, in.ID); err != nil {
		return nil, err
	}
	id := in.ID
	if id == "" {
		id = c.nextID()
	} else if _, ok := c.events[id]; ok {
		return nil, fmt.Errorf("%w: %s", gcal.ErrConflict, id)
	}
	ev := fromInput(id, in)
	ev.CreatedAt = c.now()
	c.events[ev.ID] = ev
	return &ev, nil
}

func (c *Calendar) Update(_ context.Context, id string, in models.RemoteEventInput) (*models.RemoteEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(OpUpdate, id); err != nil {
		return nil, err
	}
	old, ok := c.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gcal.ErrNotFound, id)
	}
	ev := fromInput(id, in)
	ev.CreatedAt = old.CreatedAt
	c.events[id] = ev
	return &ev, nil
}

func (c *Calendar) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(OpDelete, id); err != nil {
		return err
	}
	if _, ok := c.events[id]; !ok {
		return fmt.Errorf("%w: %s", gcal.ErrNotFound, id)
	}
	delete(c.events, id)
	delete(c.hidden, id)
	return nil
}

// enter counts the call and returns an injected fault if one matches.
func (c *Calendar) enter(op, id string) error {
	c.calls[op]++
	for _, f := range c.faults {
		if f.op != op || f.times == 0 || (f.id != "" && f.id != id) {
			continue
		}
		f.times--
		return f.err
	}
	return nil
}

func (c *Calendar) nextID() string {
	c.seq++
	return fmt.Sprintf("mem%04d", c.seq)
}

func (c *Calendar) sorted(keep func(models.RemoteEvent) bool) []models.RemoteEvent {
	out := make([]models.RemoteEvent, 0, len(c.events))
	for _, ev := range c.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func fromInput(id string, in models.RemoteEventInput) models.RemoteEvent {
	return models.RemoteEvent{
		ID:          id,
		Summary:     in.Summary,
		Description: in.Description,
		Start:       in.Start,
		End:         in.End,
		Status:      "confirmed",
	}
}
