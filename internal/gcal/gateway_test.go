package gcal_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/gcal"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/gcal/memcal"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

func fastGateway(api gcal.API) *gcal.Gateway {
	return gcal.NewGateway(api, gcal.Options{
		RatePerSecond:   1000,
		Burst:           100,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
}

func seedHourly(cal *memcal.Calendar, n int, from time.Time) {
	for i := 0; i < n; i++ {
		start := from.Add(time.Duration(i) * time.Hour)
		cal.Seed(models.RemoteEvent{Summary: fmt.Sprintf("event %d", i), Start: start, End: start.Add(30 * time.Minute)})
	}
}

func TestGateway_ListFollowsPagination(t *testing.T) {
	cal := memcal.New(3)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedHourly(cal, 10, from)

	events, err := fastGateway(cal).List(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, events, 10)
	assert.Equal(t, 4, cal.Calls(memcal.OpList))

	ids := make(map[string]bool)
	for _, ev := range events {
		ids[ev.ID] = true
	}
	assert.Len(t, ids, 10, "pages must not overlap")
}

func TestGateway_ListRetriesTransientPage(t *testing.T) {
	cal := memcal.New(2)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedHourly(cal, 5, from)
	cal.FailTransient(memcal.OpList, "", 2)

	events, err := fastGateway(cal).List(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestGateway_ListFailsWholeListingOnPersistentError(t *testing.T) {
	cal := memcal.New(2)
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedHourly(cal, 5, from)
	cal.FailTransient(memcal.OpList, "", 10)

	events, err := fastGateway(cal).List(context.Background(), from, from.AddDate(0, 0, 1))
	assert.Error(t, err)
	assert.True(t, gcal.IsTransient(err))
	assert.Nil(t, events)
	assert.Equal(t, 3, cal.Calls(memcal.OpList))
}

func TestGateway_DeleteTwiceSucceeds(t *testing.T) {
	cal := memcal.New(0)
	start := time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)
	id := cal.Seed(models.RemoteEvent{Summary: "meetup", Start: start, End: start.Add(time.Hour)})
	gw := fastGateway(cal)

	require.NoError(t, gw.Delete(context.Background(), id))
	require.NoError(t, gw.Delete(context.Background(), id))
	assert.Empty(t, cal.Events())
	assert.Equal(t, 2, cal.Calls(memcal.OpDelete))
}

func TestGateway_CreateRetriesThenGivesUp(t *testing.T) {
	cal := memcal.New(0)
	start := time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)
	in := models.RemoteEventInput{Summary: "meetup", Start: start, End: start.Add(time.Hour)}
	gw := fastGateway(cal)

	cal.FailTransient(memcal.OpInsert, "", 2)
	ev, err := gw.Create(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 3, cal.Calls(memcal.OpInsert))

	cal.FailTransient(memcal.OpInsert, "", 3)
	_, err = gw.Create(context.Background(), in)
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Len(t, cal.Events(), 1)
}

// lostReply stores inserts but reports the first n of them as transient
// failures, like a response dropped after the server committed the write.
type lostReply struct {
	*memcal.Calendar
	n int
}

func (l *lostReply) Insert(ctx context.Context, in models.RemoteEventInput) (*models.RemoteEvent, error) {
	ev, err := l.Calendar.Insert(ctx, in)
	if err != nil || l.n == 0 {
		return ev, err
	}
	l.n--
	return nil, &gcal.TransientError{Code: 503, Err: errors.New("connection reset")}
}

func TestGateway_CreateRetryAfterLostReplyKeepsOneEvent(t *testing.T) {
	cal := memcal.New(0)
	start := time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)
	in := models.RemoteEventInput{Summary: "meetup", Start: start, End: start.Add(time.Hour)}

	ev, err := fastGateway(&lostReply{Calendar: cal, n: 1}).Create(context.Background(), in)
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, events[0].ID, ev.ID)
	assert.Equal(t, 2, cal.Calls(memcal.OpInsert))
	assert.Equal(t, 1, cal.Calls(memcal.OpGet))
}

func TestGateway_CreateKeepsCallerID(t *testing.T) {
	cal := memcal.New(0)
	start := time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)
	in := models.RemoteEventInput{ID: "abc123", Summary: "meetup", Start: start, End: start.Add(time.Hour)}
	gw := fastGateway(cal)

	ev, err := gw.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "abc123", ev.ID)

	// A first-attempt conflict is a real collision, not a lost reply.
	_, err = gw.Create(context.Background(), in)
	assert.True(t, gcal.IsConflict(err))
	assert.Len(t, cal.Events(), 1)
}

func TestNewEventID(t *testing.T) {
	id := gcal.NewEventID()
	assert.Len(t, id, 32)
	assert.Regexp(t, "^[0-9a-v]+$", id)
	assert.NotEqual(t, id, gcal.NewEventID())
}

func TestGateway_PermanentErrorsAreNotRetried(t *testing.T) {
	cal := memcal.New(0)
	boom := errors.New("invalid event")
	cal.Fail(memcal.OpUpdate, "x", 5, boom)

	_, err := fastGateway(cal).Update(context.Background(), "x", models.RemoteEventInput{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, cal.Calls(memcal.OpUpdate))
}

func TestGateway_GetMissingIsNotFound(t *testing.T) {
	_, err := fastGateway(memcal.New(0)).Get(context.Background(), "missing")
	assert.True(t, gcal.IsNotFound(err))
}

func TestGateway_CanceledContextStopsRetries(t *testing.T) {
	cal := memcal.New(0)
	cal.FailTransient(memcal.OpGet, "", 100)
	gw := gcal.NewGateway(cal, gcal.Options{MaxAttempts: 50, InitialInterval: 50 * time.Millisecond, RatePerSecond: 1000})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := gw.Get(ctx, "x")
	assert.Error(t, err)
	assert.Less(t, cal.Calls(memcal.OpGet), 50)
}
