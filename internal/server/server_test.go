package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

var tokyo = time.FixedZone("JST", 9*60*60)

type fakeFeed struct {
	window models.Window
	err    error
}

func (f *fakeFeed) Write(_ context.Context, w io.Writer, window models.Window) (int, error) {
	f.window = window
	if f.err != nil {
		return 0, f.err
	}
	_, err := io.WriteString(w, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	return 0, err
}

type fakeTrigger struct{ notified int }

func (t *fakeTrigger) Notify() { t.notified++ }

func (t *fakeTrigger) Next(time.Time) time.Time {
	return time.Date(2025, 1, 2, 4, 0, 0, 0, tokyo)
}

func newServer(feed *fakeFeed, trigger *fakeTrigger) *Server {
	return New(feed, trigger, Options{
		WindowDays: 30,
		Location:   tokyo,
		Now:        func() time.Time { return time.Date(2025, 1, 1, 23, 0, 0, 0, tokyo) },
	})
}

func TestCalendar(t *testing.T) {
	feed := &fakeFeed{}
	s := newServer(feed, &fakeTrigger{})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/calendar.ics?days=7", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Equal(t, models.NewWindow(models.NewDate(2025, 1, 1), 7), feed.window)
}

func TestCalendar_Errors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		err  error
		code int
	}{
		{name: "bad days", url: "/calendar.ics?days=0", code: 400},
		{name: "too many days", url: "/calendar.ics?days=400", code: 400},
		{name: "feed failure", url: "/calendar.ics", err: errors.New("database unavailable"), code: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(&fakeFeed{err: tt.err}, &fakeTrigger{})
			resp, err := s.App().Test(httptest.NewRequest("GET", tt.url, nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestSync(t *testing.T) {
	trigger := &fakeTrigger{}
	s := newServer(&fakeFeed{}, trigger)

	resp, err := s.App().Test(httptest.NewRequest("POST", "/api/sync", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 202, resp.StatusCode)
	assert.Equal(t, 1, trigger.notified)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "2025-01-02T04:00:00+09:00", body["next_run"])
}

func TestHealth(t *testing.T) {
	s := newServer(&fakeFeed{}, &fakeTrigger{})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
