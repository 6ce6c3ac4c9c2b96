package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/expander"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/reconciler"
)

var tokyo = time.FixedZone("JST", 9*60*60)

type recorder struct {
	mu        sync.Mutex
	calls     []string
	horizons  []int
	windows   []models.Window
	authority []bool
	expandErr error
	runs      chan struct{}
}

func newRecorder() *recorder {
	return &recorder{runs: make(chan struct{}, 10)}
}

func (r *recorder) ExpandAll(_ context.Context, horizonMonths int) (*expander.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "expand")
	r.horizons = append(r.horizons, horizonMonths)
	return &expander.Result{Created: 1}, r.expandErr
}

func (r *recorder) ReconcileAll(_ context.Context, window models.Window, authoritative bool) (*reconciler.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "reconcile")
	r.windows = append(r.windows, window)
	r.authority = append(r.authority, authoritative)
	r.mu.Unlock()
	r.runs <- struct{}{}
	return &reconciler.Result{Window: window}, nil
}

func fixedNow() time.Time {
	return time.Date(2025, 1, 1, 23, 30, 0, 0, tokyo)
}

func TestNew_RejectsBadSchedule(t *testing.T) {
	_, err := New(newRecorder(), newRecorder(), Options{Schedule: "every day"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse schedule")
}

func TestScheduler_Next(t *testing.T) {
	s, err := New(newRecorder(), newRecorder(), Options{Schedule: "0 4 * * *", Location: tokyo})
	require.NoError(t, err)

	next := s.Next(fixedNow())
	assert.Equal(t, time.Date(2025, 1, 2, 4, 0, 0, 0, tokyo), next.In(tokyo))
}

func TestRunOnce_ExpandsThenReconcilesNonAuthoritatively(t *testing.T) {
	rec := newRecorder()
	s, err := New(rec, rec, Options{Schedule: "0 4 * * *", HorizonMonths: 2, WindowDays: 14, Location: tokyo, Now: fixedNow})
	require.NoError(t, err)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Expand.Created)
	require.NotNil(t, run.Reconcile)

	assert.Equal(t, []string{"expand", "reconcile"}, rec.calls)
	assert.Equal(t, []int{2}, rec.horizons)
	assert.Equal(t, []bool{false}, rec.authority)
	assert.Equal(t, models.NewWindow(models.NewDate(2025, 1, 1), 14), rec.windows[0])
}

func TestRunOnce_ReconcilesAfterExpandFailure(t *testing.T) {
	rec := newRecorder()
	rec.expandErr = errors.New("database unavailable")
	s, err := New(rec, rec, Options{Schedule: "0 4 * * *", Location: tokyo, Now: fixedNow})
	require.NoError(t, err)

	run, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"expand", "reconcile"}, rec.calls)
	assert.NotNil(t, run.Reconcile)
}

func TestStart_RunsImmediatelyAndOnNotify(t *testing.T) {
	rec := newRecorder()
	s, err := New(rec, rec, Options{Schedule: "0 4 1 1 *", Location: tokyo})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	waitRun(t, rec)
	s.Notify()
	s.Notify() // coalesced with the pending one or run separately
	waitRun(t, rec)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func waitRun(t *testing.T, rec *recorder) {
	t.Helper()
	select {
	case <-rec.runs:
	case <-time.After(2 * time.Second):
		t.Fatal("no run")
	}
}
