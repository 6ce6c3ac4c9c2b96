package reconciler

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// matchKey identifies a remote event by its start, truncated to the minute in
// UTC, and its summary.
func matchKey(start time.Time, summary string) string {
	return start.UTC().Truncate(time.Minute).Format(time.RFC3339) + "|" + strings.TrimSpace(summary)
}

func sameMinute(a, b time.Time) bool {
	return a.UTC().Truncate(time.Minute).Equal(b.UTC().Truncate(time.Minute))
}

// snapshot is one listing of the remote window plus the claims made against
// it during a pass. Claims are shared by every community of a run so that a
// remote event is bound to at most one local event.
type snapshot struct {
	events []models.RemoteEvent
	byID   map[string]*models.RemoteEvent
	byKey  map[string][]*models.RemoteEvent // newest CreatedAt first

	mu      sync.Mutex
	claimed map[string]int64 // remote id -> local event id
}

func newSnapshot(events []models.RemoteEvent) *snapshot {
	s := &snapshot{
		events:  events,
		byID:    make(map[string]*models.RemoteEvent, len(events)),
		byKey:   make(map[string][]*models.RemoteEvent),
		claimed: make(map[string]int64),
	}
	for i := range s.events {
		ev := &s.events[i]
		s.byID[ev.ID] = ev
		k := matchKey(ev.Start, ev.Summary)
		s.byKey[k] = append(s.byKey[k], ev)
	}
	for _, candidates := range s.byKey {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		})
	}
	return s
}

// claim binds remoteID to localID. It fails when another local event holds it.
func (s *snapshot) claim(remoteID string, localID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.claimed[remoteID]; ok && owner != localID {
		return false
	}
	s.claimed[remoteID] = localID
	return true
}

// adopt claims the newest unclaimed remote event with key and returns it,
// or nil when every candidate is taken.
func (s *snapshot) adopt(key string, localID int64) *models.RemoteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.byKey[key] {
		if _, taken := s.claimed[ev.ID]; taken {
			continue
		}
		s.claimed[ev.ID] = localID
		return ev
	}
	return nil
}

// unclaimed returns the listed events no local event bound during the pass.
func (s *snapshot) unclaimed() []models.RemoteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RemoteEvent
	for _, ev := range s.events {
		if _, ok := s.claimed[ev.ID]; !ok {
			out = append(out, ev)
		}
	}
	return out
}
