package models

import "time"

// Event is either a recurring master (the anchor of a schedule) or a concrete
// instance generated from the master's rule.
type Event struct {
	EventID           int64     `json:"event_id"`
	CommunityID       int64     `json:"community_id"`
	Date              time.Time `json:"date"`       // civil date, midnight UTC
	StartTime         TimeOfDay `json:"start_time"` // local wall clock in the configured timezone
	Duration          int       `json:"duration"`   // Duration in minutes
	Weekday           Weekday   `json:"weekday"`    // cache of Date's weekday
	IsRecurringMaster bool      `json:"is_recurring_master"`
	RecurrenceRuleID  *int64    `json:"recurrence_rule_id"`  // set on masters only
	RecurringMasterID *int64    `json:"recurring_master_id"` // set on instances only
	RemoteEventID     string    `json:"remote_event_id"`     // empty until mirrored
	CreatedAt         time.Time `json:"created_at"`
}

// DefaultDuration is used when a master does not carry its own duration.
const DefaultDuration = 60

// IsInstance returns true for generated, bookable occurrences.
func (e *Event) IsInstance() bool {
	return !e.IsRecurringMaster
}

// IsMirrored returns true once the reconciler stored a remote id.
func (e *Event) IsMirrored() bool {
	return e.RemoteEventID != ""
}

// StartAt combines date and start time in loc.
func (e *Event) StartAt(loc *time.Location) time.Time {
	return e.StartTime.On(e.Date, loc)
}

// EndAt calculates end time based on start and duration
func (e *Event) EndAt(loc *time.Location) time.Time {
	d := e.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	return e.StartAt(loc).Add(time.Duration(d) * time.Minute)
}

// SlotKey identifies an instance slot. No two instances of one community share it.
type SlotKey struct {
	CommunityID int64
	Date        time.Time
	StartTime   TimeOfDay
}

func (e *Event) SlotKey() SlotKey {
	return SlotKey{CommunityID: e.CommunityID, Date: Date(e.Date), StartTime: e.StartTime}
}

// RemoteEvent is a calendar entry as fetched from the remote service.
// It is never persisted; each reconciliation pass fetches a fresh set.
type RemoteEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
}

// RemoteEventInput is the payload for create and update calls.
type RemoteEventInput struct {
	ID          string // client-chosen id, used on insert only
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}
