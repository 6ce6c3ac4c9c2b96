package models

import (
	"fmt"
	"time"
)

type Frequency string

const (
	FrequencyWeekly        Frequency = "WEEKLY"
	FrequencyMonthlyByWeek Frequency = "MONTHLY_BY_WEEK"
	FrequencyMonthlyByDate Frequency = "MONTHLY_BY_DATE"
	FrequencyOther         Frequency = "OTHER"
)

// IsDeterministic returns true for frequencies computed without the resolver.
func (f Frequency) IsDeterministic() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthlyByWeek, FrequencyMonthlyByDate:
		return true
	}
	return false
}

// RecurrenceRule describes a community's schedule. It owns exactly one master event.
type RecurrenceRule struct {
	RuleID      int64      `json:"rule_id"`
	CommunityID int64      `json:"community_id"`
	Frequency   Frequency  `json:"frequency"`
	Interval    int        `json:"interval"`      // every N weeks or months
	WeekOfMonth int        `json:"week_of_month"` // 1-5, MONTHLY_BY_WEEK only
	Weekday     *Weekday   `json:"weekday"`       // for OTHER it is only a validation hint
	StartDate   time.Time  `json:"start_date"`    // phase anchor
	EndDate     *time.Time `json:"end_date"`      // inclusive
	CustomRule  string     `json:"custom_rule"`   // OTHER only
	CreatedAt   time.Time  `json:"created_at"`
}

// ValidationError reports a malformed rule or an out-of-range date.
// It is returned before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the per-frequency invariants.
func (r *RecurrenceRule) Validate() error {
	if r.Interval < 1 {
		return invalid("interval", "must be at least 1, got %d", r.Interval)
	}
	if r.Weekday != nil && !r.Weekday.Valid() {
		return invalid("weekday", "must be between 0 and 6, got %d", int(*r.Weekday))
	}
	if r.EndDate != nil && !r.StartDate.IsZero() && Date(*r.EndDate).Before(Date(r.StartDate)) {
		return invalid("end_date", "%s is before start date %s",
			r.EndDate.Format(DateLayout), r.StartDate.Format(DateLayout))
	}

	switch r.Frequency {
	case FrequencyWeekly:
		if r.Weekday == nil && r.StartDate.IsZero() {
			return invalid("weekday", "weekly rule needs a weekday or a start date")
		}
		if r.Interval > 1 && r.StartDate.IsZero() {
			return invalid("start_date", "required when interval is %d", r.Interval)
		}
	case FrequencyMonthlyByWeek:
		if r.WeekOfMonth < 1 || r.WeekOfMonth > 5 {
			return invalid("week_of_month", "must be between 1 and 5, got %d", r.WeekOfMonth)
		}
		if r.Weekday == nil {
			return invalid("weekday", "required for %s", r.Frequency)
		}
	case FrequencyMonthlyByDate:
		if r.StartDate.IsZero() {
			return invalid("start_date", "required for %s", r.Frequency)
		}
	case FrequencyOther:
		if r.CustomRule == "" {
			return invalid("custom_rule", "required for %s", r.Frequency)
		}
		return nil
	default:
		return invalid("frequency", "unknown frequency %q", r.Frequency)
	}

	if r.CustomRule != "" {
		return invalid("custom_rule", "only meaningful for %s", FrequencyOther)
	}
	return nil
}

// TargetWeekday returns the configured weekday, falling back to the start date's.
func (r *RecurrenceRule) TargetWeekday() (Weekday, bool) {
	if r.Weekday != nil {
		return *r.Weekday, true
	}
	if !r.StartDate.IsZero() {
		return WeekdayOf(r.StartDate), true
	}
	return 0, false
}

// Allows reports whether the civil date d is inside the rule's end date.
func (r *RecurrenceRule) Allows(d time.Time) bool {
	return r.EndDate == nil || !Date(d).After(Date(*r.EndDate))
}
