package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and CLI format for civil dates.
const DateLayout = "2006-01-02"

// Date truncates t to its calendar day, returned as midnight UTC.
// Civil dates are always compared in this form.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate returns the civil date y-m-d.
func NewDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return t, nil
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return Date(now.In(loc))
}

// DaysInMonth returns the number of days of the month containing t.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Weekday numbers days from Monday (0) to Sunday (6).
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

// WeekdayOf returns the weekday of t's calendar day.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// TimeWeekday converts to the standard library numbering.
func (w Weekday) TimeWeekday() time.Weekday {
	return time.Weekday((int(w) + 1) % 7)
}

// ParseWeekday accepts MON..SUN (case-insensitive, three letters or more).
func ParseWeekday(s string) (Weekday, error) {
	if len(s) >= 3 {
		prefix := s[:3]
		for i, name := range weekdayNames {
			if strings.EqualFold(prefix, name) {
				return Weekday(i), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// TimeOfDay is a wall clock time stored as minutes since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses HH:MM.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places the wall clock on the civil date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

// Window is an inclusive range of civil dates.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow returns [today, today+days].
func NewWindow(today time.Time, days int) Window {
	start := Date(today)
	return Window{Start: start, End: start.AddDate(0, 0, days)}
}

// Contains reports whether the civil date d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	d = Date(d)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Bounds returns the half-open instant range [Start 00:00, End+1 00:00) in loc.
func (w Window) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	from := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, loc)
	end := w.End.AddDate(0, 0, 1)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	return from, to
}

func (w Window) String() string {
	return w.Start.Format(DateLayout) + ".." + w.End.Format(DateLayout)
}
