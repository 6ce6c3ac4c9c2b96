package rrule

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// Weekday constants, indexed by models.Weekday (Monday first, like rrule-go).
var weekdays = [...]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

func toRRuleWeekday(w models.Weekday) rrule.Weekday {
	return weekdays[w]
}

// Cutoff returns the last civil date a generation pass may yield:
// baseDate + horizonMonths, or the rule's end date when earlier.
func Cutoff(rule *models.RecurrenceRule, baseDate time.Time, horizonMonths int) time.Time {
	end := models.Date(baseDate).AddDate(0, horizonMonths, 0)
	if rule.EndDate != nil {
		if ruleEnd := models.Date(*rule.EndDate); ruleEnd.Before(end) {
			end = ruleEnd
		}
	}
	return end
}

// Dates computes the occurrences of a deterministic rule in
// [baseDate, Cutoff(rule, baseDate, horizonMonths)], sorted ascending and
// deduplicated. It performs no I/O.
func Dates(rule *models.RecurrenceRule, baseDate time.Time, horizonMonths int) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if !rule.Frequency.IsDeterministic() {
		return nil, &models.ValidationError{
			Field:   "frequency",
			Message: fmt.Sprintf("%s rules need a resolver", rule.Frequency),
		}
	}
	if horizonMonths < 1 {
		return nil, &models.ValidationError{
			Field:   "horizon_months",
			Message: fmt.Sprintf("must be at least 1, got %d", horizonMonths),
		}
	}

	base := models.Date(baseDate)
	end := Cutoff(rule, base, horizonMonths)
	if end.Before(base) {
		return nil, nil
	}

	opt, err := options(rule, base)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule %d: %w", rule.RuleID, err)
	}

	return normalize(r.Between(base, end, true)), nil
}

// options translates a rule into rrule-go options whose DTSTART is on or
// before base, so Between never misses the first occurrence.
func options(rule *models.RecurrenceRule, base time.Time) (*rrule.ROption, error) {
	switch rule.Frequency {
	case models.FrequencyWeekly:
		wd, _ := rule.TargetWeekday()
		anchor := base
		if !rule.StartDate.IsZero() {
			anchor = models.Date(rule.StartDate)
		}
		// Rewinding by whole cycles keeps the phase. Starting the week on the
		// anchor's weekday makes week n exactly floor(daysSinceAnchor / 7).
		for anchor.After(base) {
			anchor = anchor.AddDate(0, 0, -7*rule.Interval)
		}
		return &rrule.ROption{
			Freq:      rrule.WEEKLY,
			Interval:  rule.Interval,
			Dtstart:   anchor,
			Wkst:      toRRuleWeekday(models.WeekdayOf(anchor)),
			Byweekday: []rrule.Weekday{toRRuleWeekday(wd)},
		}, nil

	case models.FrequencyMonthlyByWeek:
		// BYDAY=+nXX yields nothing in months without an nth occurrence,
		// so those months are skipped rather than rolled over.
		wd := toRRuleWeekday(*rule.Weekday)
		return &rrule.ROption{
			Freq:      rrule.MONTHLY,
			Interval:  1,
			Dtstart:   firstOfMonth(base),
			Byweekday: []rrule.Weekday{wd.Nth(rule.WeekOfMonth)},
		}, nil

	case models.FrequencyMonthlyByDate:
		day := rule.StartDate.Day()
		anchor := firstOfMonth(rule.StartDate)
		for anchor.After(base) {
			anchor = anchor.AddDate(0, -rule.Interval, 0)
		}
		opt := &rrule.ROption{
			Freq:     rrule.MONTHLY,
			Interval: rule.Interval,
			Dtstart:  anchor,
		}
		if day <= 28 {
			opt.Bymonthday = []int{day}
		} else {
			// Last existing day among 28..day: clamps day 31 to the 30th in
			// April and to the 28th/29th in February.
			for d := 28; d <= day; d++ {
				opt.Bymonthday = append(opt.Bymonthday, d)
			}
			opt.Bysetpos = []int{-1}
		}
		return opt, nil
	}
	return nil, fmt.Errorf("unsupported frequency %q", rule.Frequency)
}

func firstOfMonth(t time.Time) time.Time {
	return models.NewDate(t.Year(), t.Month(), 1)
}

// normalize truncates to civil dates, sorts ascending and drops duplicates.
func normalize(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, models.Date(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	uniq := out[:0]
	for i, d := range out {
		if i > 0 && d.Equal(uniq[len(uniq)-1]) {
			continue
		}
		uniq = append(uniq, d)
	}
	return uniq
}

// OrdinalInMonth returns which occurrence of its weekday d is within its month
// (the 23rd is always the 4th of its weekday).
func OrdinalInMonth(d time.Time) int {
	return (d.Day()-1)/7 + 1
}
