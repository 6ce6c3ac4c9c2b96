package rrule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// ErrNoResolver is returned for free-text rules when no resolver is configured.
var ErrNoResolver = errors.New("no natural rule resolver configured")

// Resolver interprets free-text rules. Its output may be wrong, slow or
// missing, and is always validated before use.
type Resolver interface {
	Interpret(ctx context.Context, ruleText string, baseDate time.Time, horizonMonths int, hints Hints) ([]time.Time, error)
}

// Hints gives the resolver context about the schedule it is extending.
type Hints struct {
	StartTime models.TimeOfDay
	Weekday   *models.Weekday
	Cutoff    time.Time   // last date the caller will accept
	History   []time.Time // recent past occurrences, ascending
}

// Clock generates occurrence dates for any rule frequency.
type Clock struct {
	resolver Resolver
}

// NewClock creates a Clock. resolver may be nil; OTHER rules then fail with
// ErrNoResolver while deterministic rules keep working.
func NewClock(resolver Resolver) *Clock {
	return &Clock{resolver: resolver}
}

// Generate returns the ordered, deduplicated occurrences of rule from
// baseDate over horizonMonths.
func (c *Clock) Generate(ctx context.Context, rule *models.RecurrenceRule, baseDate time.Time, horizonMonths int, hints Hints) ([]time.Time, error) {
	if rule.Frequency.IsDeterministic() {
		return Dates(rule, baseDate, horizonMonths)
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if c.resolver == nil {
		return nil, ErrNoResolver
	}

	base := models.Date(baseDate)
	cutoff := Cutoff(rule, base, horizonMonths)
	if cutoff.Before(base) {
		return nil, nil
	}
	if hints.Weekday == nil {
		hints.Weekday = rule.Weekday
	}
	hints.Cutoff = cutoff

	raw, err := c.resolver.Interpret(ctx, rule.CustomRule, base, horizonMonths, hints)
	if err != nil {
		return nil, fmt.Errorf("failed to interpret rule %d: %w", rule.RuleID, err)
	}
	return Sanitize(rule, raw, base, cutoff), nil
}

// Sanitize drops resolver dates outside [base, cutoff] or off the rule's
// weekday hint. Dropped dates are logged, never returned as errors.
func Sanitize(rule *models.RecurrenceRule, dates []time.Time, base, cutoff time.Time) []time.Time {
	kept := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = models.Date(d)
		switch {
		case d.Before(base):
			log.Printf("Dropping resolver date %s for rule %d: before base date %s",
				d.Format(models.DateLayout), rule.RuleID, base.Format(models.DateLayout))
		case d.After(cutoff):
			log.Printf("Dropping resolver date %s for rule %d: after cutoff %s",
				d.Format(models.DateLayout), rule.RuleID, cutoff.Format(models.DateLayout))
		case rule.Weekday != nil && models.WeekdayOf(d) != *rule.Weekday:
			log.Printf("Dropping resolver date %s for rule %d: %s is not %s",
				d.Format(models.DateLayout), rule.RuleID, models.WeekdayOf(d), *rule.Weekday)
		default:
			kept = append(kept, d)
		}
	}
	return normalize(kept)
}
