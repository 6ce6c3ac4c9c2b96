package rrule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return models.NewDate(y, m, d)
}

func weekday(w models.Weekday) *models.Weekday {
	return &w
}

func TestDates_MonthlyByWeek_FourthMonday(t *testing.T) {
	rule := &models.RecurrenceRule{
		Frequency:   models.FrequencyMonthlyByWeek,
		Interval:    1,
		WeekOfMonth: 4,
		Weekday:     weekday(models.Monday),
	}

	dates, err := Dates(rule, day(2024, 12, 1), 4)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		day(2024, 12, 23),
		day(2025, 1, 27),
		day(2025, 2, 24),
		day(2025, 3, 24),
	}, dates)
}

func TestDates_MonthlyByWeek_SkipsMonthsWithoutNthOccurrence(t *testing.T) {
	rule := &models.RecurrenceRule{
		Frequency:   models.FrequencyMonthlyByWeek,
		Interval:    1,
		WeekOfMonth: 5,
		Weekday:     weekday(models.Friday),
	}

	dates, err := Dates(rule, day(2025, 1, 1), 6)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2025, 1, 31), day(2025, 5, 30)}, dates)
}

func TestDates_MonthlyByWeek_OrdinalProperty(t *testing.T) {
	for week := 1; week <= 5; week++ {
		for wd := models.Monday; wd <= models.Sunday; wd++ {
			rule := &models.RecurrenceRule{
				Frequency:   models.FrequencyMonthlyByWeek,
				Interval:    1,
				WeekOfMonth: week,
				Weekday:     weekday(wd),
			}
			dates, err := Dates(rule, day(2025, 3, 10), 12)
			require.NoError(t, err)
			if week <= 4 {
				assert.GreaterOrEqual(t, len(dates), 11, "week %d %s", week, wd)
			}
			for _, d := range dates {
				assert.Equal(t, wd, models.WeekdayOf(d), "date %s", d.Format(models.DateLayout))
				assert.Equal(t, week, OrdinalInMonth(d), "date %s", d.Format(models.DateLayout))
				assert.False(t, d.Before(day(2025, 3, 10)))
			}
		}
	}
}

func TestDates_Weekly_EveryWeekProperty(t *testing.T) {
	bases := []time.Time{day(2024, 12, 28), day(2025, 1, 1), day(2025, 6, 16), day(2025, 12, 31)}
	for _, base := range bases {
		for wd := models.Monday; wd <= models.Sunday; wd++ {
			rule := &models.RecurrenceRule{
				Frequency: models.FrequencyWeekly,
				Interval:  1,
				Weekday:   weekday(wd),
			}
			dates, err := Dates(rule, base, 2)
			require.NoError(t, err)
			require.NotEmpty(t, dates)

			assert.False(t, dates[0].Before(base))
			assert.Less(t, dates[0].Sub(base), 7*24*time.Hour)
			for i, d := range dates {
				assert.Equal(t, wd, models.WeekdayOf(d))
				if i > 0 {
					assert.Equal(t, 7*24*time.Hour, d.Sub(dates[i-1]), "dates must be consecutive weeks")
				}
			}
		}
	}
}

func TestDates_Weekly_Biweekly(t *testing.T) {
	rule := &models.RecurrenceRule{
		Frequency: models.FrequencyWeekly,
		Interval:  2,
		StartDate: day(2025, 6, 16),
	}

	dates, err := Dates(rule, day(2025, 6, 16), 1)
	require.NoError(t, err)
	assert.Contains(t, dates, day(2025, 6, 16))
	assert.Contains(t, dates, day(2025, 6, 30))
	assert.NotContains(t, dates, day(2025, 6, 23))
	assert.Equal(t, []time.Time{day(2025, 6, 16), day(2025, 6, 30), day(2025, 7, 14)}, dates)
}

func TestDates_Weekly_PhaseFromStartDate(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		weekday  *models.Weekday
		base     time.Time
		expected []time.Time
	}{
		{
			name:     "base long after start keeps phase",
			start:    day(2025, 1, 6),
			base:     day(2025, 6, 20),
			expected: []time.Time{day(2025, 6, 23), day(2025, 7, 7)},
		},
		{
			name:     "start after base rewinds whole cycles",
			start:    day(2025, 6, 30),
			base:     day(2025, 6, 16),
			expected: []time.Time{day(2025, 6, 16), day(2025, 6, 30), day(2025, 7, 14)},
		},
		{
			name:     "start on another weekday counts weeks from the start date",
			start:    day(2025, 6, 18),
			weekday:  weekday(models.Monday),
			base:     day(2025, 6, 18),
			expected: []time.Time{day(2025, 6, 23), day(2025, 7, 7)},
		},
		{
			name:     "across a year boundary",
			start:    day(2024, 12, 23),
			base:     day(2024, 12, 24),
			expected: []time.Time{day(2025, 1, 6), day(2025, 1, 20)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.RecurrenceRule{
				Frequency: models.FrequencyWeekly,
				Interval:  2,
				Weekday:   tt.weekday,
				StartDate: tt.start,
			}
			dates, err := Dates(rule, tt.base, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dates)
		})
	}
}

func TestDates_MonthlyByDate(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		interval int
		base     time.Time
		months   int
		expected []time.Time
	}{
		{
			name:     "clamps to month end",
			start:    day(2025, 1, 31),
			interval: 1,
			base:     day(2025, 1, 1),
			months:   4,
			expected: []time.Time{day(2025, 1, 31), day(2025, 2, 28), day(2025, 3, 31), day(2025, 4, 30)},
		},
		{
			name:     "leap february",
			start:    day(2024, 1, 30),
			interval: 1,
			base:     day(2024, 2, 1),
			months:   1,
			expected: []time.Time{day(2024, 2, 29)},
		},
		{
			name:     "every other month keeps phase",
			start:    day(2025, 1, 15),
			interval: 2,
			base:     day(2025, 2, 1),
			months:   6,
			expected: []time.Time{day(2025, 3, 15), day(2025, 5, 15), day(2025, 7, 15)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.RecurrenceRule{
				Frequency: models.FrequencyMonthlyByDate,
				Interval:  tt.interval,
				StartDate: tt.start,
			}
			dates, err := Dates(rule, tt.base, tt.months)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dates)
		})
	}
}

func TestDates_EndDateIsInclusive(t *testing.T) {
	end := day(2025, 6, 16)
	rule := &models.RecurrenceRule{
		Frequency: models.FrequencyWeekly,
		Interval:  1,
		StartDate: day(2025, 6, 2),
		EndDate:   &end,
	}

	dates, err := Dates(rule, day(2025, 6, 1), 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2025, 6, 2), day(2025, 6, 9), day(2025, 6, 16)}, dates)
}

func TestDates_ExpiredRuleYieldsNothing(t *testing.T) {
	end := day(2025, 1, 1)
	rule := &models.RecurrenceRule{
		Frequency: models.FrequencyWeekly,
		Interval:  1,
		StartDate: day(2024, 6, 3),
		EndDate:   &end,
	}

	dates, err := Dates(rule, day(2025, 3, 1), 3)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestDates_RejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rule  *models.RecurrenceRule
		field string
	}{
		{"zero interval", &models.RecurrenceRule{Frequency: models.FrequencyWeekly, Weekday: weekday(models.Monday)}, "interval"},
		{"week of month out of range", &models.RecurrenceRule{Frequency: models.FrequencyMonthlyByWeek, Interval: 1, WeekOfMonth: 6, Weekday: weekday(models.Monday)}, "week_of_month"},
		{"free text rule", &models.RecurrenceRule{Frequency: models.FrequencyOther, Interval: 1, CustomRule: "first and third Friday"}, "frequency"},
		{"custom text on weekly", &models.RecurrenceRule{Frequency: models.FrequencyWeekly, Interval: 1, Weekday: weekday(models.Monday), CustomRule: "x"}, "custom_rule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Dates(tt.rule, day(2025, 1, 1), 3)
			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

type fakeResolver struct {
	dates []time.Time
	err   error
	hints Hints
	calls int
}

func (f *fakeResolver) Interpret(_ context.Context, _ string, _ time.Time, _ int, hints Hints) ([]time.Time, error) {
	f.calls++
	f.hints = hints
	return f.dates, f.err
}

func TestClock_Generate_ValidatesResolverOutput(t *testing.T) {
	resolver := &fakeResolver{dates: []time.Time{
		day(2024, 11, 25), // before base
		day(2025, 1, 27),
		day(2024, 12, 23),
		day(2024, 12, 24), // not a Monday
		day(2024, 12, 23), // duplicate
		day(2025, 9, 1),   // past the horizon
	}}
	rule := &models.RecurrenceRule{
		RuleID:     7,
		Frequency:  models.FrequencyOther,
		Interval:   1,
		Weekday:    weekday(models.Monday),
		CustomRule: "fourth Monday, skipping holidays",
	}

	dates, err := NewClock(resolver).Generate(context.Background(), rule, day(2024, 12, 1), 3, Hints{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 12, 23), day(2025, 1, 27)}, dates)
	assert.Equal(t, day(2025, 3, 1), resolver.hints.Cutoff)
	require.NotNil(t, resolver.hints.Weekday)
	assert.Equal(t, models.Monday, *resolver.hints.Weekday)
}

func TestClock_Generate_RespectsEndDateForResolver(t *testing.T) {
	end := day(2025, 1, 10)
	resolver := &fakeResolver{dates: []time.Time{day(2025, 1, 3), day(2025, 1, 17)}}
	rule := &models.RecurrenceRule{
		Frequency:  models.FrequencyOther,
		Interval:   1,
		EndDate:    &end,
		CustomRule: "every Friday",
	}

	dates, err := NewClock(resolver).Generate(context.Background(), rule, day(2025, 1, 1), 3, Hints{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2025, 1, 3)}, dates)
}

func TestClock_Generate_ResolverFailure(t *testing.T) {
	boom := errors.New("upstream timeout")
	rule := &models.RecurrenceRule{Frequency: models.FrequencyOther, Interval: 1, CustomRule: "irregular"}

	_, err := NewClock(&fakeResolver{err: boom}).Generate(context.Background(), rule, day(2025, 1, 1), 3, Hints{})
	assert.ErrorIs(t, err, boom)

	_, err = NewClock(nil).Generate(context.Background(), rule, day(2025, 1, 1), 3, Hints{})
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestClock_Generate_DeterministicSkipsResolver(t *testing.T) {
	resolver := &fakeResolver{}
	rule := &models.RecurrenceRule{Frequency: models.FrequencyWeekly, Interval: 1, Weekday: weekday(models.Saturday)}

	dates, err := NewClock(resolver).Generate(context.Background(), rule, day(2025, 1, 1), 1, Hints{})
	require.NoError(t, err)
	assert.NotEmpty(t, dates)
	assert.Equal(t, 0, resolver.calls)
}

func TestDescribe(t *testing.T) {
	end := day(2025, 12, 31)
	assert.Equal(t, "every 2 weeks on MON", Describe(&models.RecurrenceRule{
		Frequency: models.FrequencyWeekly, Interval: 2, StartDate: day(2025, 6, 16),
	}))
	assert.Equal(t, "monthly on the 4th MON, until 2025-12-31", Describe(&models.RecurrenceRule{
		Frequency: models.FrequencyMonthlyByWeek, Interval: 1, WeekOfMonth: 4, Weekday: weekday(models.Monday), EndDate: &end,
	}))
	assert.Equal(t, "monthly on day 31 (month end in shorter months)", Describe(&models.RecurrenceRule{
		Frequency: models.FrequencyMonthlyByDate, Interval: 1, StartDate: day(2025, 1, 31),
	}))
}
