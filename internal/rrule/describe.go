package rrule

import (
	"fmt"
	"strings"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// Describe returns a short English description of the rule
func Describe(rule *models.RecurrenceRule) string {
	var result strings.Builder

	wd := "?"
	if w, ok := rule.TargetWeekday(); ok {
		wd = w.String()
	}

	switch rule.Frequency {
	case models.FrequencyWeekly:
		if rule.Interval <= 1 {
			result.WriteString("every " + wd)
		} else {
			result.WriteString(fmt.Sprintf("every %d weeks on %s", rule.Interval, wd))
		}
	case models.FrequencyMonthlyByWeek:
		result.WriteString(fmt.Sprintf("monthly on the %s %s", ordinal(rule.WeekOfMonth), wd))
	case models.FrequencyMonthlyByDate:
		day := rule.StartDate.Day()
		if rule.Interval <= 1 {
			result.WriteString(fmt.Sprintf("monthly on day %d", day))
		} else {
			result.WriteString(fmt.Sprintf("every %d months on day %d", rule.Interval, day))
		}
		if day > 28 {
			result.WriteString(" (month end in shorter months)")
		}
	case models.FrequencyOther:
		result.WriteString(fmt.Sprintf("%q", rule.CustomRule))
	default:
		result.WriteString(string(rule.Frequency))
	}

	if rule.EndDate != nil {
		result.WriteString(", until " + rule.EndDate.Format(models.DateLayout))
	}
	return result.String()
}

func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
