package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/rrule"
)

const interpretSystemPrompt = `You extend the schedule of a recurring community meetup.
Given a free-text recurrence rule and the recent history of the meetup, list the
dates on which the meetup takes place inside the requested range.

Rules:
1. Output dates as YYYY-MM-DD, ascending, inside the range (both ends inclusive).
2. Continue the main pattern of the history. Ignore one-off or irregular dates in it.
3. For biweekly patterns whose phase drifted, count from the most recent date.
4. For monthly patterns, keep the weekday and week of month seen in the history.
5. Never output dates that do not exist. Compute weekdays exactly.
6. Output only regular occurrences. Do not invent irregular dates.`

var datesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"dates": {
			"type": "array",
			"items": {
				"type": "string",
				"description": "Occurrence date in YYYY-MM-DD format"
			}
		}
	},
	"required": ["dates"],
	"additionalProperties": false
}`)

type datesResponse struct {
	Dates []string `json:"dates"`
}

// Interpret asks the model for the occurrences of ruleText. Its output is
// untrusted; rrule.Clock validates every date it returns.
func (c *Client) Interpret(ctx context.Context, ruleText string, baseDate time.Time, horizonMonths int, hints rrule.Hints) ([]time.Time, error) {
	cutoff := hints.Cutoff
	if cutoff.IsZero() {
		cutoff = models.Date(baseDate).AddDate(0, horizonMonths, 0)
	}

	var resp datesResponse
	if err := c.completeJSON(ctx, "occurrences", datesSchema, interpretSystemPrompt,
		buildInterpretPrompt(ruleText, baseDate, cutoff, hints), &resp); err != nil {
		return nil, err
	}
	return parseDates(resp.Dates), nil
}

func buildInterpretPrompt(ruleText string, baseDate, cutoff time.Time, hints rrule.Hints) string {
	var b strings.Builder
	base := models.Date(baseDate)

	fmt.Fprintf(&b, "Base date: %s (%s)\n", base.Format(models.DateLayout), models.WeekdayOf(base))
	fmt.Fprintf(&b, "Start time: %s\n", hints.StartTime)
	fmt.Fprintf(&b, "Range: %s to %s\n", base.Format(models.DateLayout), cutoff.Format(models.DateLayout))
	fmt.Fprintf(&b, "Rule: %s\n", ruleText)
	if hints.Weekday != nil {
		fmt.Fprintf(&b, "Every occurrence falls on %s.\n", *hints.Weekday)
	}
	b.WriteString("\n")
	b.WriteString(describeHistory(hints.History))
	return b.String()
}

// describeHistory renders past occurrences with a short pattern analysis:
// dominant weekday, dominant week of month and the average gap.
func describeHistory(history []time.Time) string {
	if len(history) == 0 {
		return "History: none\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "History (last %d):\n", len(history))
	weekdayCounts := make(map[models.Weekday]int)
	weekCounts := make(map[int]int)
	for _, d := range history {
		wd := models.WeekdayOf(d)
		week := rrule.OrdinalInMonth(d)
		weekdayCounts[wd]++
		weekCounts[week]++
		fmt.Fprintf(&b, "- %s (%s) week %d\n", d.Format(models.DateLayout), wd, week)
	}

	if len(history) < 2 {
		return b.String()
	}

	b.WriteString("\nPattern:\n")
	fmt.Fprintf(&b, "- main weekday: %s\n", mostCommon(weekdayCounts))
	fmt.Fprintf(&b, "- main week of month: %d\n", mostCommon(weekCounts))

	span := history[len(history)-1].Sub(history[0]).Hours() / 24
	avg := span / float64(len(history)-1)
	fmt.Fprintf(&b, "- average gap: %.1f days\n", avg)
	switch {
	case avg >= 12 && avg <= 16:
		b.WriteString("- likely biweekly\n")
	case avg >= 27 && avg <= 32:
		b.WriteString("- likely monthly\n")
	}
	return b.String()
}

// mostCommon returns the key with the highest count, the smallest key on ties.
func mostCommon[K models.Weekday | int](counts map[K]int) K {
	var best K
	bestCount := -1
	for k, n := range counts {
		if n > bestCount || (n == bestCount && k < best) {
			best, bestCount = k, n
		}
	}
	return best
}

func parseDates(raw []string) []time.Time {
	dates := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		d, err := models.ParseDate(strings.TrimSpace(s))
		if err != nil {
			log.Printf("Ignoring unparsable resolver date %q: %v", s, err)
			continue
		}
		dates = append(dates, d)
	}
	return dates
}
