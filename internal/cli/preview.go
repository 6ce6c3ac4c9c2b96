package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/expander"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/rrule"
)

type previewFlags struct {
	frequency   string
	interval    int
	weekOfMonth int
	weekday     string
	startDate   string
	endDate     string
	customRule  string
	baseDate    string
	startTime   string
	months      int
}

// PreviewResult is the JSON form of the preview command.
type PreviewResult struct {
	Rule  string   `json:"rule"`
	Dates []string `json:"dates"`
}

func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	f := &previewFlags{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the dates a rule would produce, without touching the database",
		Example: `  meetupsync preview --frequency MONTHLY_BY_WEEK --week-of-month 4 --weekday MON --base-date 2024-12-01
  meetupsync preview --frequency OTHER --custom-rule "first and third Saturday" --weekday SAT`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, base, start, err := f.rule(time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid rule", err)
			}

			var clock *rrule.Clock
			if rule.Frequency.IsDeterministic() {
				clock = rrule.NewClock(nil)
			} else {
				cfg, err := config.Load()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load config", err)
				}
				clock = newClock(cfg)
			}

			exp := expander.New(nil, clock, expander.Options{})
			dates, err := exp.Preview(cmd.Context(), rule, base, f.months, start)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to preview", err)
			}
			return writePreview(cmd, rootOpts.Format, rule, dates)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.frequency, "frequency", string(models.FrequencyWeekly), "WEEKLY | MONTHLY_BY_WEEK | MONTHLY_BY_DATE | OTHER")
	flags.IntVar(&f.interval, "interval", 1, "every N weeks or months")
	flags.IntVar(&f.weekOfMonth, "week-of-month", 0, "1-5, for MONTHLY_BY_WEEK")
	flags.StringVar(&f.weekday, "weekday", "", "MON..SUN")
	flags.StringVar(&f.startDate, "start-date", "", "phase anchor (YYYY-MM-DD)")
	flags.StringVar(&f.endDate, "end-date", "", "last allowed date (YYYY-MM-DD)")
	flags.StringVar(&f.customRule, "custom-rule", "", "free-text rule, for OTHER")
	flags.StringVar(&f.baseDate, "base-date", "", "first candidate date (default today)")
	flags.StringVar(&f.startTime, "start-time", "00:00", "start time passed to the resolver (HH:MM)")
	flags.IntVar(&f.months, "months", 3, "horizon in months")
	return cmd
}

func (f *previewFlags) rule(now time.Time) (*models.RecurrenceRule, time.Time, models.TimeOfDay, error) {
	rule := &models.RecurrenceRule{
		Frequency:   models.Frequency(strings.ToUpper(f.frequency)),
		Interval:    f.interval,
		WeekOfMonth: f.weekOfMonth,
		CustomRule:  f.customRule,
	}
	if f.weekday != "" {
		w, err := models.ParseWeekday(f.weekday)
		if err != nil {
			return nil, time.Time{}, 0, err
		}
		rule.Weekday = &w
	}
	if f.startDate != "" {
		d, err := models.ParseDate(f.startDate)
		if err != nil {
			return nil, time.Time{}, 0, err
		}
		rule.StartDate = d
	}
	if f.endDate != "" {
		d, err := models.ParseDate(f.endDate)
		if err != nil {
			return nil, time.Time{}, 0, err
		}
		rule.EndDate = &d
	}

	base := models.Date(now)
	if f.baseDate != "" {
		d, err := models.ParseDate(f.baseDate)
		if err != nil {
			return nil, time.Time{}, 0, err
		}
		base = d
	}
	// Monthly-by-date rules need a day of month; the base date supplies it.
	if rule.StartDate.IsZero() && rule.Frequency != models.FrequencyMonthlyByWeek {
		rule.StartDate = base
	}

	start, err := models.ParseTimeOfDay(f.startTime)
	if err != nil {
		return nil, time.Time{}, 0, err
	}
	return rule, base, start, nil
}

func writePreview(cmd *cobra.Command, format string, rule *models.RecurrenceRule, dates []time.Time) error {
	out := cmd.OutOrStdout()
	res := PreviewResult{Rule: rrule.Describe(rule), Dates: make([]string, len(dates))}
	for i, d := range dates {
		res.Dates[i] = d.Format(models.DateLayout)
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, res.Rule)
	for _, d := range dates {
		fmt.Fprintf(out, "%s %s\n", d.Format(models.DateLayout), models.WeekdayOf(d))
	}
	return nil
}
