package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/database"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

const ruleColumns = `rule_id, community_id, frequency, repeat_interval, week_of_month, weekday,
	start_date, end_date, custom_rule, created_at`

type RecurrenceRuleRepository struct {
	db *database.DB
}

func NewRecurrenceRuleRepository(db *database.DB) *RecurrenceRuleRepository {
	return &RecurrenceRuleRepository{db: db}
}

const insertRuleSQL = `INSERT INTO recurrence_rule (community_id, frequency, repeat_interval, week_of_month, weekday,
	start_date, end_date, custom_rule)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING rule_id, created_at`

// ruleArgs maps the zero values of optional fields to NULL.
func ruleArgs(rule *models.RecurrenceRule) []any {
	var weekOfMonth *int
	if rule.WeekOfMonth > 0 {
		weekOfMonth = &rule.WeekOfMonth
	}
	var weekday *int16
	if rule.Weekday != nil {
		w := int16(*rule.Weekday)
		weekday = &w
	}
	var startDate *time.Time
	if !rule.StartDate.IsZero() {
		startDate = &rule.StartDate
	}
	return []any{rule.CommunityID, string(rule.Frequency), rule.Interval, weekOfMonth, weekday,
		startDate, rule.EndDate, rule.CustomRule}
}

// Create validates and inserts the rule.
func (r *RecurrenceRuleRepository) Create(ctx context.Context, rule *models.RecurrenceRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return r.db.Pool.QueryRow(ctx, insertRuleSQL, ruleArgs(rule)...).Scan(&rule.RuleID, &rule.CreatedAt)
}

func (r *RecurrenceRuleRepository) GetRule(ctx context.Context, ruleID int64) (*models.RecurrenceRule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM recurrence_rule WHERE rule_id = $1`,
		ruleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %d: %w", ruleID, err)
	}
	defer rows.Close()

	rules, err := r.scanRules(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %d: %w", ruleID, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule %d: %w", ruleID, ErrNotFound)
	}
	return &rules[0], nil
}

// Rules returns the community's rules, oldest first.
func (r *RecurrenceRuleRepository) Rules(ctx context.Context, communityID int64) ([]models.RecurrenceRule, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+ruleColumns+` FROM recurrence_rule WHERE community_id = $1 ORDER BY rule_id`,
		communityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules of community %d: %w", communityID, err)
	}
	defer rows.Close()
	return r.scanRules(rows)
}

func (r *RecurrenceRuleRepository) scanRules(rows pgx.Rows) ([]models.RecurrenceRule, error) {
	var rules []models.RecurrenceRule
	for rows.Next() {
		var (
			rule        models.RecurrenceRule
			frequency   string
			weekOfMonth *int
			weekday     *int16
			startDate   *time.Time
		)
		if err := rows.Scan(&rule.RuleID, &rule.CommunityID, &frequency, &rule.Interval, &weekOfMonth,
			&weekday, &startDate, &rule.EndDate, &rule.CustomRule, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rule.Frequency = models.Frequency(frequency)
		if weekOfMonth != nil {
			rule.WeekOfMonth = *weekOfMonth
		}
		if weekday != nil {
			w := models.Weekday(*weekday)
			rule.Weekday = &w
		}
		if startDate != nil {
			rule.StartDate = *startDate
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}
