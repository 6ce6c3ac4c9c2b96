package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/database"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// Store bundles the repositories behind the expander, reconciler and
// retention store interfaces.
type Store struct {
	*CommunityRepository
	*RecurrenceRuleRepository
	*EventRepository
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{
		CommunityRepository:      NewCommunityRepository(db),
		RecurrenceRuleRepository: NewRecurrenceRuleRepository(db),
		EventRepository:          NewEventRepository(db),
		db:                       db,
	}
}

// DeleteFrom deletes the community's events dated on or after fromDate and,
// when deleteRules is set, all its rules. Masters that remain lose their rule
// link through the foreign key.
func (s *Store) DeleteFrom(ctx context.Context, communityID int64, fromDate time.Time, deleteRules bool) (int, int, error) {
	var events, rules int64
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM event WHERE community_id = $1 AND date >= $2`,
			communityID, models.Date(fromDate),
		)
		if err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}
		events = tag.RowsAffected()

		if !deleteRules {
			return nil
		}
		tag, err = tx.Exec(ctx, `DELETE FROM recurrence_rule WHERE community_id = $1`, communityID)
		if err != nil {
			return fmt.Errorf("failed to delete rules: %w", err)
		}
		rules = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean up community %d: %w", communityID, err)
	}
	return int(events), int(rules), nil
}

// CreateSchedule inserts a rule and its master event in one transaction.
func (s *Store) CreateSchedule(ctx context.Context, rule *models.RecurrenceRule, master *models.Event) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertRuleSQL, ruleArgs(rule)...).Scan(&rule.RuleID, &rule.CreatedAt); err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}

		master.CommunityID = rule.CommunityID
		master.IsRecurringMaster = true
		master.RecurrenceRuleID = &rule.RuleID
		if err := tx.QueryRow(ctx,
			`INSERT INTO event (community_id, date, start_time, duration, weekday, is_recurring_master,
			 recurrence_rule_id)
			 VALUES ($1, $2, $3, $4, $5, TRUE, $6)
			 RETURNING event_id, created_at`,
			master.CommunityID, models.Date(master.Date), pgTime(master.StartTime), duration(master),
			int16(models.WeekdayOf(master.Date)), master.RecurrenceRuleID,
		).Scan(&master.EventID, &master.CreatedAt); err != nil {
			return fmt.Errorf("failed to create master: %w", err)
		}
		return nil
	})
}
