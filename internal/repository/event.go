package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/database"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

const eventColumns = `e.event_id, e.community_id, e.date, e.start_time, e.duration, e.weekday,
	e.is_recurring_master, e.recurrence_rule_id, e.recurring_master_id, e.remote_event_id, e.created_at`

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a master or an instance as given.
func (r *EventRepository) Create(ctx context.Context, ev *models.Event) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO event (community_id, date, start_time, duration, weekday, is_recurring_master,
		 recurrence_rule_id, recurring_master_id, remote_event_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		 RETURNING event_id, created_at`,
		ev.CommunityID, models.Date(ev.Date), pgTime(ev.StartTime), duration(ev), int16(models.WeekdayOf(ev.Date)),
		ev.IsRecurringMaster, ev.RecurrenceRuleID, ev.RecurringMasterID, ev.RemoteEventID,
	).Scan(&ev.EventID, &ev.CreatedAt)
}

// CreateInstance inserts ev unless an instance already holds its slot.
func (r *EventRepository) CreateInstance(ctx context.Context, ev *models.Event) (bool, error) {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO event (community_id, date, start_time, duration, weekday, is_recurring_master,
		 recurrence_rule_id, recurring_master_id)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
		 ON CONFLICT (community_id, date, start_time) WHERE NOT is_recurring_master DO NOTHING
		 RETURNING event_id, created_at`,
		ev.CommunityID, models.Date(ev.Date), pgTime(ev.StartTime), duration(ev), int16(models.WeekdayOf(ev.Date)),
		ev.RecurrenceRuleID, ev.RecurringMasterID,
	).Scan(&ev.EventID, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create instance on %s: %w", ev.Date.Format(models.DateLayout), err)
	}
	return true, nil
}

func (r *EventRepository) GetByID(ctx context.Context, eventID int64) (*models.Event, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+eventColumns+` FROM event e WHERE e.event_id = $1`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get event %d: %w", eventID, err)
	}
	defer rows.Close()

	events, err := r.scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get event %d: %w", eventID, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	return &events[0], nil
}

// ActiveMasters returns the ruled masters of active communities.
func (r *EventRepository) ActiveMasters(ctx context.Context) ([]models.Event, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+eventColumns+` FROM event e
		 JOIN community c ON c.community_id = e.community_id
		 WHERE e.is_recurring_master AND e.recurrence_rule_id IS NOT NULL
		 AND c.status = $1 AND c.end_at IS NULL
		 ORDER BY e.event_id`,
		models.CommunityStatusApproved,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list masters: %w", err)
	}
	defer rows.Close()
	return r.scanEvents(rows)
}

func (r *EventRepository) LatestInstanceDate(ctx context.Context, masterID int64) (*time.Time, error) {
	var latest *time.Time
	err := r.db.Pool.QueryRow(ctx,
		`SELECT MAX(date) FROM event WHERE recurring_master_id = $1`,
		masterID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest instance of master %d: %w", masterID, err)
	}
	return latest, nil
}

func (r *EventRepository) SlotTaken(ctx context.Context, slot models.SlotKey) (bool, error) {
	var taken bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event WHERE community_id = $1 AND date = $2 AND start_time = $3)`,
		slot.CommunityID, models.Date(slot.Date), pgTime(slot.StartTime),
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return taken, nil
}

// RecentDates returns up to limit dates of the master and its instances
// before the given date, ascending.
func (r *EventRepository) RecentDates(ctx context.Context, masterID int64, before time.Time, limit int) ([]time.Time, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT date FROM event
		 WHERE (event_id = $1 OR recurring_master_id = $1) AND date < $2
		 ORDER BY date DESC LIMIT $3`,
		masterID, models.Date(before), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history of master %d: %w", masterID, err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(dates)
	return dates, nil
}

// ListInstances returns the community's non-master events dated inside window.
func (r *EventRepository) ListInstances(ctx context.Context, communityID int64, window models.Window) ([]models.Event, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+eventColumns+` FROM event e
		 WHERE e.community_id = $1 AND NOT e.is_recurring_master
		 AND e.date >= $2 AND e.date <= $3
		 ORDER BY e.date, e.start_time`,
		communityID, window.Start, window.End,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances of community %d: %w", communityID, err)
	}
	defer rows.Close()
	return r.scanEvents(rows)
}

// EventsFrom returns the community's events, masters included, dated on or
// after fromDate.
func (r *EventRepository) EventsFrom(ctx context.Context, communityID int64, fromDate time.Time) ([]models.Event, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+eventColumns+` FROM event e
		 WHERE e.community_id = $1 AND e.date >= $2
		 ORDER BY e.date, e.start_time`,
		communityID, models.Date(fromDate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of community %d: %w", communityID, err)
	}
	defer rows.Close()
	return r.scanEvents(rows)
}

// SetRemoteEventID stores the remote link; an empty id clears it.
func (r *EventRepository) SetRemoteEventID(ctx context.Context, eventID int64, remoteID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE event SET remote_event_id = NULLIF($1, '') WHERE event_id = $2`,
		remoteID, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to set remote id of event %d: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %d: %w", eventID, ErrNotFound)
	}
	return nil
}

func (r *EventRepository) scanEvents(rows pgx.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var (
			ev       models.Event
			start    pgtype.Time
			weekday  int16
			remoteID *string
		)
		if err := rows.Scan(&ev.EventID, &ev.CommunityID, &ev.Date, &start, &ev.Duration, &weekday,
			&ev.IsRecurringMaster, &ev.RecurrenceRuleID, &ev.RecurringMasterID, &remoteID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.StartTime = timeOfDay(start)
		ev.Weekday = models.Weekday(weekday)
		if remoteID != nil {
			ev.RemoteEventID = *remoteID
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func pgTime(t models.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

func timeOfDay(t pgtype.Time) models.TimeOfDay {
	return models.TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func duration(ev *models.Event) int {
	if ev.Duration <= 0 {
		return models.DefaultDuration
	}
	return ev.Duration
}
