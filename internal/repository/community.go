package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/database"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

type CommunityRepository struct {
	db *database.DB
}

func NewCommunityRepository(db *database.DB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

func (r *CommunityRepository) Create(ctx context.Context, c *models.Community) error {
	if c.Status == "" {
		c.Status = models.CommunityStatusPending
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO community (name, status, end_at, description, group_url)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING community_id, created_at`,
		c.Name, c.Status, c.EndAt, c.Description, c.GroupURL,
	).Scan(&c.CommunityID, &c.CreatedAt)
}

func (r *CommunityRepository) GetByID(ctx context.Context, communityID int64) (*models.Community, error) {
	c := &models.Community{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT community_id, name, status, end_at, description, group_url, created_at
		 FROM community WHERE community_id = $1`,
		communityID,
	).Scan(&c.CommunityID, &c.Name, &c.Status, &c.EndAt, &c.Description, &c.GroupURL, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("community %d: %w", communityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community %d: %w", communityID, err)
	}
	return c, nil
}

// ActiveCommunities returns approved communities that have not ended.
func (r *CommunityRepository) ActiveCommunities(ctx context.Context) ([]models.Community, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT community_id, name, status, end_at, description, group_url, created_at
		 FROM community WHERE status = $1 AND end_at IS NULL
		 ORDER BY community_id`,
		models.CommunityStatusApproved,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active communities: %w", err)
	}
	defer rows.Close()

	var out []models.Community
	for rows.Next() {
		var c models.Community
		if err := rows.Scan(&c.CommunityID, &c.Name, &c.Status, &c.EndAt, &c.Description, &c.GroupURL, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CommunityRepository) SetStatus(ctx context.Context, communityID int64, status string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE community SET status = $1 WHERE community_id = $2`,
		status, communityID,
	)
	if err != nil {
		return fmt.Errorf("failed to update community %d: %w", communityID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("community %d: %w", communityID, ErrNotFound)
	}
	return nil
}

// End marks the community as no longer meeting from at.
func (r *CommunityRepository) End(ctx context.Context, communityID int64, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE community SET end_at = $1 WHERE community_id = $2`,
		at, communityID,
	)
	if err != nil {
		return fmt.Errorf("failed to end community %d: %w", communityID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("community %d: %w", communityID, ErrNotFound)
	}
	return nil
}
