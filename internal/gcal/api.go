package gcal

import (
	"context"
	"time"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// API is the single-event wire surface of a remote calendar. Implementations
// return ErrNotFound for missing events, ErrConflict when an insert reuses an
// id and TransientError for retryable failures. Insert honors a non-empty
// input ID. Gateway adds retry, rate limiting and pagination on top.
type API interface {
	ListPage(ctx context.Context, timeMin, timeMax time.Time, pageToken string) (*Page, error)
	Get(ctx context.Context, id string) (*models.RemoteEvent, error)
	Insert(ctx context.Context, in models.RemoteEventInput) (*models.RemoteEvent, error)
	Update(ctx context.Context, id string, in models.RemoteEventInput) (*models.RemoteEvent, error)
	Delete(ctx context.Context, id string) error
}

// Page is one page of a list call. An empty NextPageToken ends the listing.
type Page struct {
	Events        []models.RemoteEvent
	NextPageToken string
}
