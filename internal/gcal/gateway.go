package gcal

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
)

// Options tunes retries and the outbound rate limit.
type Options struct {
	RatePerSecond   float64
	Burst           int
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o *Options) normalize() {
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 10 * time.Second
	}
}

// Gateway wraps an API with retries, a shared rate limiter and exhaustive
// pagination. It is safe for concurrent use.
type Gateway struct {
	api     API
	limiter *rate.Limiter
	opts    Options
}

func NewGateway(api API, opts Options) *Gateway {
	opts.normalize()
	return &Gateway{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		opts:    opts,
	}
}

// List returns every event overlapping [timeMin, timeMax), following page
// tokens until exhausted. A failed page fails the whole listing.
func (g *Gateway) List(ctx context.Context, timeMin, timeMax time.Time) ([]models.RemoteEvent, error) {
	var (
		all   []models.RemoteEvent
		token string
		seen  = make(map[string]bool)
	)
	for {
		var page *Page
		err := g.do(ctx, "list", func() error {
			var err error
			page, err = g.api.ListPage(ctx, timeMin, timeMax, token)
			return err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Events...)

		if page.NextPageToken == "" {
			return all, nil
		}
		if seen[page.NextPageToken] {
			return nil, fmt.Errorf("failed to list events: page token %q repeated", page.NextPageToken)
		}
		seen[page.NextPageToken] = true
		token = page.NextPageToken
	}
}

func (g *Gateway) Get(ctx context.Context, id string) (*models.RemoteEvent, error) {
	var ev *models.RemoteEvent
	err := g.do(ctx, "get", func() error {
		var err error
		ev, err = g.api.Get(ctx, id)
		return err
	})
	return ev, err
}

// Create inserts the event under a client-chosen id that stays fixed across
// retries. A conflict on a retry means an earlier attempt landed, so that
// event is returned instead of a second copy.
func (g *Gateway) Create(ctx context.Context, in models.RemoteEventInput) (*models.RemoteEvent, error) {
	if in.ID == "" {
		in.ID = NewEventID()
	}
	var (
		ev       *models.RemoteEvent
		attempts int
	)
	err := g.do(ctx, "create", func() error {
		attempts++
		var err error
		ev, err = g.api.Insert(ctx, in)
		if attempts > 1 && IsConflict(err) {
			log.Printf("Remote event %s already created by an earlier attempt", in.ID)
			ev, err = g.api.Get(ctx, in.ID)
		}
		return err
	})
	return ev, err
}

// NewEventID returns a random event id in the base32hex alphabet Google
// Calendar accepts for client-supplied ids.
func NewEventID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (g *Gateway) Update(ctx context.Context, id string, in models.RemoteEventInput) (*models.RemoteEvent, error) {
	var ev *models.RemoteEvent
	err := g.do(ctx, "update", func() error {
		var err error
		ev, err = g.api.Update(ctx, id, in)
		return err
	})
	return ev, err
}

// Delete removes the event. An event that is already gone counts as deleted.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	err := g.do(ctx, "delete", func() error {
		return g.api.Delete(ctx, id)
	})
	if IsNotFound(err) {
		log.Printf("Remote event %s already deleted", id)
		return nil
	}
	return err
}

// do runs fn under the rate limiter, retrying transient failures with
// jittered exponential backoff up to MaxAttempts.
func (g *Gateway) do(ctx context.Context, op string, fn func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.opts.InitialInterval
	exp.MaxInterval = g.opts.MaxInterval
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(g.opts.MaxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		err := fn()
		if err == nil || IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)

	if err != nil && IsTransient(err) {
		return fmt.Errorf("failed to %s remote event after %d attempts: %w", op, attempts, err)
	}
	return err
}
