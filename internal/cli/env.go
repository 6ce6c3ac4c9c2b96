package cli

import (
	"context"
	"log"
	"time"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/ai"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/database"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/gcal"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/repository"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/rrule"
)

// env is the wiring shared by the commands. Only what need asks for is
// connected.
type env struct {
	cfg   *config.Config
	loc   *time.Location
	db    *database.DB
	store *repository.Store
	cal   *gcal.Gateway
}

func setup(ctx context.Context, need config.Requirement) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.Validate(need); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	e := &env{cfg: cfg, loc: loc}
	if need&config.NeedDatabase != 0 {
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to database", err)
		}
		e.db = db
		e.store = repository.NewStore(db)
	}
	if need&config.NeedCalendar != 0 {
		api, err := gcal.NewGoogleAPI(ctx, cfg.CalendarID, cfg.CalendarCredentials)
		if err != nil {
			e.Close()
			return nil, WrapExitError(ExitCommandError, "failed to create calendar client", err)
		}
		e.cal = gcal.NewGateway(api, gcal.Options{
			RatePerSecond: cfg.Sync.RatePerSecond,
			Burst:         cfg.Sync.Burst,
			MaxAttempts:   cfg.Sync.MaxAttempts,
		})
	}
	return e, nil
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// clock returns a rule clock that resolves free-text rules when an AI key is
// configured.
func (e *env) clock() *rrule.Clock {
	return newClock(e.cfg)
}

func newClock(cfg *config.Config) *rrule.Clock {
	if cfg.AIAPIKey == "" {
		log.Println("AI client not configured, free-text rules are skipped")
		return rrule.NewClock(nil)
	}
	log.Printf("AI client initialized (model: %s)", cfg.AIModel)
	return rrule.NewClock(ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel))
}

func (e *env) window(days int) models.Window {
	if days <= 0 {
		days = e.cfg.Sync.SyncWindowDays
	}
	return models.NewWindow(models.Today(time.Now(), e.loc), days)
}

func asErrors(items []models.ItemError) []error {
	out := make([]error, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}
