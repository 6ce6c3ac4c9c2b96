package cli

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/expander"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/icsfeed"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/reconciler"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/scheduler"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/server"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr      string
		noHTTP    bool
		accessLog bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the expand and sync cycle on the configured schedule",
		Long: `Serve migrates the database, then runs expand followed by a
non-authoritative sync once at start and on every tick of the cron schedule.
It also serves the ICS feed at /calendar.ics and accepts POST /api/sync to
trigger a cycle immediately.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, config.NeedDatabase|config.NeedCalendar)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.db.Migrate(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to run migrations", err)
			}
			log.Println("Database migrations completed")

			sync := e.cfg.Sync
			exp := expander.New(e.store, e.clock(), expander.Options{
				HorizonMonths: sync.HorizonMonths,
				Workers:       sync.Workers,
				Location:      e.loc,
			})
			rec := reconciler.New(e.store, e.cal, reconciler.Options{Location: e.loc, Workers: sync.Workers})
			sched, err := scheduler.New(exp, rec, scheduler.Options{
				Schedule:      sync.Schedule,
				HorizonMonths: sync.HorizonMonths,
				WindowDays:    sync.SyncWindowDays,
				Location:      e.loc,
				StartDelay:    2 * time.Second,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid schedule", err)
			}

			if noHTTP {
				sched.Start(ctx)
				return nil
			}

			go sched.Start(ctx)
			feed := icsfeed.New(e.store, icsfeed.Options{Location: e.loc})
			srv := server.New(feed, sched, server.Options{
				WindowDays: sync.SyncWindowDays,
				Location:   e.loc,
				AccessLog:  accessLog,
			})
			if addr == "" {
				addr = e.cfg.ServeAddr
			}
			if err := srv.Listen(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitCommandError, "HTTP server error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default SERVE_ADDR or :8080)")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "run the schedule without the HTTP server")
	cmd.Flags().BoolVar(&accessLog, "access-log", false, "log every HTTP request")
	return cmd
}
