package cli

import (
	"github.com/spf13/cobra"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/reconciler"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		days          int
		communityID   int64
		authoritative bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the upcoming window with Google Calendar",
		Long: `Sync pushes every local instance in the window to the calendar, adopting
remote events that already match and updating drifted ones. With
--authoritative, remote events in the window that no local instance claims
are deleted.`,
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

			rec := reconciler.New(e.store, e.cal, reconciler.Options{Location: e.loc, Workers: e.cfg.Sync.Workers})
			window := e.window(days)

			var res *reconciler.Result
			if communityID != 0 {
				var community *models.Community
				community, err = e.store.CommunityRepository.GetByID(ctx, communityID)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load community", err)
				}
				res, err = rec.Reconcile(ctx, community, window, authoritative)
			} else {
				res, err = rec.ReconcileAll(ctx, window, authoritative)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to reconcile", err)
			}
			if err := writeResult(cmd.OutOrStdout(), rootOpts.Format, res, asErrors(res.Errors)); err != nil {
				return err
			}
			return partial("sync", len(res.Errors))
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "window length in days from today (default from sync config)")
	cmd.Flags().Int64Var(&communityID, "community", 0, "reconcile a single community")
	cmd.Flags().BoolVar(&authoritative, "authoritative", false, "delete unmatched remote events in the window")
	return cmd
}
