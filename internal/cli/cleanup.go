package cli

import (
	"github.com/spf13/cobra"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/models"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/retention"
)

func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		communityID int64
		fromDate    string
		keepRules   bool
		sweep       bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete a community's events from a date on, locally and remotely",
		Long: `Cleanup removes the community's events dated on or after --from-date and,
unless --keep-rules is given, its recurrence rules. Remote events are deleted
by their stored ids; when some ids are missing, the calendar is searched by
the community name, but only if no other active community shares it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := models.ParseDate(fromDate)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --from-date", err)
			}

			ctx := cmd.Context()
			e, err := setup(ctx, config.NeedDatabase|config.NeedCalendar)
			if err != nil {
				return err
			}
			defer e.Close()

			community, err := e.store.CommunityRepository.GetByID(ctx, communityID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load community", err)
			}

			cleaner := retention.New(e.store, e.cal, retention.Options{
				Location:   e.loc,
				WindowDays: e.cfg.Sync.RetentionWindowDays,
				Years:      e.cfg.Sync.RetentionYears,
			})
			res, err := cleaner.Cleanup(ctx, community, from, retention.CleanupOptions{
				DeleteRules: !keepRules,
				Sweep:       sweep,
				DryRun:      dryRun,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to clean up", err)
			}
			if err := writeResult(cmd.OutOrStdout(), rootOpts.Format, res, asErrors(res.Errors)); err != nil {
				return err
			}
			return partial("cleanup", len(res.Errors))
		},
	}

	cmd.Flags().Int64Var(&communityID, "community", 0, "community id")
	cmd.Flags().StringVar(&fromDate, "from-date", "", "first date to delete (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&keepRules, "keep-rules", false, "keep the community's recurrence rules")
	cmd.Flags().BoolVar(&sweep, "sweep", false, "always search the calendar by community name")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted")
	_ = cmd.MarkFlagRequired("community")
	_ = cmd.MarkFlagRequired("from-date")
	return cmd
}
