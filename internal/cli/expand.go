package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/expander"
)

func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		months   int
		dryRun   bool
		masterID int64
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Materialize upcoming instances of every active recurring master",
		Long: `Expand generates the occurrences of each active community's rule over the
horizon and inserts the ones whose slot is still free. Past dates are never
backfilled and re-running is a no-op.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, config.NeedDatabase)
			if err != nil {
				return err
			}
			defer e.Close()

			if months <= 0 {
				months = e.cfg.Sync.HorizonMonths
			}
			exp := expander.New(e.store, e.clock(), expander.Options{
				HorizonMonths: months,
				Workers:       e.cfg.Sync.Workers,
				Location:      e.loc,
				DryRun:        dryRun,
			})
			if masterID != 0 {
				return expandMaster(cmd, rootOpts.Format, e, exp, masterID)
			}

			res, err := exp.ExpandAll(ctx, months)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to expand", err)
			}
			if err := writeResult(cmd.OutOrStdout(), rootOpts.Format, res, asErrors(res.Errors)); err != nil {
				return err
			}
			return partial("expand", len(res.Errors))
		},
	}

	cmd.Flags().IntVar(&months, "months", 0, "horizon in months (default from sync config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count instances without writing them")
	cmd.Flags().Int64Var(&masterID, "master", 0, "expand a single recurring master by event id")
	return cmd
}

// MasterResult is the output of expanding one master.
type MasterResult struct {
	MasterID int64    `json:"master_id"`
	Created  int      `json:"created"`
	Errors   []string `json:"errors,omitempty"`
}

func expandMaster(cmd *cobra.Command, format string, e *env, exp *expander.Expander, masterID int64) error {
	ctx := cmd.Context()
	master, err := e.store.EventRepository.GetByID(ctx, masterID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load master", err)
	}
	if !master.IsRecurringMaster {
		return WrapExitError(ExitCommandError, "invalid --master", fmt.Errorf("event %d is not a recurring master", masterID))
	}

	created, expandErr := exp.Expand(ctx, master)
	// Per-instance failures come back joined; anything else failed the master.
	itemErrs := unwrapJoined(expandErr)
	if expandErr != nil && itemErrs == nil {
		return WrapExitError(ExitCommandError, "failed to expand", expandErr)
	}

	res := MasterResult{MasterID: masterID, Created: created}
	for _, ie := range itemErrs {
		res.Errors = append(res.Errors, ie.Error())
	}
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "master=%d created=%d errors=%d\n", masterID, created, len(itemErrs))
		for _, ie := range itemErrs {
			fmt.Fprintf(out, "  error: %v\n", ie)
		}
	}
	return partial("expand", len(itemErrs))
}

// unwrapJoined returns the errors joined by errors.Join, or nil for any
// other error.
func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return nil
}
