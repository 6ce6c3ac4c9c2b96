package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending database migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, config.NeedDatabase)
			if err != nil {
				return err
			}
			defer e.Close()

			if status {
				applied, err := e.db.AppliedMigrations(ctx)
				if err != nil {
					return err
				}
				pending, err := e.db.PendingMigrations(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range applied {
					fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04"))
				}
				for _, v := range pending {
					fmt.Fprintf(out, "pending  %s\n", v)
				}
				return nil
			}

			if err := e.db.Migrate(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to run migrations", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database migrations completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "list applied and pending migrations")
	return cmd
}
