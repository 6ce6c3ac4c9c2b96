package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the meetupsync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "meetupsync",
		Short: "Materialize community meetups and mirror them to Google Calendar",
		Long: `meetupsync expands each community's recurrence rule into concrete events
and keeps a shared Google Calendar in step with them.

Credentials come from the environment (or a .env file): DATABASE_URI,
GOOGLE_CALENDAR_ID, GOOGLE_CALENDAR_CREDENTIALS, AI_API_KEY. Tuning knobs
are read from the YAML file named by SYNC_CONFIG.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewExportICSCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}
