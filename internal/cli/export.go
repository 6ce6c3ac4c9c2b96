package cli

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/config"
	"github.com/noricha-vr/vrc-ta-hub-sub001/internal/icsfeed"
)

func NewExportICSCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		days   int
		output string
		name   string
	)

	cmd := &cobra.Command{
		Use:           "export-ics",
		Short:         "Write the upcoming window as an iCalendar feed",
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

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output file", err)
				}
				defer f.Close()
				w = f
			}

			feed := icsfeed.New(e.store, icsfeed.Options{Name: name, Location: e.loc})
			window := e.window(days)
			n, err := feed.Write(ctx, w, window)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to export feed", err)
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d events for %s to %s\n", n, window, output)
			} else {
				log.Printf("Exported %d events for %s", n, window)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "window length in days from today (default from sync config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&name, "name", "Community meetups", "calendar name")
	return cmd
}
