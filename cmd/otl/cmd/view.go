package cmd

import (
	"fmt"
	"os"

	"gioui.org/app"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceLock/internal/session"
	"github.com/OpenTraceLab/OpenTraceLock/internal/ui"
)

var (
	viewFilter  string
	viewNoWatch bool
)

var viewCmd = &cobra.Command{
	Use:   "view [trace.json]",
	Short: "Open the interactive viewer",
	Long: `Open a trace in the interactive viewer. Without a file the viewer starts
empty; press O to pick one.

Controls:
  drag            pan
  wheel, +/-      zoom (at the cursor for the wheel)
  click           select or clear a lane
  left/right      pan
  up/down         scroll lanes
  space, R        show the whole trace
  T               cycle colour theme
  F               cycle filters from the config file
  O               open a trace
  Q, Esc          quit

Note: If keyboard doesn't work on Wayland, run with GIO_BACKEND=x11.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if viewNoWatch {
			cfg.Watch.Enabled = false
		}

		logger := newLogger()
		sess := session.New(cfg, logger)
		if viewFilter != "" {
			if err := sess.SetFilter(viewFilter); err != nil {
				return fmt.Errorf("invalid filter: %w", err)
			}
		}

		go func() {
			w := new(app.Window)
			viewer := ui.New(w, ui.Options{Session: sess, Logger: logger, ConfigPath: path})
			if len(args) == 1 {
				viewer.Open(args[0])
			}
			if err := viewer.Run(); err != nil {
				logger.Error("viewer failed", "error", err)
				os.Exit(1)
			}
			os.Exit(0)
		}()
		app.Main()
		return nil
	},
}

func init() {
	viewCmd.Flags().StringVar(&viewFilter, "filter", "", "only show threads with events matching this filter")
	viewCmd.Flags().BoolVar(&viewNoWatch, "no-watch", false, "do not reload the trace when the file changes")
	rootCmd.AddCommand(viewCmd)
}
