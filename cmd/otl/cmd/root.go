package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceLock/internal/config"
	"github.com/OpenTraceLab/OpenTraceLock/internal/session"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
)

var (
	// Global flags
	verbose    bool
	configPath string
	themeName  string
)

var rootCmd = &cobra.Command{
	Use:   "otl",
	Short: "OpenTraceLock - lock contention trace viewer",
	Long: `OpenTraceLock (otl) visualizes lock contention traces recorded by a
profiler: one lane per thread, with wait and hold segments for every lock
acquisition on a shared timeline.

Examples:
  otl view trace.json                       # Interactive viewer
  otl render trace.json -o trace.png        # Export the timeline as PNG
  otl stats trace.json                      # Per-lock wait/hold statistics
  otl info trace.json                       # Document summary and warnings
  otl bench trace.json --frames 600         # Headless frame loop benchmark`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is the platform config directory)")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "", "colour theme: Dark, Light, Nord or Solarized")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file and applies the global flag overrides.
// It also returns the path theme changes should be saved to.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if themeName != "" {
		t, ok := timeline.ParseTheme(themeName)
		if !ok {
			return nil, "", fmt.Errorf("unknown theme %q", themeName)
		}
		cfg.Theme = t.String()
	}
	return cfg, path, nil
}

// openTrace loads path synchronously into a new session with filter applied.
func openTrace(cfg *config.Config, path, filter string) (*session.Session, error) {
	sess := session.New(cfg, newLogger())
	if filter != "" {
		if err := sess.SetFilter(filter); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
	}
	if err := sess.LoadFile(path); err != nil {
		return nil, err
	}
	return sess, nil
}
