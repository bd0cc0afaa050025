// Package config loads and saves the viewer settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

// Config stores persistent application settings. View state is never saved.
type Config struct {
	Theme string `toml:"theme"`
	// Filters are query expressions the viewer cycles through with F.
	Filters []string `toml:"filters"`

	Layout LayoutConfig `toml:"layout"`
	View   ViewConfig   `toml:"view"`
	Watch  WatchConfig  `toml:"watch"`
	Frame  FrameConfig  `toml:"frame"`
}

// LayoutConfig is the lane geometry in pixels.
type LayoutConfig struct {
	LaneHeight     float64 `toml:"lane_height"`
	LaneGap        float64 `toml:"lane_gap"`
	TopMargin      float64 `toml:"top_margin"`
	GridMinSpacing float64 `toml:"grid_min_spacing"`
}

// ViewConfig bounds navigation.
type ViewConfig struct {
	Overscroll float64 `toml:"overscroll"` // fraction of the trace extent
	MinZoom    float64 `toml:"min_zoom"`   // pixels per time unit, 0 = derive
	MaxZoom    float64 `toml:"max_zoom"`
	ZoomStep   float64 `toml:"zoom_step"` // factor per wheel notch or key press
	PanStep    float64 `toml:"pan_step"`  // pixels per arrow key press
}

// WatchConfig controls live reload of the open trace file.
type WatchConfig struct {
	Enabled    bool `toml:"enabled"`
	DebounceMs int  `toml:"debounce_ms"`
}

// FrameConfig controls the headless frame loop.
type FrameConfig struct {
	IntervalMs int  `toml:"interval_ms"`
	ShowFPS    bool `toml:"show_fps"`
}

// Default returns the built-in settings.
func Default() *Config {
	lc := timeline.DefaultLayoutConfig()
	return &Config{
		Theme: timeline.ThemeDark.String(),
		Layout: LayoutConfig{
			LaneHeight:     lc.LaneHeight,
			LaneGap:        lc.LaneGap,
			TopMargin:      lc.TopMargin,
			GridMinSpacing: lc.GridMinSpacing,
		},
		View: ViewConfig{
			Overscroll: 0.05,
			ZoomStep:   1.25,
			PanStep:    50,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 200,
		},
		Frame: FrameConfig{
			IntervalMs: 16,
			ShowFPS:    true,
		},
	}
}

// DefaultPath returns the config file location: $OTL_CONFIG if set,
// %APPDATA%\OpenTraceLock on Windows, ~/.config/opentracelock elsewhere.
func DefaultPath() string {
	if env := os.Getenv("OTL_CONFIG"); env != "" {
		return env
	}
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "OpenTraceLock", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "opentracelock", "config.toml")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Validate rejects settings that would break layout or navigation.
func (c *Config) Validate() error {
	if _, ok := timeline.ParseTheme(c.Theme); !ok {
		return fmt.Errorf("unknown theme %q", c.Theme)
	}
	if c.Layout.LaneHeight <= 0 {
		return fmt.Errorf("layout.lane_height must be positive, got %v", c.Layout.LaneHeight)
	}
	if c.Layout.LaneGap < 0 || c.Layout.TopMargin < 0 {
		return errors.New("layout.lane_gap and layout.top_margin must not be negative")
	}
	if c.Layout.GridMinSpacing <= 0 {
		return fmt.Errorf("layout.grid_min_spacing must be positive, got %v", c.Layout.GridMinSpacing)
	}
	if c.View.Overscroll < 0 {
		return fmt.Errorf("view.overscroll must not be negative, got %v", c.View.Overscroll)
	}
	if c.View.MinZoom < 0 || c.View.MaxZoom < 0 {
		return errors.New("view.min_zoom and view.max_zoom must not be negative")
	}
	if c.View.MaxZoom > 0 && c.View.MinZoom > c.View.MaxZoom {
		return fmt.Errorf("view.min_zoom %v exceeds view.max_zoom %v", c.View.MinZoom, c.View.MaxZoom)
	}
	if c.View.ZoomStep <= 1 {
		return fmt.Errorf("view.zoom_step must be greater than 1, got %v", c.View.ZoomStep)
	}
	if c.Watch.DebounceMs < 0 || c.Frame.IntervalMs <= 0 {
		return errors.New("watch.debounce_ms must not be negative and frame.interval_ms must be positive")
	}
	return nil
}

// ColorTheme returns the configured theme, ThemeDark if unknown.
func (c *Config) ColorTheme() timeline.ColorTheme {
	t, _ := timeline.ParseTheme(c.Theme)
	return t
}

// LayoutConfig converts the layout section for the layout engine.
func (c *Config) LayoutConfig() timeline.LayoutConfig {
	return timeline.LayoutConfig{
		LaneHeight:     c.Layout.LaneHeight,
		LaneGap:        c.Layout.LaneGap,
		TopMargin:      c.Layout.TopMargin,
		GridMinSpacing: c.Layout.GridMinSpacing,
	}
}

// Limits builds view limits for a trace extent.
func (c *Config) Limits(extent trace.Extent) timeline.Limits {
	return timeline.Limits{
		Extent:     extent,
		Overscroll: c.View.Overscroll,
		MinZoom:    c.View.MinZoom,
		MaxZoom:    c.View.MaxZoom,
	}
}

// Debounce returns the live reload debounce delay.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// FrameInterval returns the headless frame period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.Frame.IntervalMs) * time.Millisecond
}
