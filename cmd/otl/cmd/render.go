package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/frame"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/render"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

var (
	renderOutput string
	renderStart  float64
	renderEnd    float64
	renderWidth  int
	renderHeight int
	renderSelect string
	renderFilter string
	renderFPS    bool
)

var renderCmd = &cobra.Command{
	Use:   "render <trace.json>",
	Short: "Render the timeline to a PNG image",
	Long: `Render a trace through the same layout and renderer as the viewer and
write the result as a PNG image.

Examples:
  otl render trace.json -o trace.png
  otl render trace.json --start 1.5 --end 2.0 --width 2400
  otl render trace.json --filter 'lock = db' --select 7 --theme light`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := openTrace(cfg, args[0], renderFilter)
		if err != nil {
			return err
		}
		doc := sess.Document()

		height := renderHeight
		if height <= 0 {
			height = lanesHeight(cfg.LayoutConfig(), len(doc.Threads))
		}
		if err := timeline.CheckViewport(renderWidth, height); err != nil {
			return err
		}
		sess.Resize(renderWidth, height)

		if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
			v := sess.View()
			start, end := v.VisibleStart, v.VisibleEnd
			if cmd.Flags().Changed("start") {
				start = renderStart
			}
			if cmd.Flags().Changed("end") {
				end = renderEnd
			}
			if !(end > start) {
				return fmt.Errorf("invalid time range [%g, %g]", start, end)
			}
			sess.ShowRange(start, end)
		}
		if renderSelect != "" {
			id := trace.ID(renderSelect)
			if _, ok := doc.ThreadIndex(id); !ok {
				return fmt.Errorf("unknown thread %q", renderSelect)
			}
			sess.SelectLane(id, true)
		}

		r := render.NewRenderer(cfg.ColorTheme())
		r.ShowFPS = renderFPS
		surface := render.NewImageSurface(renderWidth, height)
		st := frame.NewScheduler(sess, r, nil).Tick(0, surface)
		if st.Err != nil {
			return st.Err
		}

		out := renderOutput
		if out == "" {
			out = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])) + ".png"
		}
		if err := surface.SavePNG(out); err != nil {
			return err
		}

		v := sess.View()
		fmt.Printf("Wrote %s (%dx%d)\n", out, renderWidth, height)
		fmt.Printf("  Window: %g to %g\n", v.VisibleStart, v.VisibleEnd)
		fmt.Printf("  Bars: %d of %d spans\n", st.Bars, doc.SpanCount())
		return nil
	},
}

// lanesHeight fits every lane of a document.
func lanesHeight(cfg timeline.LayoutConfig, lanes int) int {
	h := cfg.TopMargin + float64(lanes)*(cfg.LaneHeight+cfg.LaneGap)
	return max(int(h+0.5), int(cfg.TopMargin+cfg.LaneHeight+cfg.LaneGap))
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output PNG file (default <trace>.png)")
	renderCmd.Flags().Float64Var(&renderStart, "start", 0, "start of the visible window (default trace start)")
	renderCmd.Flags().Float64Var(&renderEnd, "end", 0, "end of the visible window (default trace end)")
	renderCmd.Flags().IntVar(&renderWidth, "width", 1600, "image width in pixels")
	renderCmd.Flags().IntVar(&renderHeight, "height", 0, "image height in pixels (default fits all lanes)")
	renderCmd.Flags().StringVar(&renderSelect, "select", "", "thread id of the lane to highlight")
	renderCmd.Flags().StringVar(&renderFilter, "filter", "", "only show threads with events matching this filter")
	renderCmd.Flags().BoolVar(&renderFPS, "fps", false, "draw the FPS overlay")
	rootCmd.AddCommand(renderCmd)
}
