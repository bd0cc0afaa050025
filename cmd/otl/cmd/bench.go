package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/frame"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/render"
)

var (
	benchFrames   int
	benchWidth    int
	benchHeight   int
	benchInterval time.Duration
	benchFilter   string
)

var benchCmd = &cobra.Command{
	Use:   "bench <trace.json>",
	Short: "Run the frame loop headless and report frame statistics",
	Long: `Drive the frame scheduler against an off-screen surface for a number of
frames. Every frame zooms in or out a step around the centre so layout and
culling are exercised at several scales.

Examples:
  otl bench trace.json
  otl bench trace.json --frames 1000 --interval 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if benchFrames <= 0 {
			return fmt.Errorf("--frames must be positive")
		}
		sess, err := openTrace(cfg, args[0], benchFilter)
		if err != nil {
			return err
		}
		sess.Resize(benchWidth, benchHeight)

		interval := benchInterval
		if !cmd.Flags().Changed("interval") {
			interval = cfg.FrameInterval()
		}
		if interval <= 0 {
			interval = time.Microsecond
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		r := render.NewRenderer(cfg.ColorTheme())
		r.ShowFPS = cfg.Frame.ShowFPS
		surface := render.NewImageSurface(benchWidth, benchHeight)
		sched := frame.NewScheduler(sess, r, nil)

		var frames, prims, bars, maxBars int
		zoomIn := true
		start := time.Now()
		err = sched.Run(ctx, interval, surface, func(st frame.Stats) bool {
			if st.Err != nil {
				return false
			}
			frames++
			prims += st.Primitives
			bars += st.Bars
			maxBars = max(maxBars, st.Bars)

			// Alternate zoom direction every 30 frames.
			if frames%30 == 0 {
				zoomIn = !zoomIn
			}
			notches := 1.0
			if !zoomIn {
				notches = -1
			}
			sess.ZoomSteps(notches, float64(benchWidth)/2)
			return frames < benchFrames
		})
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		if frames == 0 {
			return fmt.Errorf("no frames drawn")
		}

		fmt.Printf("Benchmark: %s\n", args[0])
		fmt.Printf("  Frames:           %d\n", frames)
		fmt.Printf("  Elapsed:          %s\n", elapsed.Round(time.Millisecond))
		fmt.Printf("  Scheduler FPS:    %d\n", sched.FPS())
		fmt.Printf("  Primitives/frame: %.1f\n", float64(prims)/float64(frames))
		fmt.Printf("  Bars/frame:       %.1f (max %d)\n", float64(bars)/float64(frames), maxBars)
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchFrames, "frames", 120, "number of frames to draw")
	benchCmd.Flags().IntVar(&benchWidth, "width", 1600, "surface width in pixels")
	benchCmd.Flags().IntVar(&benchHeight, "height", 900, "surface height in pixels")
	benchCmd.Flags().DurationVar(&benchInterval, "interval", 0, "time between frames (default from config)")
	benchCmd.Flags().StringVar(&benchFilter, "filter", "", "only show threads with events matching this filter")
	rootCmd.AddCommand(benchCmd)
}
