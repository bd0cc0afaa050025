// Package frame drives the repaint loop: one Tick per display refresh
// lays out the latest view and hands the primitives to the renderer.
package frame

import (
	"context"
	"math"
	"time"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/render"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

// Snapshot is everything one frame is drawn from. Doc may be nil while no
// trace is loaded.
type Snapshot struct {
	Doc    *trace.Document
	View   timeline.View
	Layout timeline.LayoutConfig
}

// Source hands out the latest state at the start of each frame.
type Source interface {
	Snapshot() Snapshot
}

// Painter paints one frame; *render.Renderer satisfies it.
type Painter interface {
	Render(s render.Surface, prims []timeline.Primitive, fps int)
}

// Stats describes one frame.
type Stats struct {
	Frame         int
	SecondsPassed float64
	FPS           int
	Primitives    int
	Bars          int
	Skipped       bool  // nothing drawn, see Err
	Err           error // *timeline.ViewportError when the surface is empty
}

// Scheduler measures frame timing and runs layout and render per tick.
// It is not safe for concurrent use; Tick is called from the frame loop only.
type Scheduler struct {
	source  Source
	painter Painter
	request func()

	prev    time.Duration
	hasPrev bool
	fps     int
	frames  int
}

// NewScheduler creates a scheduler. request, if non-nil, is called at the end
// of every tick to ask the host for the next frame.
func NewScheduler(source Source, painter Painter, request func()) *Scheduler {
	return &Scheduler{source: source, painter: painter, request: request}
}

// FPS returns the most recent frame rate, 0 before the second frame.
func (s *Scheduler) FPS() int {
	return s.fps
}

// Tick draws one frame. ts is a monotonic timestamp; the first call only
// records it. A zero or negative delta keeps the previous frame rate.
func (s *Scheduler) Tick(ts time.Duration, surface render.Surface) Stats {
	st := Stats{Frame: s.frames}
	s.frames++

	if s.hasPrev {
		if delta := ts - s.prev; delta > 0 {
			st.SecondsPassed = delta.Seconds()
			s.fps = int(math.Round(float64(time.Second) / float64(delta)))
		}
	}
	s.prev, s.hasPrev = ts, true
	st.FPS = s.fps

	defer func() {
		if s.request != nil {
			s.request()
		}
	}()

	w, h := surface.Size()
	if err := timeline.CheckViewport(w, h); err != nil {
		st.Skipped, st.Err = true, err
		return st
	}

	snap := s.source.Snapshot()
	prims := timeline.Layout(snap.Doc, snap.View, w, h, snap.Layout)
	s.painter.Render(surface, prims, s.fps)

	st.Primitives = len(prims)
	for _, p := range prims {
		if _, ok := p.(timeline.Bar); ok {
			st.Bars++
		}
	}
	return st
}

// Run ticks at interval until ctx is cancelled or onFrame returns false.
// It is the headless counterpart of a display-driven loop.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, surface render.Surface, onFrame func(Stats) bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		st := s.Tick(time.Since(start), surface)
		if onFrame != nil && !onFrame(st) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
