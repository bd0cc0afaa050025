package frame

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/render"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

type staticSource struct {
	snap  Snapshot
	calls int
}

func (s *staticSource) Snapshot() Snapshot {
	s.calls++
	return s.snap
}

type countingPainter struct {
	frames []int // fps per rendered frame
	prims  int
}

func (p *countingPainter) Render(_ render.Surface, prims []timeline.Primitive, fps int) {
	p.frames = append(p.frames, fps)
	p.prims = len(prims)
}

func testSnapshot(t *testing.T) Snapshot {
	t.Helper()
	doc, _ := trace.Build(
		[]trace.Thread{{ID: "t"}},
		[]trace.Lock{{ID: "L"}},
		[]trace.Event{
			{Timestamp: 0, ThreadID: "t", LockID: "L", Kind: trace.AcquireRequested},
			{Timestamp: 1, ThreadID: "t", LockID: "L", Kind: trace.Acquired, Index: 1},
			{Timestamp: 5, ThreadID: "t", LockID: "L", Kind: trace.Released, Index: 2},
		})
	view := timeline.NewView(100, timeline.Limits{Extent: doc.Extent()})
	return Snapshot{Doc: doc, View: view, Layout: timeline.DefaultLayoutConfig()}
}

func TestTickFPS(t *testing.T) {
	src := &staticSource{snap: testSnapshot(t)}
	painter := &countingPainter{}
	requested := 0
	s := NewScheduler(src, painter, func() { requested++ })
	surface := render.NewImageSurface(100, 80)

	first := s.Tick(0, surface)
	if first.FPS != 0 || first.SecondsPassed != 0 {
		t.Errorf("first frame = %+v, want no fps", first)
	}

	second := s.Tick(16*time.Millisecond, surface)
	if second.FPS != 63 {
		t.Errorf("fps = %d, want 63", second.FPS)
	}
	if second.SecondsPassed != 0.016 {
		t.Errorf("secondsPassed = %v, want 0.016", second.SecondsPassed)
	}

	// Zero delta keeps the previous value.
	third := s.Tick(16*time.Millisecond, surface)
	if third.FPS != 63 {
		t.Errorf("fps after zero delta = %d, want 63", third.FPS)
	}

	if want := []int{0, 63, 63}; len(painter.frames) != 3 || painter.frames[1] != want[1] {
		t.Errorf("painter saw fps %v, want %v", painter.frames, want)
	}
	if src.calls != 3 {
		t.Errorf("snapshot read %d times, want once per frame", src.calls)
	}
	if requested != 3 {
		t.Errorf("next frame requested %d times, want 3", requested)
	}
	if second.Bars != 2 || second.Primitives <= second.Bars {
		t.Errorf("frame stats = %+v, want 2 bars plus grid and label", second)
	}
}

func TestTickNoDocument(t *testing.T) {
	src := &staticSource{snap: Snapshot{Layout: timeline.DefaultLayoutConfig()}}
	painter := &countingPainter{}
	s := NewScheduler(src, painter, nil)

	st := s.Tick(0, render.NewImageSurface(50, 50))
	if st.Skipped || st.Primitives != 0 {
		t.Errorf("stats = %+v, want an empty frame", st)
	}
	if len(painter.frames) != 1 {
		t.Error("an empty frame should still be painted")
	}
}

func TestTickZeroViewport(t *testing.T) {
	src := &staticSource{snap: testSnapshot(t)}
	painter := &countingPainter{}
	s := NewScheduler(src, painter, nil)

	st := s.Tick(0, render.NewImageSurface(0, 10))
	var verr *timeline.ViewportError
	if !st.Skipped || !errors.As(st.Err, &verr) {
		t.Errorf("stats = %+v, want skipped with *ViewportError", st)
	}
	if len(painter.frames) != 0 {
		t.Error("painted into a zero-width surface")
	}

	// Timing still advances.
	if st := s.Tick(10*time.Millisecond, render.NewImageSurface(10, 10)); st.FPS != 100 {
		t.Errorf("fps = %d, want 100", st.FPS)
	}
}

func TestRun(t *testing.T) {
	src := &staticSource{snap: testSnapshot(t)}
	s := NewScheduler(src, &countingPainter{}, nil)

	frames := 0
	err := s.Run(context.Background(), time.Millisecond, render.NewImageSurface(40, 40), func(st Stats) bool {
		frames++
		return st.Frame < 4
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if frames != 5 {
		t.Errorf("ran %d frames, want 5", frames)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, time.Hour, render.NewImageSurface(40, 40), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run after cancel = %v, want context.Canceled", err)
	}
}
