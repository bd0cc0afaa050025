package ui

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"gioui.org/f32"
	"gioui.org/font/gofont"
	"gioui.org/io/key"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"github.com/OpenTraceLab/OpenTraceLock/internal/config"
	"github.com/OpenTraceLab/OpenTraceLock/internal/session"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/render"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
)

const testTrace = `{
  "threads": [{"id": 1, "label": "main"}, {"id": 2, "label": "worker"}],
  "locks":   [{"id": "db"}, {"id": "cache"}],
  "events": [
    {"timestamp": 0,  "threadId": 1, "lockId": "db",    "kind": "AcquireRequested"},
    {"timestamp": 2,  "threadId": 1, "lockId": "db",    "kind": "Acquired"},
    {"timestamp": 6,  "threadId": 1, "lockId": "db",    "kind": "Released"},
    {"timestamp": 4,  "threadId": 2, "lockId": "cache", "kind": "Acquired"},
    {"timestamp": 10, "threadId": 2, "lockId": "cache", "kind": "Released"}
  ]
}`

func newTestController(t *testing.T, cfg *config.Config, cfgPath string) (*controller, *session.Session, *[]string) {
	t.Helper()
	sess := session.New(cfg, nil)
	sess.Resize(1000, 600)
	if err := sess.Load(strings.NewReader(testTrace), "test.json"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	var logs []string
	logf := func(format string, args ...any) {
		logs = append(logs, format)
	}
	r := render.NewRenderer(sess.Config().ColorTheme())
	return newController(sess, r, cfgPath, logf), sess, &logs
}

func TestKeyAction(t *testing.T) {
	tests := []struct {
		key  key.Name
		want action
	}{
		{"+", actZoomIn},
		{"=", actZoomIn},
		{"-", actZoomOut},
		{key.NameLeftArrow, actPanLeft},
		{key.NameRightArrow, actPanRight},
		{key.NameUpArrow, actLaneUp},
		{key.NameDownArrow, actLaneDown},
		{key.NameSpace, actReset},
		{"R", actReset},
		{"T", actTheme},
		{"O", actOpen},
		{"F", actFilter},
		{"Q", actQuit},
		{key.NameEscape, actQuit},
		{"X", actNone},
	}
	for _, tt := range tests {
		if got := keyAction(tt.key); got != tt.want {
			t.Errorf("keyAction(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
	if len(keyFilters) != len(tests)-1 {
		t.Errorf("%d key filters registered, want %d", len(keyFilters), len(tests)-1)
	}
}

func TestControllerKeys(t *testing.T) {
	c, sess, _ := newTestController(t, nil, "")

	if !c.apply(actZoomIn) {
		t.Fatal("zoom in not applied")
	}
	v := sess.View()
	if math.Abs(v.Zoom-125) > 1e-9 {
		t.Errorf("zoom = %v, want 125", v.Zoom)
	}
	// Zooming at the centre keeps the centre time.
	if mid := (v.VisibleStart + v.VisibleEnd) / 2; math.Abs(mid-5) > 1e-9 {
		t.Errorf("centre = %v, want 5", mid)
	}

	start := v.VisibleStart
	c.apply(actPanRight)
	if got := sess.View().VisibleStart; math.Abs(got-(start+50.0/125)) > 1e-9 {
		t.Errorf("pan right start = %v, want %v", got, start+50.0/125)
	}

	c.apply(actLaneDown)
	if sess.View().FirstLane != 1 {
		t.Errorf("first lane = %d, want 1", sess.View().FirstLane)
	}
	c.apply(actLaneUp)

	c.apply(actReset)
	if v := sess.View(); v.VisibleStart != 0 || v.VisibleEnd != 10 {
		t.Errorf("reset window = [%v, %v]", v.VisibleStart, v.VisibleEnd)
	}

	if c.apply(actOpen) || c.apply(actQuit) || c.apply(actNone) {
		t.Error("window actions should not be handled by the controller")
	}
}

func TestControllerThemeSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	c, sess, _ := newTestController(t, config.Default(), path)

	c.apply(actTheme)
	if got := sess.Config().ColorTheme(); got != timeline.ThemeLight {
		t.Errorf("theme = %v, want Light", got)
	}
	if c.renderer.Palette != timeline.ThemePalette(timeline.ThemeLight) {
		t.Error("renderer palette not switched")
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load saved config: %v", err)
	}
	if saved.ColorTheme() != timeline.ThemeLight {
		t.Errorf("saved theme = %q", saved.Theme)
	}
}

func TestControllerFilterCycle(t *testing.T) {
	cfg := config.Default()
	cfg.Filters = []string{"lock = cache", "thread ="}
	c, sess, logs := newTestController(t, cfg, "")

	c.apply(actFilter)
	if sess.Filter() != "lock = cache" || len(sess.Document().Threads) != 1 {
		t.Fatalf("first filter not applied: %q", sess.Filter())
	}

	// The broken filter is reported and the previous one stays active.
	c.apply(actFilter)
	if sess.Filter() != "lock = cache" {
		t.Errorf("filter = %q after invalid expression", sess.Filter())
	}
	if last := (*logs)[len(*logs)-1]; !strings.HasPrefix(last, "[ERROR]") {
		t.Errorf("last log = %q, want an error", last)
	}

	c.apply(actFilter)
	if sess.Filter() != "" || len(sess.Document().Threads) != 2 {
		t.Errorf("filter not cleared: %q", sess.Filter())
	}
}

func TestControllerPointer(t *testing.T) {
	c, sess, _ := newTestController(t, nil, "")
	press := func(x, y float32) pointer.Event {
		return pointer.Event{Kind: pointer.Press, Buttons: pointer.ButtonPrimary, Position: f32.Pt(x, y)}
	}

	// Click on the second lane (top margin 20, 30px pitch) selects it.
	c.pointer(press(300, 55))
	if !c.pointer(pointer.Event{Kind: pointer.Release, Position: f32.Pt(301, 55)}) {
		t.Fatal("click not handled")
	}
	if v := sess.View(); !v.HasSelection || v.SelectedLane != "2" {
		t.Errorf("selection = %q/%v, want lane 2", v.SelectedLane, v.HasSelection)
	}

	// Dragging pans and does not touch the selection.
	sess.ZoomAt(2, 500)
	before := sess.View().VisibleStart
	c.pointer(press(500, 55))
	c.pointer(pointer.Event{Kind: pointer.Drag, Buttons: pointer.ButtonPrimary, Position: f32.Pt(400, 55)})
	c.pointer(pointer.Event{Kind: pointer.Release, Position: f32.Pt(400, 55)})
	v := sess.View()
	if math.Abs(v.VisibleStart-(before+0.5)) > 1e-9 {
		t.Errorf("drag start = %v, want %v", v.VisibleStart, before+0.5)
	}
	if !v.HasSelection {
		t.Error("drag changed the selection")
	}

	// Scrolling up zooms in around the cursor.
	zoom := v.Zoom
	c.pointer(pointer.Event{Kind: pointer.Scroll, Position: f32.Pt(250, 100), Scroll: f32.Pt(0, -3)})
	if got := sess.View().Zoom; math.Abs(got-zoom*1.25) > 1e-9 {
		t.Errorf("zoom after scroll = %v, want %v", got, zoom*1.25)
	}
	c.pointer(pointer.Event{Kind: pointer.Scroll, Position: f32.Pt(250, 100), Scroll: f32.Pt(0, 3)})
	if got := sess.View().Zoom; math.Abs(got-zoom) > 1e-9 {
		t.Errorf("zoom after scroll back = %v, want %v", got, zoom)
	}

	// Secondary button presses are ignored.
	if c.pointer(pointer.Event{Kind: pointer.Press, Buttons: pointer.ButtonSecondary}) {
		t.Error("secondary press handled")
	}
}

func TestControllerHover(t *testing.T) {
	c, sess, _ := newTestController(t, nil, "")
	move := func(x, y float32) bool {
		return c.pointer(pointer.Event{Kind: pointer.Move, Position: f32.Pt(x, y)})
	}

	if c.hoverText() != "" {
		t.Errorf("hover text before hovering = %q", c.hoverText())
	}
	// Lane 1 holds db over [200, 600].
	if !move(300, 25) {
		t.Fatal("hovering a bar not handled")
	}
	if got := sess.View().HighlightLock; got != "db" {
		t.Errorf("highlight = %q, want db", got)
	}
	if got := c.hoverText(); got != "Lock: db" {
		t.Errorf("hover text = %q", got)
	}
	if move(350, 30) {
		t.Error("moving over the same lock reported a change")
	}

	// Lane 2 holds cache over [400, 1000].
	move(800, 55)
	if got := sess.View().HighlightLock; got != "cache" {
		t.Errorf("highlight = %q, want cache", got)
	}

	if !c.pointer(pointer.Event{Kind: pointer.Leave}) || sess.View().HighlightLock != "" {
		t.Error("leaving the canvas did not clear the highlight")
	}
}

func TestGioSurface(t *testing.T) {
	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	gtx := layout.Context{
		Ops:         new(op.Ops),
		Metric:      unit.Metric{PxPerDp: 1, PxPerSp: 1},
		Constraints: layout.Exact(image.Pt(200, 100)),
	}
	s := newGioSurface(gtx, th, unit.Sp(12))

	if w, h := s.Size(); w != 200 || h != 100 {
		t.Errorf("Size = %dx%d", w, h)
	}

	w1, h1 := s.MeasureText("FPS")
	w2, _ := s.MeasureText("FPS: 60")
	if w1 <= 0 || h1 <= 0 || w2 <= w1 {
		t.Errorf("MeasureText widths %v, %v height %v", w1, w2, h1)
	}

	// Drawing outside the surface is clipped away without panicking.
	r := render.NewRenderer(timeline.ThemeDark)
	r.Render(s, []timeline.Primitive{
		timeline.Bar{X0: -50, X1: 500, Y: 20, Height: 24},
		timeline.GridLine{X: 100, Label: "1.0"},
		timeline.LaneLabel{Y: 20, Height: 24, Text: "main"},
	}, 60)
	s.FillRect(300, 300, 400, 400, color.NRGBA{A: 0xff})
}
