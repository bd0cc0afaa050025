package timeline

import (
	"fmt"
	"math"
	"strconv"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

// Primitive is one drawable item produced by Layout. The concrete type is
// one of Bar, GridLine or LaneLabel.
type Primitive interface {
	primitive()
}

// BarClass is the colour class of a bar.
type BarClass int

const (
	ClassHold   BarClass = iota // Acquired -> Released
	ClassWait                   // AcquireRequested -> Acquired
	ClassMerged                 // several sub-pixel spans in one pixel column
)

func (c BarClass) String() string {
	switch c {
	case ClassWait:
		return "wait"
	case ClassMerged:
		return "merged"
	default:
		return "hold"
	}
}

// Bar is a horizontal segment in a lane, in pixel coordinates.
type Bar struct {
	Lane   int
	Thread trace.ID
	Lock   trace.ID // first lock of a merged bar
	X0, X1 float64
	Y      float64
	Height float64
	Class  BarClass

	// Count is the number of spans the bar covers; more than one only for
	// merged bars.
	Count int
	Heat  float64
	Mixed bool // merged spans on more than one lock

	Unterminated bool
	Selected     bool
	Highlighted  bool // covers the view's highlighted lock

	// FirstEvent and LastEvent are indices into Document.Events.
	FirstEvent int
	LastEvent  int
}

// GridLine is a vertical time marker.
type GridLine struct {
	X     float64
	Time  float64
	Label string
}

// LaneLabel names a lane. Y and Height describe the whole lane band.
type LaneLabel struct {
	Lane     int
	Thread   trace.ID
	Y        float64
	Height   float64
	Text     string
	Selected bool
}

func (Bar) primitive()       {}
func (GridLine) primitive()  {}
func (LaneLabel) primitive() {}

// LayoutConfig holds the fixed geometry of the timeline.
type LayoutConfig struct {
	LaneHeight     float64
	LaneGap        float64
	TopMargin      float64 // room for grid labels above the first lane
	GridMinSpacing float64 // pixels between grid lines, at least
}

// DefaultLayoutConfig returns the geometry used when nothing is configured.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		LaneHeight:     24,
		LaneGap:        6,
		TopMargin:      20,
		GridMinSpacing: 50,
	}
}

// ViewportError reports a viewport that cannot be drawn into.
type ViewportError struct {
	Width  int
	Height int
}

func (e *ViewportError) Error() string {
	return fmt.Sprintf("invalid viewport %dx%d", e.Width, e.Height)
}

// CheckViewport returns a *ViewportError for zero or negative sizes.
func CheckViewport(width, height int) error {
	if width <= 0 || height <= 0 {
		return &ViewportError{Width: width, Height: height}
	}
	return nil
}

// niceSteps are the mantissas grid intervals are chosen from.
var niceSteps = [...]float64{1, 2, 5}

// GridInterval returns the smallest interval of the form {1,2,5}x10^k whose
// spacing at scale (pixels per time unit) is at least minSpacing pixels.
// Consecutive candidates differ by at most 2.5x, so with the default
// 50px minimum the spacing stays below 125px.
func GridInterval(scale, minSpacing float64) float64 {
	if !(scale > 0) || math.IsInf(scale, 0) || !(minSpacing > 0) {
		return 0
	}
	target := minSpacing / scale
	exp := math.Floor(math.Log10(target))
	need := minSpacing * (1 - 1e-9) // powers of ten are inexact
	for {
		base := math.Pow(10, exp)
		for _, m := range niceSteps {
			if iv := m * base; iv*scale >= need {
				return iv
			}
		}
		exp++
	}
}

// FormatTime renders a grid time with as many decimals as the interval needs.
func FormatTime(t, interval float64) string {
	decimals := 0
	if interval > 0 {
		if d := -math.Floor(math.Log10(interval)); d > 0 {
			decimals = int(d)
		}
	}
	if t == 0 {
		t = 0 // avoid "-0"
	}
	return strconv.FormatFloat(t, 'f', decimals, 64)
}

// Layout maps a document and view onto drawable primitives for a viewport
// of width x height pixels. It is pure: identical arguments produce
// identical output. A nil document or an invalid viewport yields nothing.
//
// Primitives are emitted grid first, then per lane a label followed by its
// bars in span order. At most one bar starts in each pixel column: wait and
// hold segments that begin in an occupied column are merged into the bar
// already there, so a lane never holds more bars than width.
func Layout(doc *trace.Document, view View, width, height int, cfg LayoutConfig) []Primitive {
	if doc == nil || CheckViewport(width, height) != nil {
		return nil
	}
	start, end := view.VisibleStart, view.VisibleEnd
	if !(end > start) {
		return nil
	}
	w, h := float64(width), float64(height)
	scale := w / (end - start)

	var prims []Primitive
	prims = appendGrid(prims, start, end, scale, w, cfg)

	pitch := cfg.LaneHeight + cfg.LaneGap
	first := max(view.FirstLane, 0)
	for i := first; i < len(doc.Threads); i++ {
		y := cfg.TopMargin + float64(i-first)*pitch
		if y >= h {
			break
		}
		th := doc.Threads[i]
		selected := view.HasSelection && view.SelectedLane == th.ID
		prims = append(prims, LaneLabel{
			Lane: i, Thread: th.ID, Y: y, Height: cfg.LaneHeight,
			Text: th.Name(), Selected: selected,
		})
		lb := newLaneBuilder(doc, view, i, y, w, cfg)
		lb.selected = selected
		prims = lb.appendBars(prims)
	}
	return prims
}

func appendGrid(prims []Primitive, start, end, scale, w float64, cfg LayoutConfig) []Primitive {
	interval := GridInterval(scale, cfg.GridMinSpacing)
	if interval <= 0 {
		return prims
	}
	k0 := math.Ceil(start / interval)
	for k := k0; ; k++ {
		t := k * interval
		if t > end {
			break
		}
		x := (t - start) * scale
		if x > w {
			break
		}
		prims = append(prims, GridLine{X: x, Time: t, Label: FormatTime(t, interval)})
	}
	return prims
}

// laneBuilder turns the visible spans of one lane into bars.
type laneBuilder struct {
	doc       *trace.Document
	lane      int
	thread    trace.ID
	y         float64
	height    float64
	start     float64
	scale     float64
	width     float64
	selected  bool
	highlight trace.ID

	bars []Bar
	// last is the span most recently folded into each bar.
	last []int
	// cols maps a pixel column to the bar starting in it, -1 when free.
	cols []int
}

func newLaneBuilder(doc *trace.Document, view View, lane int, y, width float64, cfg LayoutConfig) *laneBuilder {
	return &laneBuilder{
		doc: doc, lane: lane, thread: doc.Threads[lane].ID,
		y: y, height: cfg.LaneHeight,
		start: view.VisibleStart, scale: width / (view.VisibleEnd - view.VisibleStart),
		width: width, highlight: view.HighlightLock,
	}
}

func (lb *laneBuilder) x(t float64) float64 {
	return (t - lb.start) * lb.scale
}

func (lb *laneBuilder) clip(x float64) float64 {
	return math.Max(0, math.Min(lb.width, x))
}

func (lb *laneBuilder) bar(s trace.Span, x0, x1 float64, class BarClass) Bar {
	return Bar{
		Lane: lb.lane, Thread: lb.thread, Lock: s.Lock,
		X0: x0, X1: x1, Y: lb.y, Height: lb.height,
		Class: class, Count: 1,
		Unterminated: s.Unterminated && class == ClassHold,
		Selected:     lb.selected,
		Highlighted:  lb.highlight != "" && s.Lock == lb.highlight,
		FirstEvent:   s.First, LastEvent: s.Last,
	}
}

func (lb *laneBuilder) appendBars(prims []Primitive) []Primitive {
	spans := lb.doc.Spans(lb.lane)
	end := lb.start + lb.width/lb.scale
	visible := lb.doc.VisibleSpans(lb.lane, lb.start, end)
	if len(visible) == 0 {
		return prims
	}

	lb.cols = make([]int, max(int(math.Ceil(lb.width)), 1))
	for i := range lb.cols {
		lb.cols[i] = -1
	}
	for _, idx := range visible {
		s := spans[idx]
		xa := lb.x(s.Acquired)
		x1 := lb.width
		if !s.Unterminated {
			x1 = lb.x(s.Released)
		}
		if s.HasWait() {
			lb.segment(idx, s, lb.x(s.Start()), xa, ClassWait)
		}
		lb.segment(idx, s, xa, x1, ClassHold)
	}

	for _, b := range lb.bars {
		if b.Count > 1 {
			b.Class = ClassMerged
			b.Heat = HeatForCount(b.Count)
		}
		prims = append(prims, b)
	}
	return prims
}

// segment places one wait or hold segment spanning [x0, x1]. The first
// segment starting in a pixel column owns it; later ones widen that bar
// instead of adding another. Count tracks distinct spans, so the wait and
// hold of a single span folded together stay a plain hold bar.
func (lb *laneBuilder) segment(idx int, s trace.Span, x0, x1 float64, class BarClass) {
	if x1 < 0 || x0 > lb.width {
		return
	}
	c0, c1 := lb.clip(x0), lb.clip(x1)
	if class == ClassWait && c1 <= c0 {
		return
	}
	col := min(int(c0), len(lb.cols)-1)

	owner := lb.cols[col]
	if owner < 0 {
		lb.cols[col] = len(lb.bars)
		lb.bars = append(lb.bars, lb.bar(s, c0, c1, class))
		lb.last = append(lb.last, idx)
		return
	}

	b := &lb.bars[owner]
	b.X0 = math.Min(b.X0, c0)
	b.X1 = math.Max(b.X1, c1)
	if lb.last[owner] != idx {
		b.Count++
		lb.last[owner] = idx
	} else if class == ClassHold {
		b.Class = ClassHold
	}
	if s.Lock != b.Lock {
		b.Mixed = true
	}
	if s.Unterminated && class == ClassHold {
		b.Unterminated = true
	}
	if lb.highlight != "" && s.Lock == lb.highlight {
		b.Highlighted = true
	}
	b.FirstEvent = min(b.FirstEvent, s.First)
	b.LastEvent = max(b.LastEvent, s.Last)
}

// LaneAt returns the thread whose lane band contains screen y, if any.
func LaneAt(doc *trace.Document, view View, cfg LayoutConfig, y float64) (trace.ID, bool) {
	i, _, ok := laneAt(doc, view, cfg, y)
	if !ok {
		return "", false
	}
	return doc.Threads[i].ID, true
}

// laneAt returns the index and top y of the lane under screen y.
func laneAt(doc *trace.Document, view View, cfg LayoutConfig, y float64) (int, float64, bool) {
	if doc == nil || y < cfg.TopMargin {
		return 0, 0, false
	}
	pitch := cfg.LaneHeight + cfg.LaneGap
	if pitch <= 0 {
		return 0, 0, false
	}
	rel := y - cfg.TopMargin
	row := int(rel / pitch)
	if rel-float64(row)*pitch > cfg.LaneHeight {
		return 0, 0, false // in the gap
	}
	i := max(view.FirstLane, 0) + row
	if i >= len(doc.Threads) {
		return 0, 0, false
	}
	return i, cfg.TopMargin + float64(row)*pitch, true
}

// BarAt returns the bar under screen (x, y) as Layout would draw it for a
// viewport view.Width pixels wide. Bars narrower than a pixel are hit across
// their whole column. When bars overlap the one painted last wins.
func BarAt(doc *trace.Document, view View, cfg LayoutConfig, x, y float64) (Bar, bool) {
	if view.Width <= 0 || !(view.VisibleEnd > view.VisibleStart) {
		return Bar{}, false
	}
	i, top, ok := laneAt(doc, view, cfg, y)
	if !ok {
		return Bar{}, false
	}
	lb := newLaneBuilder(doc, view, i, top, float64(view.Width), cfg)
	prims := lb.appendBars(nil)
	for j := len(prims) - 1; j >= 0; j-- {
		b := prims[j].(Bar)
		if x >= b.X0 && x < math.Max(b.X1, b.X0+1) {
			return b, true
		}
	}
	return Bar{}, false
}

// VisibleLanes returns how many whole lanes fit into height.
func VisibleLanes(cfg LayoutConfig, height int) int {
	pitch := cfg.LaneHeight + cfg.LaneGap
	if pitch <= 0 || float64(height) <= cfg.TopMargin {
		return 0
	}
	return int((float64(height) - cfg.TopMargin + cfg.LaneGap) / pitch)
}
