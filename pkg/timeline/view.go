package timeline

import (
	"math"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

const (
	// emptyExtentSpan is the window width used for traces whose events all
	// share one timestamp (or that have no events).
	emptyExtentSpan = 1.0
	// minWindowFraction bounds the deepest zoom when Limits.MaxZoom is 0:
	// the window never gets narrower than this fraction of the extent.
	minWindowFraction = 1e-6
)

// Limits constrains every View produced by the view operations.
type Limits struct {
	Extent     trace.Extent
	Overscroll float64 // fraction of the extent the window may move past either end
	MinZoom    float64 // pixels per time unit; 0 = full extent plus overscroll
	MaxZoom    float64 // pixels per time unit; 0 = derived from minWindowFraction
}

// View is the camera onto the timeline: which time window and which lanes
// are visible. All operations return a new View and leave the receiver
// untouched; results always satisfy VisibleStart < VisibleEnd.
type View struct {
	VisibleStart float64
	VisibleEnd   float64

	// Zoom is pixels per time unit, Width / (VisibleEnd - VisibleStart).
	Zoom float64
	// Width is the viewport width in pixels the zoom refers to.
	Width int

	SelectedLane trace.ID
	HasSelection bool

	// HighlightLock marks every bar of one lock across all lanes; empty
	// means none.
	HighlightLock trace.ID

	// FirstLane is the index of the topmost visible lane.
	FirstLane int

	limits Limits
}

// NewView creates a view spanning the whole extent.
func NewView(width int, limits Limits) View {
	v := View{Width: width, limits: limits}
	return v.ResetToFullExtent()
}

// Limits returns the constraints the view was created with.
func (v View) Limits() Limits {
	return v.limits
}

// WithLimits returns the view re-clamped to new limits, keeping the window
// when it is still valid.
func (v View) WithLimits(limits Limits) View {
	v.limits = limits
	return v.clamp()
}

// bounds returns the time range the window must stay inside.
func (v View) bounds() (lo, hi float64) {
	ext := v.limits.Extent
	span := ext.Span()
	if ext.IsEmpty() {
		span = emptyExtentSpan
		ext.Max = ext.Min + span
	}
	margin := v.limits.Overscroll * span
	if margin < 0 {
		margin = 0
	}
	return ext.Min - margin, ext.Max + margin
}

// zoomRange returns the effective [min, max] zoom for the current width.
func (v View) zoomRange() (float64, float64) {
	lo, hi := v.bounds()
	w := float64(v.Width)

	minZoom := w / (hi - lo)
	if v.limits.MinZoom > minZoom {
		minZoom = v.limits.MinZoom
	}

	maxZoom := v.limits.MaxZoom
	if maxZoom <= 0 {
		span := v.limits.Extent.Span()
		if span <= 0 {
			span = emptyExtentSpan
		}
		maxZoom = w / (span * minWindowFraction)
	}
	if maxZoom < minZoom {
		maxZoom = minZoom
	}
	return minZoom, maxZoom
}

func clampFloat(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// clamp enforces the zoom range and keeps the window inside the bounds.
func (v View) clamp() View {
	lo, hi := v.bounds()

	if !(v.VisibleEnd > v.VisibleStart) || math.IsNaN(v.VisibleStart) || math.IsInf(v.VisibleStart, 0) {
		v.VisibleStart, v.VisibleEnd = lo, hi
	}

	if v.Width <= 0 {
		v.Zoom = 0
		return v
	}

	w := float64(v.Width)
	minZoom, maxZoom := v.zoomRange()
	zoom := w / (v.VisibleEnd - v.VisibleStart)
	if clamped := clampFloat(zoom, minZoom, maxZoom); clamped != zoom {
		center := (v.VisibleStart + v.VisibleEnd) / 2
		half := w / clamped / 2
		v.VisibleStart, v.VisibleEnd = center-half, center+half
	}

	span := v.VisibleEnd - v.VisibleStart
	if v.VisibleStart < lo {
		v.VisibleStart, v.VisibleEnd = lo, lo+span
	}
	if v.VisibleEnd > hi {
		v.VisibleStart, v.VisibleEnd = hi-span, hi
		if v.VisibleStart < lo {
			v.VisibleStart = lo
		}
	}

	v.Zoom = w / (v.VisibleEnd - v.VisibleStart)
	return v
}

// ResetToFullExtent shows the whole trace.
func (v View) ResetToFullExtent() View {
	ext := v.limits.Extent
	v.VisibleStart = ext.Min
	v.VisibleEnd = ext.Max
	if ext.IsEmpty() {
		v.VisibleEnd = ext.Min + emptyExtentSpan
	}
	v.FirstLane = 0
	return v.clamp()
}

// ShowRange sets the visible window to [start, end], subject to the same
// zoom and bound limits as interactive navigation.
func (v View) ShowRange(start, end float64) View {
	if !(end > start) {
		return v
	}
	v.VisibleStart, v.VisibleEnd = start, end
	return v.clamp()
}

// Pan moves the window by a screen pixel offset. Positive deltas drag the
// content to the right, revealing earlier times.
func (v View) Pan(deltaPixels float64) View {
	if v.Zoom <= 0 || math.IsNaN(deltaPixels) || math.IsInf(deltaPixels, 0) {
		return v
	}
	dt := deltaPixels / v.Zoom
	v.VisibleStart -= dt
	v.VisibleEnd -= dt
	return v.clamp()
}

// ZoomAt scales the view by factor, keeping the time under pivotX fixed on
// screen. factor > 1 zooms in, factor < 1 zooms out.
func (v View) ZoomAt(factor, pivotX float64) View {
	if v.Zoom <= 0 || !(factor > 0) || math.IsInf(factor, 0) || math.IsNaN(pivotX) {
		return v
	}

	pivotTime := v.XToTime(pivotX)
	minZoom, maxZoom := v.zoomRange()
	zoom := clampFloat(v.Zoom*factor, minZoom, maxZoom)

	v.VisibleStart = pivotTime - pivotX/zoom
	v.VisibleEnd = v.VisibleStart + float64(v.Width)/zoom
	return v.clamp()
}

// SelectLane selects a thread lane; ok = false clears the selection.
func (v View) SelectLane(id trace.ID, ok bool) View {
	if !ok {
		v.SelectedLane, v.HasSelection = "", false
		return v
	}
	v.SelectedLane, v.HasSelection = id, true
	return v
}

// Highlight returns the view with every bar of lock id highlighted.
// An empty id clears the highlight.
func (v View) Highlight(id trace.ID) View {
	v.HighlightLock = id
	return v
}

// ScrollLanes moves the first visible lane by n, within [0, laneCount).
func (v View) ScrollLanes(n, laneCount int) View {
	first := v.FirstLane + n
	if first > laneCount-1 {
		first = laneCount - 1
	}
	if first < 0 {
		first = 0
	}
	v.FirstLane = first
	return v
}

// Resize updates the viewport width. The visible window is kept and the
// zoom re-derived, then clamped.
func (v View) Resize(width int) View {
	if width == v.Width {
		return v
	}
	v.Width = width
	return v.clamp()
}

// TimeToX converts a time to a screen x coordinate.
func (v View) TimeToX(t float64) float64 {
	return (t - v.VisibleStart) * v.Zoom
}

// XToTime converts a screen x coordinate to a time.
func (v View) XToTime(x float64) float64 {
	if v.Zoom <= 0 {
		return v.VisibleStart
	}
	return v.VisibleStart + x/v.Zoom
}
