// Package render paints timeline primitives onto a raster surface.
package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
)

// Surface is a 2D raster target. Coordinates are pixels with the origin in
// the top-left corner; rectangles are [x0, x1) x [y0, y1).
type Surface interface {
	Size() (width, height int)
	Clear(c color.NRGBA)
	FillRect(x0, y0, x1, y1 float64, c color.NRGBA)
	// Text draws s with its top-left corner at (x, y).
	Text(x, y float64, s string, c color.NRGBA)
	// MeasureText returns the width and height of s in pixels.
	MeasureText(s string) (width, height float64)
}

const (
	labelPadding  = 4
	markerWidth   = 3
	selectedLine  = 2
	waitInsetFrac = 0.25 // wait bars are drawn at half lane height
)

// Renderer paints primitives in a fixed order: grid lines, bars, lane
// labels, then the FPS overlay.
type Renderer struct {
	Palette timeline.Palette
	// ShowFPS toggles the overlay in the top-right corner.
	ShowFPS bool
}

// NewRenderer creates a renderer for a theme with the FPS overlay enabled.
func NewRenderer(theme timeline.ColorTheme) *Renderer {
	return &Renderer{Palette: timeline.ThemePalette(theme), ShowFPS: true}
}

// SetTheme switches the palette.
func (r *Renderer) SetTheme(theme timeline.ColorTheme) {
	r.Palette = timeline.ThemePalette(theme)
}

// Render clears the surface and paints prims. fps <= 0 is shown as unknown.
func (r *Renderer) Render(s Surface, prims []timeline.Primitive, fps int) {
	w, h := s.Size()
	if timeline.CheckViewport(w, h) != nil {
		return
	}
	s.Clear(r.Palette.Background)

	for _, p := range prims {
		if g, ok := p.(timeline.GridLine); ok {
			r.gridLine(s, g, float64(h))
		}
	}
	for _, p := range prims {
		if b, ok := p.(timeline.Bar); ok {
			r.bar(s, b)
		}
	}
	for _, p := range prims {
		if l, ok := p.(timeline.LaneLabel); ok {
			r.laneLabel(s, l)
		}
	}
	if r.ShowFPS {
		r.fps(s, fps, float64(w))
	}
}

func (r *Renderer) gridLine(s Surface, g timeline.GridLine, h float64) {
	x := math.Floor(g.X)
	s.FillRect(x, 0, x+1, h, r.Palette.Grid)
	s.Text(x+3, 2, g.Label, r.Palette.GridText)
}

func (r *Renderer) bar(s Surface, b timeline.Bar) {
	x0, x1 := b.X0, b.X1
	if x1-x0 < 1 {
		x1 = x0 + 1 // keep sub-pixel bars visible
	}
	y0, y1 := b.Y, b.Y+b.Height
	if b.Class == timeline.ClassWait {
		inset := b.Height * waitInsetFrac
		y0, y1 = y0+inset, y1-inset
	}
	s.FillRect(x0, y0, x1, y1, r.Palette.BarColor(b))

	if b.Selected {
		s.FillRect(x0, b.Y, x1, b.Y+selectedLine, r.Palette.Selected)
	}
	if b.Unterminated {
		s.FillRect(math.Max(x0, x1-markerWidth), b.Y, x1, b.Y+b.Height, r.Palette.Unterminated)
	}
}

func (r *Renderer) laneLabel(s Surface, l timeline.LaneLabel) {
	tw, th := s.MeasureText(l.Text)
	s.FillRect(0, l.Y, tw+2*labelPadding, l.Y+l.Height, r.Palette.LabelBox)

	c := r.Palette.Label
	if l.Selected {
		c = r.Palette.Selected
	}
	s.Text(labelPadding, l.Y+(l.Height-th)/2, l.Text, c)
}

// FPSText formats the overlay text.
func FPSText(fps int) string {
	if fps <= 0 {
		return "FPS: --"
	}
	return fmt.Sprintf("FPS: %d", fps)
}

func (r *Renderer) fps(s Surface, fps int, w float64) {
	text := FPSText(fps)
	tw, th := s.MeasureText(text)
	x := w - tw - 2*labelPadding
	s.FillRect(x, 0, w, th+2*labelPadding, r.Palette.LabelBox)
	s.Text(x+labelPadding, labelPadding, text, r.Palette.FPS)
}
