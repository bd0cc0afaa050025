package ui

import (
	"image"
	"image/color"
	"math"

	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget/material"
)

// gioSurface adapts a Gio layout context to render.Surface. It is only valid
// for the frame whose context it wraps.
type gioSurface struct {
	gtx      layout.Context
	th       *material.Theme
	textSize unit.Sp
}

func newGioSurface(gtx layout.Context, th *material.Theme, textSize unit.Sp) *gioSurface {
	return &gioSurface{gtx: gtx, th: th, textSize: textSize}
}

func (s *gioSurface) Size() (int, int) {
	return s.gtx.Constraints.Max.X, s.gtx.Constraints.Max.Y
}

func (s *gioSurface) Clear(c color.NRGBA) {
	paint.FillShape(s.gtx.Ops, c, clip.Rect{Max: s.gtx.Constraints.Max}.Op())
}

func (s *gioSurface) FillRect(x0, y0, x1, y1 float64, c color.NRGBA) {
	r := image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1)), int(math.Ceil(y1)),
	).Intersect(image.Rectangle{Max: s.gtx.Constraints.Max})
	if r.Empty() {
		return
	}
	paint.FillShape(s.gtx.Ops, c, clip.Rect(r).Op())
}

func (s *gioSurface) label(text string, c color.NRGBA) material.LabelStyle {
	l := material.Label(s.th, s.textSize, text)
	l.Color = c
	l.MaxLines = 1
	return l
}

func (s *gioSurface) Text(x, y float64, text string, c color.NRGBA) {
	defer op.Offset(image.Pt(int(math.Round(x)), int(math.Round(y)))).Push(s.gtx.Ops).Pop()
	gtx := s.gtx
	gtx.Constraints.Min = image.Point{}
	s.label(text, c).Layout(gtx)
}

// MeasureText lays the label out into a discarded macro.
func (s *gioSurface) MeasureText(text string) (float64, float64) {
	gtx := s.gtx
	gtx.Constraints.Min = image.Point{}
	macro := op.Record(gtx.Ops)
	dims := s.label(text, color.NRGBA{}).Layout(gtx)
	macro.Stop()
	return float64(dims.Size.X), float64(dims.Size.Y)
}
