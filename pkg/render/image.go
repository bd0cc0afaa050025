package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSurface is an in-memory Surface backed by an RGBA image, used for
// headless rendering and PNG export.
type ImageSurface struct {
	img  *image.RGBA
	face font.Face
}

// NewImageSurface allocates a width x height surface.
func NewImageSurface(width, height int) *ImageSurface {
	return &ImageSurface{
		img:  image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0))),
		face: basicfont.Face7x13,
	}
}

// Image returns the backing image.
func (s *ImageSurface) Image() *image.RGBA {
	return s.img
}

func (s *ImageSurface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *ImageSurface) Clear(c color.NRGBA) {
	draw.Draw(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func (s *ImageSurface) FillRect(x0, y0, x1, y1 float64, c color.NRGBA) {
	r := image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1)), int(math.Ceil(y1)),
	).Intersect(s.img.Bounds())
	if r.Empty() {
		return
	}
	op := draw.Over
	if c.A == 255 {
		op = draw.Src
	}
	draw.Draw(s.img, r, image.NewUniform(c), image.Point{}, op)
}

func (s *ImageSurface) Text(x, y float64, str string, c color.NRGBA) {
	d := font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(c),
		Face: s.face,
		Dot:  fixed.P(int(math.Round(x)), int(math.Round(y))+s.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(str)
}

func (s *ImageSurface) MeasureText(str string) (float64, float64) {
	adv := font.MeasureString(s.face, str)
	m := s.face.Metrics()
	return float64(adv.Ceil()), float64((m.Ascent + m.Descent).Ceil())
}

// WritePNG encodes the surface as PNG.
func (s *ImageSurface) WritePNG(w io.Writer) error {
	if err := png.Encode(w, s.img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// SavePNG writes the surface to a PNG file.
func (s *ImageSurface) SavePNG(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	if err := s.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
