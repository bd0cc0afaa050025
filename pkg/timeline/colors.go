package timeline

import (
	"image/color"
	"math"
	"strings"
)

// ColorTheme selects the palette used to paint the timeline.
type ColorTheme int

const (
	ThemeDark ColorTheme = iota
	ThemeLight
	ThemeNord
	ThemeSolarized
)

// ThemeNames maps theme enum to display name
var ThemeNames = map[ColorTheme]string{
	ThemeDark:      "Dark",
	ThemeLight:     "Light",
	ThemeNord:      "Nord",
	ThemeSolarized: "Solarized",
}

func (t ColorTheme) String() string {
	if name, ok := ThemeNames[t]; ok {
		return name
	}
	return ThemeNames[ThemeDark]
}

// Next returns the theme after t, wrapping around.
func (t ColorTheme) Next() ColorTheme {
	return (t + 1) % ColorTheme(len(ThemeNames))
}

// ParseTheme looks a theme up by display name, ignoring case.
func ParseTheme(name string) (ColorTheme, bool) {
	for t, n := range ThemeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return t, true
		}
	}
	return ThemeDark, false
}

// Palette holds every colour the renderer needs for one theme.
type Palette struct {
	Background   color.NRGBA
	Grid         color.NRGBA
	GridText     color.NRGBA
	Label        color.NRGBA
	LabelBox     color.NRGBA
	Selected     color.NRGBA // selected lane label and bar outline
	Wait         color.NRGBA // AcquireRequested -> Acquired
	Hold         color.NRGBA // Acquired -> Released
	Hot          color.NRGBA // merged bars at full heat
	Mixed        color.NRGBA // merged bars covering several locks
	Unterminated color.NRGBA // marker at the end of open bars
	Highlight    color.NRGBA // every bar of the hovered lock
	FPS          color.NRGBA
}

var palettes = map[ColorTheme]Palette{
	ThemeDark: {
		Background:   color.NRGBA{R: 24, G: 26, B: 31, A: 255},
		Grid:         color.NRGBA{R: 60, G: 64, B: 72, A: 255},
		GridText:     color.NRGBA{R: 140, G: 146, B: 158, A: 255},
		Label:        color.NRGBA{R: 220, G: 223, B: 228, A: 255},
		LabelBox:     color.NRGBA{R: 24, G: 26, B: 31, A: 200},
		Selected:     color.NRGBA{R: 255, G: 214, B: 10, A: 255},
		Wait:         color.NRGBA{R: 214, G: 96, B: 77, A: 255},  // red
		Hold:         color.NRGBA{R: 77, G: 163, B: 214, A: 255}, // blue
		Hot:          color.NRGBA{R: 255, G: 140, B: 0, A: 255},
		Mixed:        color.NRGBA{R: 170, G: 120, B: 220, A: 255},
		Unterminated: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		Highlight:    color.NRGBA{R: 0, G: 230, B: 180, A: 255},
		FPS:          color.NRGBA{R: 120, G: 255, B: 120, A: 255},
	},
	ThemeLight: {
		Background:   color.NRGBA{R: 250, G: 250, B: 250, A: 255},
		Grid:         color.NRGBA{R: 220, G: 220, B: 220, A: 255},
		GridText:     color.NRGBA{R: 110, G: 110, B: 110, A: 255},
		Label:        color.NRGBA{R: 30, G: 30, B: 30, A: 255},
		LabelBox:     color.NRGBA{R: 250, G: 250, B: 250, A: 200},
		Selected:     color.NRGBA{R: 0, G: 120, B: 215, A: 255},
		Wait:         color.NRGBA{R: 230, G: 120, B: 100, A: 255},
		Hold:         color.NRGBA{R: 70, G: 140, B: 90, A: 255},
		Hot:          color.NRGBA{R: 200, G: 30, B: 30, A: 255},
		Mixed:        color.NRGBA{R: 130, G: 80, B: 170, A: 255},
		Unterminated: color.NRGBA{R: 0, G: 0, B: 0, A: 255},
		Highlight:    color.NRGBA{R: 200, G: 0, B: 140, A: 255},
		FPS:          color.NRGBA{R: 0, G: 130, B: 0, A: 255},
	},
	ThemeNord: {
		Background:   color.NRGBA{R: 46, G: 52, B: 64, A: 255},    // nord0
		Grid:         color.NRGBA{R: 67, G: 76, B: 94, A: 255},    // nord2
		GridText:     color.NRGBA{R: 216, G: 222, B: 233, A: 255}, // nord4
		Label:        color.NRGBA{R: 236, G: 239, B: 244, A: 255}, // nord6
		LabelBox:     color.NRGBA{R: 46, G: 52, B: 64, A: 200},
		Selected:     color.NRGBA{R: 235, G: 203, B: 139, A: 255}, // nord13
		Wait:         color.NRGBA{R: 191, G: 97, B: 106, A: 255},  // nord11
		Hold:         color.NRGBA{R: 136, G: 192, B: 208, A: 255}, // nord8
		Hot:          color.NRGBA{R: 208, G: 135, B: 112, A: 255}, // nord12
		Mixed:        color.NRGBA{R: 180, G: 142, B: 173, A: 255}, // nord15
		Unterminated: color.NRGBA{R: 229, G: 233, B: 240, A: 255},
		Highlight:    color.NRGBA{R: 163, G: 190, B: 140, A: 255}, // nord14
		FPS:          color.NRGBA{R: 163, G: 190, B: 140, A: 255}, // nord14
	},
	ThemeSolarized: {
		Background:   color.NRGBA{R: 0, G: 43, B: 54, A: 255},
		Grid:         color.NRGBA{R: 7, G: 54, B: 66, A: 255},
		GridText:     color.NRGBA{R: 131, G: 148, B: 150, A: 255},
		Label:        color.NRGBA{R: 238, G: 232, B: 213, A: 255},
		LabelBox:     color.NRGBA{R: 0, G: 43, B: 54, A: 200},
		Selected:     color.NRGBA{R: 181, G: 137, B: 0, A: 255},
		Wait:         color.NRGBA{R: 220, G: 50, B: 47, A: 255},
		Hold:         color.NRGBA{R: 38, G: 139, B: 210, A: 255},
		Hot:          color.NRGBA{R: 203, G: 75, B: 22, A: 255},
		Mixed:        color.NRGBA{R: 108, G: 113, B: 196, A: 255},
		Unterminated: color.NRGBA{R: 253, G: 246, B: 227, A: 255},
		Highlight:    color.NRGBA{R: 42, G: 161, B: 152, A: 255},
		FPS:          color.NRGBA{R: 133, G: 153, B: 0, A: 255},
	},
}

// ThemePalette returns the palette of a theme, falling back to ThemeDark.
func ThemePalette(theme ColorTheme) Palette {
	if p, ok := palettes[theme]; ok {
		return p
	}
	return palettes[ThemeDark]
}

// BarColor maps a bar to its fill colour. Highlighted bars always use
// Highlight; merged bars blend from the hold colour towards Hot as their
// heat rises.
func (p Palette) BarColor(b Bar) color.NRGBA {
	if b.Highlighted {
		return p.Highlight
	}
	switch b.Class {
	case ClassWait:
		return p.Wait
	case ClassMerged:
		if b.Mixed {
			return lerp(p.Mixed, p.Hot, b.Heat)
		}
		return lerp(p.Hold, p.Hot, b.Heat)
	default:
		return p.Hold
	}
}

// HeatForCount converts a merged span count into a heat weight in [0, 1].
// Heat grows logarithmically and saturates at 256 spans.
func HeatForCount(n int) float64 {
	if n <= 1 {
		return 0
	}
	return math.Min(1, math.Log2(float64(n))/8)
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	t = math.Max(0, math.Min(1, t))
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}
