package ui

import (
	"fmt"

	"gioui.org/f32"
	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/io/pointer"

	"github.com/OpenTraceLab/OpenTraceLock/internal/config"
	"github.com/OpenTraceLab/OpenTraceLock/internal/session"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/render"
)

type action int

const (
	actNone action = iota
	actZoomIn
	actZoomOut
	actPanLeft
	actPanRight
	actLaneUp
	actLaneDown
	actReset
	actTheme
	actOpen
	actFilter
	actQuit
)

// keyFilters lists every key the viewer reacts to.
var keyFilters = []event.Filter{
	key.Filter{Name: "+", Optional: key.ModShift},
	key.Filter{Name: "="},
	key.Filter{Name: "-"},
	key.Filter{Name: key.NameLeftArrow},
	key.Filter{Name: key.NameRightArrow},
	key.Filter{Name: key.NameUpArrow},
	key.Filter{Name: key.NameDownArrow},
	key.Filter{Name: key.NameSpace},
	key.Filter{Name: "R"},
	key.Filter{Name: "T"},
	key.Filter{Name: "O"},
	key.Filter{Name: "F"},
	key.Filter{Name: "Q"},
	key.Filter{Name: key.NameEscape},
}

func keyAction(k key.Name) action {
	switch k {
	case "+", "=":
		return actZoomIn
	case "-":
		return actZoomOut
	case key.NameLeftArrow:
		return actPanLeft
	case key.NameRightArrow:
		return actPanRight
	case key.NameUpArrow:
		return actLaneUp
	case key.NameDownArrow:
		return actLaneDown
	case key.NameSpace, "R":
		return actReset
	case "T":
		return actTheme
	case "O":
		return actOpen
	case "F":
		return actFilter
	case key.NameEscape, "Q":
		return actQuit
	}
	return actNone
}

// clickSlop is how far a press may move before it counts as a drag.
const clickSlop = 4

// controller turns viewer input into session operations.
type controller struct {
	sess     *session.Session
	renderer *render.Renderer
	cfgPath  string
	logf     func(format string, args ...any)

	filterIdx int // -1 while no configured filter is active

	pressed  bool
	moved    bool
	pressPos f32.Point
	lastX    float32
}

func newController(sess *session.Session, r *render.Renderer, cfgPath string, logf func(string, ...any)) *controller {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &controller{sess: sess, renderer: r, cfgPath: cfgPath, logf: logf, filterIdx: -1}
}

// apply runs a key action. It reports whether the view may have changed;
// actOpen and actQuit are left to the window.
func (c *controller) apply(a action) bool {
	w, _ := c.sess.Size()
	centre := float64(w) / 2
	switch a {
	case actZoomIn:
		c.sess.ZoomSteps(1, centre)
	case actZoomOut:
		c.sess.ZoomSteps(-1, centre)
	case actPanLeft:
		c.sess.PanSteps(-1)
	case actPanRight:
		c.sess.PanSteps(1)
	case actLaneUp:
		c.sess.ScrollLanes(-1)
	case actLaneDown:
		c.sess.ScrollLanes(1)
	case actReset:
		c.sess.Reset()
	case actTheme:
		c.cycleTheme()
	case actFilter:
		c.cycleFilter()
	default:
		return false
	}
	return true
}

func (c *controller) cycleTheme() {
	cfg := c.sess.Config()
	next := cfg.ColorTheme().Next()
	cfg.Theme = next.String()
	c.renderer.SetTheme(next)
	c.logf("[INFO] Theme: %s", next)
	if c.cfgPath == "" {
		return
	}
	if err := config.Save(c.cfgPath, cfg); err != nil {
		c.logf("[ERROR] Failed to save config: %v", err)
	}
}

// cycleFilter steps through the configured filters; the step after the last
// one clears the filter.
func (c *controller) cycleFilter() {
	filters := c.sess.Config().Filters
	if len(filters) == 0 {
		c.logf("[INFO] No filters configured")
		return
	}
	next := c.filterIdx + 1
	expr := ""
	if next >= len(filters) {
		next = -1
	} else {
		expr = filters[next]
	}
	c.filterIdx = next
	if err := c.sess.SetFilter(expr); err != nil {
		c.logf("[ERROR] Filter %q: %v", expr, err)
		return
	}
	if expr == "" {
		c.logf("[INFO] Filter cleared")
	} else {
		c.logf("[INFO] Filter: %s", expr)
	}
}

// pointer handles one canvas pointer event and reports whether the view
// changed. A primary press that is released without moving selects a lane;
// hovering a bar highlights its lock in every lane.
func (c *controller) pointer(ev pointer.Event) bool {
	switch ev.Kind {
	case pointer.Press:
		if ev.Buttons != pointer.ButtonPrimary {
			return false
		}
		c.pressed, c.moved = true, false
		c.pressPos = ev.Position
		c.lastX = ev.Position.X
	case pointer.Drag:
		if !c.pressed {
			return false
		}
		if !c.moved {
			d := ev.Position.Sub(c.pressPos)
			if d.X*d.X+d.Y*d.Y < clickSlop*clickSlop {
				return false
			}
			c.moved = true
		}
		c.sess.Pan(float64(ev.Position.X - c.lastX))
		c.lastX = ev.Position.X
		return true
	case pointer.Release:
		if !c.pressed {
			return false
		}
		c.pressed = false
		if !c.moved {
			c.sess.SelectLaneAt(float64(ev.Position.Y))
			return true
		}
	case pointer.Cancel:
		c.pressed = false
	case pointer.Move:
		return c.sess.HighlightAt(float64(ev.Position.X), float64(ev.Position.Y))
	case pointer.Leave:
		return c.sess.ClearHighlight()
	case pointer.Scroll:
		if ev.Scroll.Y == 0 {
			return false
		}
		notches := 1.0
		if ev.Scroll.Y > 0 {
			notches = -1
		}
		c.sess.ZoomSteps(notches, float64(ev.Position.X))
		return true
	}
	return false
}

// hoverText names the highlighted lock for the status bar.
func (c *controller) hoverText() string {
	l, ok := c.sess.HighlightedLock()
	if !ok {
		return ""
	}
	if l.Label != "" && l.Label != string(l.ID) {
		return fmt.Sprintf("Lock: %s (%s)", l.Label, l.ID)
	}
	return "Lock: " + string(l.ID)
}
