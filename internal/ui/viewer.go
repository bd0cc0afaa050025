// Package ui is the interactive trace viewer. It owns the Gio window and
// maps pointer and key input onto session operations; drawing goes through
// the same frame scheduler and renderer as headless export.
package ui

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gioui.org/app"
	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/io/pointer"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/explorer"
	"github.com/oligo/gioview/theme"
	"golang.org/x/exp/shiny/materialdesign/icons"

	"github.com/OpenTraceLab/OpenTraceLock/internal/session"
	"github.com/OpenTraceLab/OpenTraceLock/internal/watcher"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/frame"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/render"
)

const (
	maxLogLines    = 200
	canvasTextSize = unit.Sp(12)
)

// Options configures a viewer.
type Options struct {
	Session *session.Session
	Logger  *slog.Logger
	// ConfigPath is where theme changes are saved; empty disables saving.
	ConfigPath string
}

// App is one viewer window.
type App struct {
	window *app.Window
	ops    op.Ops

	gvTheme  *theme.Theme
	sess     *session.Session
	logger   *slog.Logger
	renderer *render.Renderer
	sched    *frame.Scheduler
	ctl      *controller
	epoch    time.Time

	explorer  *explorer.Explorer
	openBtn   widget.Clickable
	openIcon  *widget.Icon
	canvasTag bool
	lastFPS   int

	mu   sync.Mutex
	logs []string

	watchMu sync.Mutex
	watch   *watcher.Watcher
}

// New creates a viewer on w, or on a new window when w is nil.
func New(w *app.Window, opts Options) *App {
	if w == nil {
		w = new(app.Window)
	}
	if opts.Session == nil {
		opts.Session = session.New(nil, opts.Logger)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	w.Option(app.Title("OpenTraceLock"), app.Size(unit.Dp(1280), unit.Dp(720)))

	cfg := opts.Session.Config()
	a := &App{
		window:   w,
		gvTheme:  theme.NewTheme("", nil, true),
		sess:     opts.Session,
		logger:   opts.Logger,
		renderer: render.NewRenderer(cfg.ColorTheme()),
		explorer: explorer.NewExplorer(w),
		epoch:    time.Now(),
	}
	a.renderer.ShowFPS = cfg.Frame.ShowFPS
	a.sched = frame.NewScheduler(a.sess, a.renderer, w.Invalidate)
	a.ctl = newController(a.sess, a.renderer, opts.ConfigPath, a.Logf)
	if icon, err := widget.NewIcon(icons.FileFolderOpen); err == nil {
		a.openIcon = icon
	}
	a.sess.OnUpdate(w.Invalidate)
	a.applyPalette()
	a.Logf("[INFO] Drag to pan, scroll to zoom, click a lane to select it")
	return a
}

// Open loads path in the background and, when enabled, watches it for
// changes.
func (a *App) Open(path string) {
	a.window.Option(app.Title("OpenTraceLock - " + path))
	a.startWatch(path)
	a.load(path)
}

func (a *App) load(path string) {
	done := a.sess.LoadAsync(path)
	go func() {
		err := <-done
		switch {
		case errors.Is(err, session.ErrSuperseded):
		case err != nil:
			a.Logf("[ERROR] %v", err)
		default:
			a.Logf("[INFO] Loaded %s (%d warnings)", path, len(a.sess.Warnings()))
		}
	}()
}

func (a *App) startWatch(path string) {
	cfg := a.sess.Config()
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watch != nil {
		a.watch.Close()
		a.watch = nil
	}
	if !cfg.Watch.Enabled {
		return
	}
	w, err := watcher.New(path,
		watcher.WithDebounceDuration(cfg.Debounce()),
		watcher.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("live reload disabled", "path", path, "error", err)
		return
	}
	a.watch = w
	go func() {
		for range w.Changes() {
			a.Logf("[INFO] Reloading %s", path)
			a.load(path)
		}
	}()
}

func (a *App) stopWatch() {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.watch != nil {
		a.watch.Close()
		a.watch = nil
	}
}

// Run blocks processing window events until the window closes.
func (a *App) Run() error {
	defer a.stopWatch()
	for {
		e := a.window.Event()
		a.explorer.ListenEvents(e)
		switch ev := e.(type) {
		case app.DestroyEvent:
			return ev.Err
		case app.FrameEvent:
			gtx := app.NewContext(&a.ops, ev)
			a.layout(gtx)
			ev.Frame(gtx.Ops)
		}
	}
}

func (a *App) layout(gtx layout.Context) layout.Dimensions {
	a.handleKeys(gtx)
	if a.openBtn.Clicked(gtx) {
		a.openFilePicker()
	}

	paint.FillShape(gtx.Ops, a.gvTheme.Palette.Bg, clip.Rect{Max: gtx.Constraints.Max}.Op())
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(a.layoutHeader),
		layout.Flexed(1, a.layoutCanvas),
		layout.Rigid(a.layoutStatusBar),
	)
}

func (a *App) handleKeys(gtx layout.Context) {
	for {
		ev, ok := gtx.Event(keyFilters...)
		if !ok {
			break
		}
		e, ok := ev.(key.Event)
		if !ok || e.State != key.Press {
			continue
		}
		switch act := keyAction(e.Name); act {
		case actQuit:
			a.window.Perform(system.ActionClose)
		case actOpen:
			a.openFilePicker()
		case actTheme:
			a.ctl.apply(act)
			a.applyPalette()
			gtx.Execute(op.InvalidateCmd{})
		default:
			if a.ctl.apply(act) {
				gtx.Execute(op.InvalidateCmd{})
			}
		}
	}
}

func (a *App) layoutHeader(gtx layout.Context) layout.Dimensions {
	inset := layout.Inset{Left: unit.Dp(8), Right: unit.Dp(16), Top: unit.Dp(4), Bottom: unit.Dp(4)}
	return inset.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				if a.openIcon == nil {
					return material.Button(a.gvTheme.Theme, &a.openBtn, "Open").Layout(gtx)
				}
				btn := material.IconButton(a.gvTheme.Theme, &a.openBtn, a.openIcon, "Open trace")
				btn.Size = unit.Dp(20)
				btn.Inset = layout.UniformInset(unit.Dp(6))
				return btn.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Width: unit.Dp(12)}.Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				title := a.sess.Source()
				if title == "" {
					title = "No trace"
				}
				if f := a.sess.Filter(); f != "" {
					title += "  [" + f + "]"
				}
				label := material.Body1(a.gvTheme.Theme, title)
				label.Color = a.gvTheme.Palette.Fg
				label.MaxLines = 1
				return label.Layout(gtx)
			}),
		)
	})
}

func (a *App) layoutCanvas(gtx layout.Context) layout.Dimensions {
	size := gtx.Constraints.Max
	a.sess.Resize(size.X, size.Y)

	area := clip.Rect{Max: size}.Push(gtx.Ops)
	event.Op(gtx.Ops, &a.canvasTag)
	area.Pop()

	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target:  &a.canvasTag,
			Kinds:   pointer.Press | pointer.Release | pointer.Drag | pointer.Move | pointer.Leave | pointer.Scroll | pointer.Cancel,
			ScrollY: pointer.ScrollRange{Min: -1 << 20, Max: 1 << 20},
		})
		if !ok {
			break
		}
		if pev, ok := ev.(pointer.Event); ok && a.ctl.pointer(pev) {
			gtx.Execute(op.InvalidateCmd{})
		}
	}

	if err := a.sess.LoadErr(); err != nil {
		return a.layoutMessage(gtx, "Failed to load trace", err.Error())
	}
	if a.sess.Document() == nil {
		return a.layoutMessage(gtx, "No trace loaded", "Press O or use the folder button to open a lock trace")
	}

	defer clip.Rect{Max: size}.Push(gtx.Ops).Pop()
	stats := a.sched.Tick(gtx.Now.Sub(a.epoch), newGioSurface(gtx, a.gvTheme.Theme, canvasTextSize))
	a.lastFPS = stats.FPS
	return layout.Dimensions{Size: size}
}

// layoutMessage fills the canvas with a centred title and detail line.
func (a *App) layoutMessage(gtx layout.Context, title, detail string) layout.Dimensions {
	paint.FillShape(gtx.Ops, a.renderer.Palette.Background, clip.Rect{Max: gtx.Constraints.Max}.Op())
	return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				label := material.H6(a.gvTheme.Theme, title)
				label.Color = a.renderer.Palette.Label
				return label.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: unit.Dp(8)}.Layout),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				gtx.Constraints.Max.X = min(gtx.Constraints.Max.X, gtx.Dp(unit.Dp(720)))
				label := material.Body2(a.gvTheme.Theme, detail)
				label.Color = a.renderer.Palette.GridText
				return label.Layout(gtx)
			}),
		)
	})
}

func (a *App) layoutStatusBar(gtx layout.Context) layout.Dimensions {
	inset := layout.Inset{Left: unit.Dp(16), Right: unit.Dp(16), Top: unit.Dp(6), Bottom: unit.Dp(6)}
	return inset.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Horizontal, Alignment: layout.Middle}.Layout(gtx,
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				label := material.Caption(a.gvTheme.Theme, a.lastLog())
				label.Color = a.gvTheme.Palette.Fg
				label.MaxLines = 1
				return label.Layout(gtx)
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				gtx.Constraints.Min.X = gtx.Dp(unit.Dp(240))
				label := material.Caption(a.gvTheme.Theme, a.summary())
				label.Color = a.gvTheme.Palette.Fg
				return label.Layout(gtx)
			}),
		)
	})
}

func (a *App) summary() string {
	doc := a.sess.Document()
	if doc == nil {
		return render.FPSText(a.lastFPS)
	}
	text := fmt.Sprintf("%d threads | %d locks | %d warnings | %s",
		len(doc.Threads), len(doc.Locks), len(a.sess.Warnings()), render.FPSText(a.lastFPS))
	if hover := a.ctl.hoverText(); hover != "" {
		text = hover + " | " + text
	}
	return text
}

func (a *App) openFilePicker() {
	go func() {
		file, err := a.explorer.ChooseFile("json")
		if err != nil {
			if err != explorer.ErrUserDecline {
				a.Logf("[ERROR] File picker failed: %v", err)
			}
			return
		}
		defer file.Close()

		if f, ok := file.(*os.File); ok {
			a.Open(f.Name())
		} else {
			a.Logf("[ERROR] Unable to get file path from picker")
		}
	}()
}

// applyPalette derives the chrome colours from the timeline theme.
func (a *App) applyPalette() {
	p := a.renderer.Palette
	a.gvTheme.WithPalette(theme.Palette{
		Bg:         p.LabelBox,
		Fg:         p.Label,
		ContrastBg: p.Selected,
		ContrastFg: p.Background,
		Bg2:        p.Background,
	})
}

// Logf appends a line to the in-window log; the newest line is shown in the
// status bar. Safe for concurrent use.
func (a *App) Logf(format string, args ...any) {
	prefix := time.Now().Format(time.Stamp)
	entry := fmt.Sprintf("[%s] %s", prefix, fmt.Sprintf(format, args...))
	a.mu.Lock()
	a.logs = append(a.logs, entry)
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
	a.mu.Unlock()
	a.logger.Debug(entry)
	a.window.Invalidate()
}

func (a *App) lastLog() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.logs) == 0 {
		return ""
	}
	return a.logs[len(a.logs)-1]
}
