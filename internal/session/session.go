// Package session holds the state of one viewer instance: the loaded trace,
// the view onto it and the viewport size. Every component call goes
// through a Session instead of package-level state.
package session

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/OpenTraceLab/OpenTraceLock/internal/config"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/frame"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/timeline"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace/query"
)

// maxLoggedWarnings caps per-warning log lines for one load.
const maxLoggedWarnings = 20

// document is one published load result. A failed load carries err and no
// doc; it still replaces whatever was shown before.
type document struct {
	gen      uint64
	source   string
	raw      *trace.Document // as loaded
	doc      *trace.Document // after filter
	filter   *activeFilter   // filter doc was built with
	warnings []trace.Warning
	err      error
}

type activeFilter struct {
	q    *query.Query
	text string
}

// Session is the explicit viewer state. Loads may complete on any
// goroutine; view operations, Resize and Snapshot must all be called from
// the single goroutine that runs the frame loop.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger

	current atomic.Pointer[document]
	gen     atomic.Uint64
	notify  atomic.Pointer[func()]

	filter atomic.Pointer[activeFilter]

	// beforeSwap runs once between filtering and publishing a load.
	beforeSwap func()

	// frame goroutine only
	seen          *document
	view          timeline.View
	width, height int
	layout        timeline.LayoutConfig
}

// New creates a session with no document loaded.
func New(cfg *config.Config, logger *slog.Logger) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:    cfg,
		logger: logger,
		layout: cfg.LayoutConfig(),
	}
	s.view = timeline.NewView(0, cfg.Limits(trace.Extent{}))
	return s
}

// Config returns the session settings.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// OnUpdate registers fn to be called after a load or filter change is
// published, from whichever goroutine published it.
func (s *Session) OnUpdate(fn func()) {
	s.notify.Store(&fn)
}

// Load parses a trace from r synchronously. source names it in errors.
func (s *Session) Load(r io.Reader, source string) error {
	return s.publish(s.gen.Add(1), source, func() (*trace.Document, []trace.Warning, error) {
		return trace.Load(r)
	})
}

// LoadFile loads a trace file synchronously.
func (s *Session) LoadFile(path string) error {
	return s.publish(s.gen.Add(1), path, func() (*trace.Document, []trace.Warning, error) {
		return trace.LoadFile(path)
	})
}

// LoadAsync loads a trace file in the background. The returned channel
// receives the load error (nil on success) and is then closed. When loads
// overlap, the most recently started one wins: an older load that
// finishes later is discarded.
func (s *Session) LoadAsync(path string) <-chan error {
	gen := s.gen.Add(1)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.publish(gen, path, func() (*trace.Document, []trace.Warning, error) {
			return trace.LoadFile(path)
		})
	}()
	return done
}

// ErrSuperseded is joined to the result of a load that finished after a
// newer load had already been published.
var ErrSuperseded = errors.New("superseded by a newer load")

func (s *Session) publish(gen uint64, source string, load func() (*trace.Document, []trace.Warning, error)) error {
	s.logger.Debug("loading trace", "source", source, "generation", gen)
	raw, warnings, err := load()

	next := &document{gen: gen, source: source, raw: raw, warnings: warnings, err: err}
	filtered := false

	// The filter may change while the load is in flight; re-filter until the
	// swap happens with the filter that is active at that moment.
	for {
		prev := s.current.Load()
		if prev != nil && prev.gen > gen {
			s.logger.Debug("discarding stale load", "source", source, "generation", gen)
			return errors.Join(err, ErrSuperseded)
		}
		if err == nil {
			if f := s.filter.Load(); !filtered || f != next.filter {
				next.filter = f
				next.doc = applyFilter(raw, f)
				filtered = true
			}
		}
		if hook := s.beforeSwap; hook != nil {
			s.beforeSwap = nil
			hook()
		}
		if s.current.CompareAndSwap(prev, next) {
			break
		}
	}

	if err != nil {
		s.logger.Error("failed to load trace", "source", source, "error", err)
	} else {
		s.logWarnings(source, warnings)
		s.logger.Info("trace loaded",
			"source", source,
			"threads", len(raw.Threads),
			"locks", len(raw.Locks),
			"events", len(raw.Events),
			"warnings", len(warnings))
	}
	s.notifyUpdate()
	return err
}

func (s *Session) logWarnings(source string, warnings []trace.Warning) {
	for i, w := range warnings {
		if i == maxLoggedWarnings {
			s.logger.Warn("further data quality warnings suppressed",
				"source", source, "count", len(warnings)-maxLoggedWarnings)
			return
		}
		s.logger.Warn(w.Message,
			"kind", w.Kind.String(),
			"event", w.Index,
			"thread", string(w.Thread),
			"lock", string(w.Lock))
	}
}

func (s *Session) notifyUpdate() {
	if fn := s.notify.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
}

func applyFilter(doc *trace.Document, f *activeFilter) *trace.Document {
	if f == nil || f.q == nil || doc == nil {
		return doc
	}
	filtered, _ := query.Apply(doc, f.q)
	return filtered
}

// SetFilter restricts the display to threads with events matching expr.
// An empty expr clears the filter. The loaded document is re-filtered in
// place; the view is kept.
func (s *Session) SetFilter(expr string) error {
	var q *query.Query
	if expr != "" {
		var err error
		if q, err = query.Parse(expr); err != nil {
			return err
		}
	}
	f := &activeFilter{q: q, text: expr}
	s.filter.Store(f)

	for {
		cur := s.current.Load()
		if cur == nil || cur.raw == nil || cur.filter == f {
			return nil
		}
		next := *cur
		next.filter = f
		next.doc = applyFilter(cur.raw, f)
		if !s.current.CompareAndSwap(cur, &next) {
			continue
		}
		if s.seen == cur {
			s.seen = &next
			s.view = s.view.WithLimits(s.cfg.Limits(next.doc.Extent()))
			s.view = s.view.ScrollLanes(0, len(next.doc.Threads))
		}
		s.logger.Info("filter applied", "filter", expr, "threads", len(next.doc.Threads))
		s.notifyUpdate()
		return nil
	}
}

// Filter returns the active filter expression.
func (s *Session) Filter() string {
	if f := s.filter.Load(); f != nil {
		return f.text
	}
	return ""
}

// sync seeds the view when a new document has been published. Reloads of
// the same source keep the visible window; anything else starts from the
// full extent.
func (s *Session) sync() *document {
	cur := s.current.Load()
	if cur == s.seen {
		return cur
	}
	prev := s.seen
	s.seen = cur

	var ext trace.Extent
	if cur != nil && cur.doc != nil {
		ext = cur.doc.Extent()
	}
	limits := s.cfg.Limits(ext)

	if prev != nil && prev.doc != nil && cur != nil && cur.doc != nil && prev.source == cur.source {
		s.view = s.view.WithLimits(limits).ScrollLanes(0, len(cur.doc.Threads))
		if s.view.HasSelection {
			if _, ok := cur.doc.ThreadIndex(s.view.SelectedLane); !ok {
				s.view = s.view.SelectLane("", false)
			}
		}
		return cur
	}
	s.view = timeline.NewView(s.width, limits)
	return cur
}

// Snapshot returns the state for the next frame.
func (s *Session) Snapshot() frame.Snapshot {
	cur := s.sync()
	snap := frame.Snapshot{View: s.view, Layout: s.layout}
	if cur != nil {
		snap.Doc = cur.doc
	}
	return snap
}

// Document returns the displayed document, nil if none is loaded.
func (s *Session) Document() *trace.Document {
	if cur := s.current.Load(); cur != nil {
		return cur.doc
	}
	return nil
}

// Source names the current document.
func (s *Session) Source() string {
	if cur := s.current.Load(); cur != nil {
		return cur.source
	}
	return ""
}

// LoadErr returns the error of the most recent load, if it failed.
func (s *Session) LoadErr() error {
	if cur := s.current.Load(); cur != nil {
		return cur.err
	}
	return nil
}

// Warnings returns the data quality warnings of the current document.
func (s *Session) Warnings() []trace.Warning {
	if cur := s.current.Load(); cur != nil {
		return cur.warnings
	}
	return nil
}

// View returns the current view.
func (s *Session) View() timeline.View {
	s.sync()
	return s.view
}

// Size returns the viewport size last passed to Resize.
func (s *Session) Size() (int, int) {
	return s.width, s.height
}

// Resize records a new viewport size; it takes effect on the next frame.
func (s *Session) Resize(width, height int) {
	s.sync()
	if width == s.width && height == s.height {
		return
	}
	if err := timeline.CheckViewport(width, height); err != nil {
		s.logger.Debug("viewport not drawable", "error", err)
	}
	s.width, s.height = width, height
	s.view = s.view.Resize(width)
}

// Pan drags the timeline by dx pixels.
func (s *Session) Pan(dx float64) {
	s.sync()
	s.view = s.view.Pan(dx)
}

// ZoomAt zooms by factor around screen x.
func (s *Session) ZoomAt(factor, x float64) {
	s.sync()
	s.view = s.view.ZoomAt(factor, x)
}

// ZoomSteps zooms by the configured step per notch; negative notches zoom
// out.
func (s *Session) ZoomSteps(notches, x float64) {
	s.ZoomAt(math.Pow(s.cfg.View.ZoomStep, notches), x)
}

// PanSteps pans by the configured key step; positive steps reveal later
// times.
func (s *Session) PanSteps(steps float64) {
	s.Pan(-steps * s.cfg.View.PanStep)
}

// SelectLane selects a lane by thread id; ok = false clears it.
func (s *Session) SelectLane(id trace.ID, ok bool) {
	s.sync()
	s.view = s.view.SelectLane(id, ok)
}

// SelectLaneAt toggles the selection of the lane under screen y. Clicking
// outside any lane clears the selection.
func (s *Session) SelectLaneAt(y float64) {
	cur := s.sync()
	var doc *trace.Document
	if cur != nil {
		doc = cur.doc
	}
	id, ok := timeline.LaneAt(doc, s.view, s.layout, y)
	if ok && s.view.HasSelection && s.view.SelectedLane == id {
		ok = false
	}
	s.view = s.view.SelectLane(id, ok)
}

// ShowRange sets the visible time window.
func (s *Session) ShowRange(start, end float64) {
	s.sync()
	s.view = s.view.ShowRange(start, end)
}

// HighlightAt highlights every bar of the lock under screen (x, y) and
// reports whether the highlight changed. Empty space and merged bars
// covering several locks clear it.
func (s *Session) HighlightAt(x, y float64) bool {
	cur := s.sync()
	var id trace.ID
	if cur != nil && cur.doc != nil {
		if b, ok := timeline.BarAt(cur.doc, s.view, s.layout, x, y); ok && !b.Mixed {
			id = b.Lock
		}
	}
	if id == s.view.HighlightLock {
		return false
	}
	s.view = s.view.Highlight(id)
	return true
}

// ClearHighlight removes the lock highlight and reports whether one was set.
func (s *Session) ClearHighlight() bool {
	s.sync()
	if s.view.HighlightLock == "" {
		return false
	}
	s.view = s.view.Highlight("")
	return true
}

// HighlightedLock returns the highlighted lock, if any.
func (s *Session) HighlightedLock() (trace.Lock, bool) {
	cur := s.sync()
	if cur == nil || cur.doc == nil || s.view.HighlightLock == "" {
		return trace.Lock{}, false
	}
	l, ok := cur.doc.Locks[s.view.HighlightLock]
	return l, ok
}

// Reset shows the full extent again.
func (s *Session) Reset() {
	s.sync()
	s.view = s.view.ResetToFullExtent()
}

// ScrollLanes moves the first visible lane by n.
func (s *Session) ScrollLanes(n int) {
	cur := s.sync()
	lanes := 0
	if cur != nil && cur.doc != nil {
		lanes = len(cur.doc.Threads)
	}
	s.view = s.view.ScrollLanes(n, lanes)
}
