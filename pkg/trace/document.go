package trace

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Document is the immutable in-memory form of a loaded trace. Events are
// sorted by timestamp and every event references a declared thread and lock.
type Document struct {
	Threads   []Thread
	Locks     map[ID]Lock
	LockOrder []ID // declaration order of Locks
	Events    []Event

	extent      Extent
	threadIndex map[ID]int
	lanes       []lane
}

// lane indexes the spans of one thread for visible-range queries.
type lane struct {
	spans   []Span // sorted by Start
	open    []int  // indices of unterminated spans
	maxSpan float64
}

type pairKey struct {
	thread ID
	lock   ID
}

type pendingEvent struct {
	pos int
	ts  float64
}

// Build assembles a document from already decoded parts. Events that
// reference undeclared threads or locks are dropped; the remainder are
// sorted by timestamp (stable, so coincident events keep their input order)
// and paired into spans.
func Build(threads []Thread, locks []Lock, events []Event) (*Document, []Warning) {
	var warnings []Warning

	doc := &Document{
		Locks:       make(map[ID]Lock, len(locks)),
		threadIndex: make(map[ID]int, len(threads)),
	}

	for _, t := range threads {
		if _, dup := doc.threadIndex[t.ID]; dup {
			warnings = append(warnings, Warning{
				Kind: WarnDuplicateThread, Index: -1, Thread: t.ID,
				Message: fmt.Sprintf("thread %q declared more than once", t.ID),
			})
			continue
		}
		doc.threadIndex[t.ID] = len(doc.Threads)
		doc.Threads = append(doc.Threads, t)
	}

	for _, l := range locks {
		if _, dup := doc.Locks[l.ID]; dup {
			warnings = append(warnings, Warning{
				Kind: WarnDuplicateLock, Index: -1, Lock: l.ID,
				Message: fmt.Sprintf("lock %q declared more than once", l.ID),
			})
			continue
		}
		doc.Locks[l.ID] = l
		doc.LockOrder = append(doc.LockOrder, l.ID)
	}

	doc.Events = make([]Event, 0, len(events))
	for _, ev := range events {
		if math.IsNaN(ev.Timestamp) || math.IsInf(ev.Timestamp, 0) {
			warnings = append(warnings, Warning{
				Kind: WarnBadTimestamp, Index: ev.Index, Thread: ev.ThreadID, Lock: ev.LockID,
				Message: "timestamp is not a finite number",
			})
			continue
		}
		if _, ok := doc.threadIndex[ev.ThreadID]; !ok {
			warnings = append(warnings, Warning{
				Kind: WarnUnknownThread, Index: ev.Index, Thread: ev.ThreadID, Lock: ev.LockID,
				Message: fmt.Sprintf("references unknown thread %q", ev.ThreadID),
			})
			continue
		}
		if _, ok := doc.Locks[ev.LockID]; !ok {
			warnings = append(warnings, Warning{
				Kind: WarnUnknownLock, Index: ev.Index, Thread: ev.ThreadID, Lock: ev.LockID,
				Message: fmt.Sprintf("references unknown lock %q", ev.LockID),
			})
			continue
		}
		doc.Events = append(doc.Events, ev)
	}

	sort.SliceStable(doc.Events, func(i, j int) bool {
		return doc.Events[i].Timestamp < doc.Events[j].Timestamp
	})

	warnings = append(warnings, doc.pair()...)
	doc.computeExtent()
	return doc, warnings
}

// pair walks the sorted events once and builds the per-lane span index.
// Releases close the most recent open acquisition on the same
// (thread, lock), so recursive acquisitions nest.
func (d *Document) pair() []Warning {
	var warnings []Warning

	d.lanes = make([]lane, len(d.Threads))
	requests := make(map[pairKey][]pendingEvent)
	open := make(map[pairKey][]int) // lane span indices, innermost last

	for pos, ev := range d.Events {
		key := pairKey{ev.ThreadID, ev.LockID}
		ln := &d.lanes[d.threadIndex[ev.ThreadID]]

		switch ev.Kind {
		case AcquireRequested:
			requests[key] = append(requests[key], pendingEvent{pos: pos, ts: ev.Timestamp})

		case Acquired:
			span := Span{
				Thread:    ev.ThreadID,
				Lock:      ev.LockID,
				Requested: ev.Timestamp,
				Acquired:  ev.Timestamp,
				First:     pos,
				Last:      pos,
				Depth:     len(open[key]),
			}
			if pending := requests[key]; len(pending) > 0 {
				req := pending[len(pending)-1]
				requests[key] = pending[:len(pending)-1]
				span.Requested = req.ts
				span.First = req.pos
			} else if ev.DurationHint != nil {
				span.Requested = ev.Timestamp - *ev.DurationHint
			} else {
				warnings = append(warnings, Warning{
					Kind: WarnAcquireWithoutRequest, Index: ev.Index, Thread: ev.ThreadID, Lock: ev.LockID,
					Message: "Acquired without a preceding AcquireRequested",
				})
			}
			if span.Depth > 0 {
				warnings = append(warnings, Warning{
					Kind: WarnRecursiveAcquire, Index: ev.Index, Thread: ev.ThreadID, Lock: ev.LockID,
					Message: fmt.Sprintf("Acquired while already held (depth %d)", span.Depth),
				})
			}
			ln.spans = append(ln.spans, span)
			open[key] = append(open[key], len(ln.spans)-1)

		case Released:
			stack := open[key]
			if len(stack) == 0 {
				warnings = append(warnings, Warning{
					Kind: WarnReleaseWithoutAcquire, Index: ev.Index, Thread: ev.ThreadID, Lock: ev.LockID,
					Message: "Released without a matching Acquired",
				})
				continue
			}
			idx := stack[len(stack)-1]
			open[key] = stack[:len(stack)-1]
			ln.spans[idx].Released = ev.Timestamp
			ln.spans[idx].Last = pos
		}
	}

	for key, stack := range open {
		ln := &d.lanes[d.threadIndex[key.thread]]
		for _, idx := range stack {
			ln.spans[idx].Unterminated = true
		}
	}

	for i := range d.lanes {
		ln := &d.lanes[i]
		// Spans were appended in acquisition order; a wait segment can move
		// the start earlier, so sort by start explicitly.
		sort.SliceStable(ln.spans, func(a, b int) bool {
			return ln.spans[a].Start() < ln.spans[b].Start()
		})
		for idx, s := range ln.spans {
			if s.Unterminated {
				ln.open = append(ln.open, idx)
				ev := d.Events[s.Last]
				warnings = append(warnings, Warning{
					Kind: WarnUnterminated, Index: ev.Index, Thread: s.Thread, Lock: s.Lock,
					Message: "Acquired with no following Released",
				})
				continue
			}
			if length := s.Released - s.Start(); length > ln.maxSpan {
				ln.maxSpan = length
			}
		}
	}

	// Map iteration above is unordered; keep warnings deterministic.
	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].Index < warnings[j].Index
	})
	return warnings
}

func (d *Document) computeExtent() {
	if len(d.Events) == 0 {
		return
	}
	d.extent = Extent{Min: d.Events[0].Timestamp, Max: d.Events[len(d.Events)-1].Timestamp}
	for _, ln := range d.lanes {
		if len(ln.spans) > 0 && ln.spans[0].Start() < d.extent.Min {
			d.extent.Min = ln.spans[0].Start()
		}
	}
}

// Extent returns the time range [min timestamp, max timestamp] of the
// document, widened to include wait segments derived from duration hints.
func (d *Document) Extent() Extent {
	return d.extent
}

// ThreadIndex returns the lane index of a thread.
func (d *Document) ThreadIndex(id ID) (int, bool) {
	i, ok := d.threadIndex[id]
	return i, ok
}

// Thread returns the thread with the given id.
func (d *Document) Thread(id ID) (Thread, bool) {
	i, ok := d.threadIndex[id]
	if !ok {
		return Thread{}, false
	}
	return d.Threads[i], true
}

// Spans returns every span of a lane, sorted by start time.
func (d *Document) Spans(laneIdx int) []Span {
	if laneIdx < 0 || laneIdx >= len(d.lanes) {
		return nil
	}
	return d.lanes[laneIdx].spans
}

// SpanCount returns the total number of spans in the document.
func (d *Document) SpanCount() int {
	n := 0
	for _, ln := range d.lanes {
		n += len(ln.spans)
	}
	return n
}

// VisibleSpans returns the indices (into Spans(laneIdx)) of spans that
// intersect [start, end], in start order. Unterminated spans count as
// extending forever.
func (d *Document) VisibleSpans(laneIdx int, start, end float64) []int {
	if laneIdx < 0 || laneIdx >= len(d.lanes) {
		return nil
	}
	ln := &d.lanes[laneIdx]

	lo := sort.Search(len(ln.spans), func(i int) bool {
		return ln.spans[i].Start() >= start-ln.maxSpan
	})

	var out []int
	for i := lo; i < len(ln.spans); i++ {
		s := ln.spans[i]
		if s.Start() > end {
			break
		}
		if s.Unterminated || s.Released >= start {
			out = append(out, i)
		}
	}
	for _, i := range ln.open {
		if i < lo && ln.spans[i].Start() <= end {
			out = append(out, i)
		}
	}
	slices.Sort(out)
	return out
}
