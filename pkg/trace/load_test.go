package trace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const basicTrace = `{
  "threads": [{"id": 1, "label": "main"}, {"id": "worker", "label": "worker-1"}],
  "locks":   [{"id": "db", "label": "db mutex", "created": 0.5}],
  "events": [
    {"timestamp": 4, "threadId": 1, "lockId": "db", "kind": "Released"},
    {"timestamp": 1, "threadId": 1, "lockId": "db", "kind": "AcquireRequested"},
    {"timestamp": 2, "threadId": 1, "lockId": "db", "kind": "Acquired"},
    {"timestamp": 3, "threadId": "worker", "lockId": "db", "kind": "AcquireRequested"},
    {"timestamp": 4, "threadId": "worker", "lockId": "db", "kind": "Acquired"},
    {"timestamp": 9, "threadId": "worker", "lockId": "db", "kind": "Released"}
  ]
}`

func mustParse(t *testing.T, input string) (*Document, []Warning) {
	t.Helper()
	doc, warnings, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc, warnings
}

func TestParseSortsEvents(t *testing.T) {
	doc, warnings := mustParse(t, basicTrace)

	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(doc.Events) != 6 {
		t.Fatalf("got %d events, want 6", len(doc.Events))
	}
	for i := 1; i < len(doc.Events); i++ {
		if doc.Events[i].Timestamp < doc.Events[i-1].Timestamp {
			t.Fatalf("events not sorted at %d: %v after %v", i, doc.Events[i].Timestamp, doc.Events[i-1].Timestamp)
		}
	}

	ext := doc.Extent()
	if ext.Min != 1 || ext.Max != 9 {
		t.Errorf("extent = %+v, want [1, 9]", ext)
	}
}

func TestParseThreadsAndLocks(t *testing.T) {
	doc, _ := mustParse(t, basicTrace)

	if len(doc.Threads) != 2 {
		t.Fatalf("got %d threads, want 2", len(doc.Threads))
	}
	if doc.Threads[0].ID != "1" || doc.Threads[0].Name() != "main" {
		t.Errorf("thread 0 = %+v", doc.Threads[0])
	}
	if doc.Threads[1].ID != "worker" {
		t.Errorf("thread 1 = %+v", doc.Threads[1])
	}

	lock, ok := doc.Locks["db"]
	if !ok {
		t.Fatal("lock db missing")
	}
	if lock.Created == nil || *lock.Created != 0.5 {
		t.Errorf("lock created = %v, want 0.5", lock.Created)
	}
}

func TestParseSpans(t *testing.T) {
	doc, _ := mustParse(t, basicTrace)

	spans := doc.Spans(0)
	if len(spans) != 1 {
		t.Fatalf("lane 0: got %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Requested != 1 || s.Acquired != 2 || s.Released != 4 || s.Unterminated {
		t.Errorf("lane 0 span = %+v", s)
	}
	if s.Wait() != 1 || s.Hold() != 2 {
		t.Errorf("wait/hold = %v/%v, want 1/2", s.Wait(), s.Hold())
	}

	spans = doc.Spans(1)
	if len(spans) != 1 || spans[0].Released != 9 {
		t.Fatalf("lane 1 spans = %+v", spans)
	}
}

func TestParseMissingTopLevelField(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing events", `{"threads": [], "locks": []}`},
		{"missing threads", `{"locks": [], "events": []}`},
		{"missing locks", `{"threads": [], "events": []}`},
		{"not an object", `[1, 2, 3]`},
		{"not json", `threads: []`},
		{"events not an array", `{"threads": [], "locks": [], "events": 3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, _, err := Parse([]byte(tt.input))
			if err == nil {
				t.Fatalf("expected LoadError, got document %+v", doc)
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("error %v is not a *LoadError", err)
			}
		})
	}

	_, _, err := Parse([]byte(`{"threads": [], "locks": []}`))
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("missing events error %v does not wrap ErrMissingField", err)
	}
}

func TestParseDropsBadEvents(t *testing.T) {
	input := `{
  "threads": [{"id": 1, "label": "main"}],
  "locks":   [{"id": 7, "label": "L"}],
  "events": [
    {"timestamp": 0, "threadId": 1, "lockId": 7, "kind": "Acquired"},
    {"timestamp": 1, "threadId": 1, "kind": "Released"},
    {"timestamp": 2, "threadId": 99, "lockId": 7, "kind": "Acquired"},
    {"timestamp": 3, "threadId": 1, "lockId": 8, "kind": "Acquired"},
    {"timestamp": 4, "threadId": 1, "lockId": 7, "kind": "Exploded"},
    {"timestamp": "soon", "threadId": 1, "lockId": 7, "kind": "Released"},
    {"timestamp": 5, "threadId": 1, "lockId": 7, "kind": "Released"}
  ]
}`
	doc, warnings := mustParse(t, input)

	if len(doc.Events) != 2 {
		t.Fatalf("got %d events, want 2 (the rest dropped)", len(doc.Events))
	}

	want := map[int]WarningKind{
		1: WarnMissingField,
		2: WarnUnknownThread,
		3: WarnUnknownLock,
		4: WarnUnknownKind,
		5: WarnMalformedEvent,
	}
	got := make(map[int]WarningKind)
	for _, w := range warnings {
		if w.Kind.Dropping() {
			got[w.Index] = w.Kind
		}
	}
	for idx, kind := range want {
		if got[idx] != kind {
			t.Errorf("event %d: warning %v, want %v", idx, got[idx], kind)
		}
	}
	if len(got) != len(want) {
		t.Errorf("got %d dropping warnings, want %d: %v", len(got), len(want), warnings)
	}
}

func TestParseMissingLockIDDropsOnlyThatEvent(t *testing.T) {
	input := `{
  "threads": [{"id": 1}],
  "locks":   [{"id": 2}],
  "events": [
    {"timestamp": 0, "threadId": 1, "lockId": 2, "kind": "AcquireRequested"},
    {"timestamp": 0, "threadId": 1, "lockId": 2, "kind": "Acquired"},
    {"timestamp": 3, "threadId": 1, "kind": "Released"}
  ]
}`
	doc, warnings := mustParse(t, input)

	if len(doc.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(doc.Events))
	}
	found := false
	for _, w := range warnings {
		if w.Kind == WarnMissingField && w.Index == 2 {
			found = true
			if !strings.Contains(w.Message, "lockId") {
				t.Errorf("warning message %q does not name lockId", w.Message)
			}
		}
	}
	if !found {
		t.Errorf("no missing-field warning for event 2: %v", warnings)
	}
}

func TestProtocolWarnings(t *testing.T) {
	input := `{
  "threads": [{"id": "t"}],
  "locks":   [{"id": "a"}],
  "events": [
    {"timestamp": 0, "threadId": "t", "lockId": "a", "kind": "Released"},
    {"timestamp": 1, "threadId": "t", "lockId": "a", "kind": "Acquired"},
    {"timestamp": 2, "threadId": "t", "lockId": "a", "kind": "Acquired"},
    {"timestamp": 3, "threadId": "t", "lockId": "a", "kind": "Released"}
  ]
}`
	doc, warnings := mustParse(t, input)

	kinds := make(map[WarningKind]int)
	for _, w := range warnings {
		kinds[w.Kind]++
	}
	if kinds[WarnReleaseWithoutAcquire] != 1 {
		t.Errorf("release-without-acquire = %d, want 1", kinds[WarnReleaseWithoutAcquire])
	}
	if kinds[WarnAcquireWithoutRequest] != 2 {
		t.Errorf("acquire-without-request = %d, want 2", kinds[WarnAcquireWithoutRequest])
	}
	if kinds[WarnRecursiveAcquire] != 1 {
		t.Errorf("recursive-acquire = %d, want 1", kinds[WarnRecursiveAcquire])
	}
	if kinds[WarnUnterminated] != 1 {
		t.Errorf("unterminated = %d, want 1", kinds[WarnUnterminated])
	}

	// Inner acquisition closes first; the outer one is left open.
	spans := doc.Spans(0)
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if !spans[0].Unterminated || spans[0].Depth != 0 {
		t.Errorf("outer span = %+v, want unterminated depth 0", spans[0])
	}
	if spans[1].Unterminated || spans[1].Released != 3 || spans[1].Depth != 1 {
		t.Errorf("inner span = %+v, want released at 3 depth 1", spans[1])
	}
}

func TestDurationHintWait(t *testing.T) {
	input := `{
  "threads": [{"id": 1}],
  "locks":   [{"id": 1}],
  "events": [
    {"timestamp": 10, "threadId": 1, "lockId": 1, "kind": "Acquired", "durationHint": 4},
    {"timestamp": 12, "threadId": 1, "lockId": 1, "kind": "Released"}
  ]
}`
	doc, warnings := mustParse(t, input)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	s := doc.Spans(0)[0]
	if s.Requested != 6 || !s.HasWait() {
		t.Errorf("span = %+v, want wait from 6", s)
	}
	if ext := doc.Extent(); ext.Min != 6 || ext.Max != 12 {
		t.Errorf("extent = %+v, want [6, 12]", ext)
	}
}

func TestThreadWithoutEventsKeepsLane(t *testing.T) {
	doc, _ := mustParse(t, `{"threads": [{"id": 1}, {"id": 2}], "locks": [], "events": []}`)
	if len(doc.Threads) != 2 {
		t.Fatalf("got %d threads, want 2", len(doc.Threads))
	}
	if !doc.Extent().IsEmpty() {
		t.Errorf("extent of empty trace = %+v, want empty", doc.Extent())
	}
}

func TestDuplicateDeclarations(t *testing.T) {
	_, warnings := mustParse(t, `{
  "threads": [{"id": 1}, {"id": "1"}, {"label": "no id"}],
  "locks": [{"id": "x"}, {"id": "x"}],
  "events": []
}`)
	kinds := make(map[WarningKind]int)
	for _, w := range warnings {
		kinds[w.Kind]++
	}
	if kinds[WarnDuplicateThread] != 1 || kinds[WarnDuplicateLock] != 1 || kinds[WarnMalformedEntry] != 1 {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestVisibleSpans(t *testing.T) {
	threads := []Thread{{ID: "t"}}
	locks := []Lock{{ID: "a"}}
	var events []Event
	for i := 0; i < 10; i++ {
		ts := float64(i * 10)
		events = append(events,
			Event{Timestamp: ts, ThreadID: "t", LockID: "a", Kind: AcquireRequested, Index: len(events)},
			Event{Timestamp: ts + 1, ThreadID: "t", LockID: "a", Kind: Acquired, Index: len(events) + 1},
			Event{Timestamp: ts + 5, ThreadID: "t", LockID: "a", Kind: Released, Index: len(events) + 2},
		)
	}
	events = append(events, Event{Timestamp: 2, ThreadID: "t", LockID: "a", Kind: Acquired, Index: len(events)})

	doc, _ := Build(threads, locks, events)

	tests := []struct {
		name       string
		start, end float64
		want       int
	}{
		{"everything", 0, 100, 11},
		{"middle", 33, 47, 3}, // spans at 30 and 40 plus the open one
		{"gap between spans", 36, 39, 1},
		{"before trace", -10, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := doc.VisibleSpans(0, tt.start, tt.end)
			if len(got) != tt.want {
				t.Errorf("VisibleSpans(%v, %v) = %v, want %d spans", tt.start, tt.end, got, tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i] <= got[i-1] {
					t.Errorf("indices not ascending: %v", got)
				}
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.json")
	if err := os.WriteFile(path, []byte(basicTrace), 0644); err != nil {
		t.Fatal(err)
	}

	doc, _, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(doc.Events) != 6 {
		t.Errorf("got %d events, want 6", len(doc.Events))
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"threads": []}`), 0644); err != nil {
		t.Fatal(err)
	}
	_, _, err = LoadFile(bad)
	var le *LoadError
	if !errors.As(err, &le) || le.Source != bad {
		t.Errorf("LoadFile(bad) error = %v, want LoadError with source", err)
	}

	_, _, err = LoadFile(filepath.Join(dir, "missing.json"))
	if !errors.As(err, &le) {
		t.Errorf("LoadFile(missing) error = %v, want LoadError", err)
	}
}
