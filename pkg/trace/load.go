package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

type rawDocument struct {
	Threads *[]json.RawMessage `json:"threads"`
	Locks   *[]json.RawMessage `json:"locks"`
	Events  *[]json.RawMessage `json:"events"`
}

type rawEntry struct {
	ID      *ID      `json:"id"`
	Label   string   `json:"label"`
	Created *float64 `json:"created"`
}

type rawEvent struct {
	Timestamp    *float64 `json:"timestamp"`
	ThreadID     *ID      `json:"threadId"`
	LockID       *ID      `json:"lockId"`
	Kind         *string  `json:"kind"`
	DurationHint *float64 `json:"durationHint"`
}

// LoadFile reads and loads a trace document from disk.
func LoadFile(filename string) (*Document, []Warning, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, &LoadError{Source: filename, Reason: "failed to read file", Err: err}
	}
	doc, warnings, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Source = filename
		}
		return nil, nil, err
	}
	return doc, warnings, nil
}

// Load reads a trace document from r.
func Load(r io.Reader) (*Document, []Warning, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, &LoadError{Reason: "failed to read input", Err: err}
	}
	return Parse(data)
}

// Parse decodes a raw JSON trace document. It fails only when the top-level
// structure is unusable; malformed threads, locks and events are dropped
// and reported as warnings.
func Parse(data []byte) (*Document, []Warning, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, &LoadError{Reason: "document is not a JSON object with array fields", Err: err}
	}
	switch {
	case raw.Threads == nil:
		return nil, nil, &LoadError{Reason: `"threads"`, Err: ErrMissingField}
	case raw.Locks == nil:
		return nil, nil, &LoadError{Reason: `"locks"`, Err: ErrMissingField}
	case raw.Events == nil:
		return nil, nil, &LoadError{Reason: `"events"`, Err: ErrMissingField}
	}

	var warnings []Warning

	threads := make([]Thread, 0, len(*raw.Threads))
	for i, msg := range *raw.Threads {
		var e rawEntry
		if err := json.Unmarshal(msg, &e); err != nil || e.ID == nil {
			warnings = append(warnings, Warning{
				Kind: WarnMalformedEntry, Index: -1,
				Message: fmt.Sprintf("thread entry %d has no usable id", i),
			})
			continue
		}
		threads = append(threads, Thread{ID: *e.ID, Label: e.Label})
	}

	locks := make([]Lock, 0, len(*raw.Locks))
	for i, msg := range *raw.Locks {
		var e rawEntry
		if err := json.Unmarshal(msg, &e); err != nil || e.ID == nil {
			warnings = append(warnings, Warning{
				Kind: WarnMalformedEntry, Index: -1,
				Message: fmt.Sprintf("lock entry %d has no usable id", i),
			})
			continue
		}
		locks = append(locks, Lock{ID: *e.ID, Label: e.Label, Created: e.Created})
	}

	events := make([]Event, 0, len(*raw.Events))
	for i, msg := range *raw.Events {
		ev, w, ok := decodeEvent(i, msg)
		if !ok {
			warnings = append(warnings, w)
			continue
		}
		events = append(events, ev)
	}

	doc, buildWarnings := Build(threads, locks, events)
	return doc, append(warnings, buildWarnings...), nil
}

func decodeEvent(index int, msg json.RawMessage) (Event, Warning, bool) {
	var e rawEvent
	if err := json.Unmarshal(msg, &e); err != nil {
		return Event{}, Warning{Kind: WarnMalformedEvent, Index: index, Message: err.Error()}, false
	}

	missing := func(field string) (Event, Warning, bool) {
		w := Warning{Kind: WarnMissingField, Index: index, Message: fmt.Sprintf("missing %q", field)}
		if e.ThreadID != nil {
			w.Thread = *e.ThreadID
		}
		if e.LockID != nil {
			w.Lock = *e.LockID
		}
		return Event{}, w, false
	}
	switch {
	case e.Timestamp == nil:
		return missing("timestamp")
	case e.ThreadID == nil:
		return missing("threadId")
	case e.LockID == nil:
		return missing("lockId")
	case e.Kind == nil:
		return missing("kind")
	}

	kind, ok := ParseEventKind(*e.Kind)
	if !ok {
		return Event{}, Warning{
			Kind: WarnUnknownKind, Index: index, Thread: *e.ThreadID, Lock: *e.LockID,
			Message: fmt.Sprintf("unknown kind %q", *e.Kind),
		}, false
	}

	ev := Event{
		Timestamp: *e.Timestamp,
		ThreadID:  *e.ThreadID,
		LockID:    *e.LockID,
		Kind:      kind,
		Index:     index,
	}
	if e.DurationHint != nil && *e.DurationHint >= 0 && !math.IsInf(*e.DurationHint, 0) {
		hint := *e.DurationHint
		ev.DurationHint = &hint
	}
	return ev, Warning{}, true
}
