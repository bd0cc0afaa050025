package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID identifies a thread or a lock. Profilers emit either strings or
// integers; both are normalized to their textual form, so 3 and "3" are
// the same identifier.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("identifier is null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON always writes the identifier as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// EventKind is the lock operation an event records.
type EventKind int

const (
	AcquireRequested EventKind = iota // thread starts waiting for the lock
	Acquired                          // thread holds the lock
	Released                          // thread gives the lock back
)

var kindNames = map[EventKind]string{
	AcquireRequested: "AcquireRequested",
	Acquired:         "Acquired",
	Released:         "Released",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind maps the wire name of a kind (case-insensitive) to its value.
func ParseEventKind(s string) (EventKind, bool) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, true
		}
	}
	return 0, false
}

// Thread is one lane of the timeline.
type Thread struct {
	ID    ID
	Label string
}

// Name returns the label, falling back to the identifier.
func (t Thread) Name() string {
	if t.Label != "" {
		return t.Label
	}
	return string(t.ID)
}

// Lock describes a lock object referenced by events.
type Lock struct {
	ID      ID
	Label   string
	Created *float64 // creation timestamp, when the profiler recorded it
}

// Name returns the label, falling back to the identifier.
func (l Lock) Name() string {
	if l.Label != "" {
		return l.Label
	}
	return string(l.ID)
}

// Event is a single timestamped lock operation.
type Event struct {
	Timestamp    float64
	ThreadID     ID
	LockID       ID
	Kind         EventKind
	DurationHint *float64 // time spent waiting before an Acquired, if known

	// Index is the position of the event in the raw input, kept for
	// warnings and for mapping primitives back to the source.
	Index int
}

// Extent is the closed time range covered by a document.
type Extent struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (e Extent) Span() float64 {
	return e.Max - e.Min
}

// IsEmpty reports whether the extent has no width.
func (e Extent) IsEmpty() bool {
	return e.Max <= e.Min
}

// Span is one lock acquisition on a lane: an optional wait segment
// (Requested..Acquired) followed by a hold segment (Acquired..Released).
type Span struct {
	Thread ID
	Lock   ID

	Requested float64 // start of the wait; equals Acquired when no wait is known
	Acquired  float64
	Released  float64 // meaningless when Unterminated

	// Unterminated is set when the trace ended while the lock was held.
	Unterminated bool
	// Depth is the recursion depth of the acquisition (0 = outermost).
	Depth int

	// First and Last are positions in Document.Events covered by the span.
	First int
	Last  int
}

// Start returns the earliest time the span covers.
func (s Span) Start() float64 {
	return s.Requested
}

// HasWait reports whether the span has a non-empty wait segment.
func (s Span) HasWait() bool {
	return s.Requested < s.Acquired
}

// Hold returns the held duration, or 0 for an unterminated span.
func (s Span) Hold() float64 {
	if s.Unterminated {
		return 0
	}
	return s.Released - s.Acquired
}

// Wait returns the time spent waiting for the lock.
func (s Span) Wait() float64 {
	return s.Acquired - s.Requested
}
