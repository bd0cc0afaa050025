package trace

import (
	"errors"
	"fmt"
)

// ErrMissingField is wrapped by LoadError when a required top-level field
// is absent from the raw document.
var ErrMissingField = errors.New("missing required field")

// LoadError reports a structurally malformed trace document. It is the only
// error Load returns for bad input; individual bad events become warnings.
type LoadError struct {
	Source string // file name, if known
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Source != "" {
		return fmt.Sprintf("load %s: %s", e.Source, msg)
	}
	return "load trace: " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// WarningKind classifies a data-quality problem found while loading.
type WarningKind int

const (
	WarnMalformedEvent WarningKind = iota
	WarnMissingField
	WarnUnknownKind
	WarnUnknownThread
	WarnUnknownLock
	WarnBadTimestamp
	WarnDuplicateThread
	WarnDuplicateLock
	WarnMalformedEntry
	WarnAcquireWithoutRequest
	WarnReleaseWithoutAcquire
	WarnRecursiveAcquire
	WarnUnterminated
)

var warningNames = [...]string{
	WarnMalformedEvent:        "malformed-event",
	WarnMissingField:          "missing-field",
	WarnUnknownKind:           "unknown-kind",
	WarnUnknownThread:         "unknown-thread",
	WarnUnknownLock:           "unknown-lock",
	WarnBadTimestamp:          "bad-timestamp",
	WarnDuplicateThread:       "duplicate-thread",
	WarnDuplicateLock:         "duplicate-lock",
	WarnMalformedEntry:        "malformed-entry",
	WarnAcquireWithoutRequest: "acquire-without-request",
	WarnReleaseWithoutAcquire: "release-without-acquire",
	WarnRecursiveAcquire:      "recursive-acquire",
	WarnUnterminated:          "unterminated",
}

func (k WarningKind) String() string {
	if int(k) >= 0 && int(k) < len(warningNames) {
		return warningNames[k]
	}
	return fmt.Sprintf("warning(%d)", int(k))
}

// Dropping reports whether a warning of this kind means the event was
// discarded rather than displayed with a best-effort interpretation.
func (k WarningKind) Dropping() bool {
	switch k {
	case WarnMalformedEvent, WarnMissingField, WarnUnknownKind,
		WarnUnknownThread, WarnUnknownLock, WarnBadTimestamp:
		return true
	}
	return false
}

// Warning is a DataQualityWarning: a non-fatal anomaly in the trace.
type Warning struct {
	Kind    WarningKind
	Index   int // raw event index, -1 when the warning is not about an event
	Thread  ID
	Lock    ID
	Message string
}

func (w Warning) String() string {
	if w.Index >= 0 {
		return fmt.Sprintf("[%s] event %d: %s", w.Kind, w.Index, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
}
