// Package query implements the event filter language used to narrow a
// trace down to the threads, locks and event kinds of interest.
package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alecthomas/participle/v2"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

// Parser parses filter expressions.
type Parser struct {
	parser *participle.Parser[Query]
}

// NewParser creates a new filter parser instance.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[Query](
		participle.Lexer(FilterLexer),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.CaseInsensitive("Ident"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// ParseString parses a single filter expression.
func (p *Parser) ParseString(input string) (*Query, error) {
	q, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return q, nil
}

var defaultParser = sync.OnceValues(NewParser)

// Parse parses input with a shared parser.
func Parse(input string) (*Query, error) {
	p, err := defaultParser()
	if err != nil {
		return nil, err
	}
	return p.ParseString(input)
}

// Match reports whether ev satisfies the query. Thread and lock
// comparisons consider both the identifier and the label.
func (q *Query) Match(doc *trace.Document, ev trace.Event) bool {
	for _, and := range q.Or {
		if and.match(doc, ev) {
			return true
		}
	}
	return false
}

func (a *AndExpr) match(doc *trace.Document, ev trace.Event) bool {
	for _, u := range a.And {
		if !u.match(doc, ev) {
			return false
		}
	}
	return true
}

func (u *Unary) match(doc *trace.Document, ev trace.Event) bool {
	switch {
	case u.Not != nil:
		return !u.Not.match(doc, ev)
	case u.Group != nil:
		return u.Group.Match(doc, ev)
	case u.Cmp != nil:
		return u.Cmp.match(doc, ev)
	}
	return false
}

func (c *Comparison) match(doc *trace.Document, ev trace.Event) bool {
	var candidates []string
	switch strings.ToLower(c.Field) {
	case "thread":
		candidates = append(candidates, string(ev.ThreadID))
		if th, ok := doc.Thread(ev.ThreadID); ok && th.Label != "" {
			candidates = append(candidates, th.Label)
		}
	case "lock":
		candidates = append(candidates, string(ev.LockID))
		if l, ok := doc.Locks[ev.LockID]; ok && l.Label != "" {
			candidates = append(candidates, l.Label)
		}
	case "kind":
		candidates = append(candidates, ev.Kind.String())
	}

	switch c.Op {
	case "!=":
		return !anyOf(candidates, func(s string) bool { return strings.EqualFold(s, c.Value) })
	case "~":
		needle := strings.ToLower(c.Value)
		return anyOf(candidates, func(s string) bool { return strings.Contains(strings.ToLower(s), needle) })
	default:
		return anyOf(candidates, func(s string) bool { return strings.EqualFold(s, c.Value) })
	}
}

func anyOf(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}

// Apply returns a new document holding only the events that match q. Lanes
// are kept for threads with at least one matching event; all locks are kept.
func Apply(doc *trace.Document, q *Query) (*trace.Document, []trace.Warning) {
	if doc == nil || q == nil {
		return doc, nil
	}

	var events []trace.Event
	keep := make(map[trace.ID]bool)
	for _, ev := range doc.Events {
		if q.Match(doc, ev) {
			events = append(events, ev)
			keep[ev.ThreadID] = true
		}
	}

	var threads []trace.Thread
	for _, th := range doc.Threads {
		if keep[th.ID] {
			threads = append(threads, th)
		}
	}

	locks := make([]trace.Lock, 0, len(doc.LockOrder))
	for _, id := range doc.LockOrder {
		locks = append(locks, doc.Locks[id])
	}

	return trace.Build(threads, locks, events)
}
