package trace

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Event sequence numbers and span IDs are unique per process.
var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

func nextSeq() uint64 { return seqCounter.Add(1) }

// Span is one traced piece of a merge run: the run itself, a phase such as
// discover or reduce, a worker, or a single shard.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	tags    map[string]string
}

// Begin opens a span under parent and emits its begin event. When the
// tracer's level filters scope out, the returned span records nothing and
// reports parent as its ID, so shard spans under a filtered worker attach
// to the phase above it.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if !emits(t, scope) {
		return &Span{parent: parent}
	}
	s := &Span{
		tracer:  t,
		id:      spanCounter.Add(1),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	t.Emit(s.event(KindSpanBegin, s.started, ""))
	return s
}

// Tag attaches a key/value pair reported with the end event.
func (s *Span) Tag(key, value string) *Span {
	if s == nil || s.tracer == nil {
		return s
	}
	if s.tags == nil {
		s.tags = make(map[string]string, 4)
	}
	s.tags[key] = value
	return s
}

// Count tags the span with a number of shards, records, symbols and so on.
func (s *Span) Count(key string, n int) *Span {
	return s.Tag(key, strconv.Itoa(n))
}

// End emits the end event with outcome ("" for success) and returns how long
// the span was open.
func (s *Span) End(outcome string) time.Duration {
	if s == nil || s.tracer == nil {
		return 0
	}
	now := time.Now()
	ev := s.event(KindSpanEnd, now, outcome)
	ev.Extra = s.tags
	s.tracer.Emit(ev)
	return now.Sub(s.started)
}

// ID is the parent to pass to child spans.
func (s *Span) ID() uint64 {
	switch {
	case s == nil:
		return 0
	case s.id == 0:
		return s.parent
	default:
		return s.id
	}
}

func (s *Span) event(kind Kind, at time.Time, detail string) *Event {
	return &Event{
		Time:     at,
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
	}
}

// Mark emits a single point event, e.g. the shard count once discovery ends.
func Mark(t Tracer, scope Scope, name, detail string, parent uint64) {
	if !emits(t, scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		Name:     name,
		Detail:   detail,
	})
}

func emits(t Tracer, scope Scope) bool {
	return t != nil && t.Enabled() && t.Level().ShouldEmit(scope)
}
