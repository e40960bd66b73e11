// Package activeops tracks running (started but not finished) operations.
//
// Spans are ref-counted per (op, uid, package, attribution tag). The
// (op, uid, package) aggregate is active while any of its attribution spans
// is open; only aggregate transitions are reported as edges.
package activeops

import (
	"sort"
	"sync"
	"time"
)

// Key identifies one attribution span. An empty AttributionTag is the null
// tag.
type Key struct {
	Op             int
	UID            int
	Package        string
	AttributionTag string
}

// Subject drops the attribution tag.
func (k Key) Subject() Key {
	k.AttributionTag = ""
	return k
}

type subject struct {
	op  int
	uid int
	pkg string
}

func subjectOf(k Key) subject {
	return subject{op: k.Op, uid: k.UID, pkg: k.Package}
}

type span struct {
	count     int
	startedAt time.Time
}

// Span is a snapshot of one open span.
type Span struct {
	Key       Key
	Count     int
	StartedAt time.Time
}

// Result describes what a Finish did.
type Result struct {
	// Found is false when no span was open for the key.
	Found bool
	// SpanEnded is true when the attribution span's count reached zero.
	SpanEnded bool
	// BecameInactive is true when the aggregate has no spans left.
	BecameInactive bool
	// Duration runs from the outermost start to this finish; set only when
	// SpanEnded.
	Duration time.Duration
	// StartedAt is the outermost start of the span.
	StartedAt time.Time
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	spans  map[Key]*span
	active map[subject]int
}

func New() *Tracker {
	return &Tracker{
		spans:  make(map[Key]*span),
		active: make(map[subject]int),
	}
}

// Start opens or nests a span and reports whether the aggregate went from
// inactive to active.
func (t *Tracker) Start(key Key, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.spans[key]; ok {
		s.count++
		return false
	}
	t.spans[key] = &span{count: 1, startedAt: now}

	sub := subjectOf(key)
	t.active[sub]++
	return t.active[sub] == 1
}

// Finish closes one nesting level. Finishing a key with no open span is a
// no-op.
func (t *Tracker) Finish(key Key, now time.Time) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.spans[key]
	if !ok {
		return Result{}
	}
	res := Result{Found: true, StartedAt: s.startedAt}
	s.count--
	if s.count > 0 {
		return res
	}

	delete(t.spans, key)
	res.SpanEnded = true
	res.Duration = now.Sub(s.startedAt)

	sub := subjectOf(key)
	t.active[sub]--
	if t.active[sub] == 0 {
		delete(t.active, sub)
		res.BecameInactive = true
	}
	return res
}

// IsActive reports whether any attribution span of (op, uid, pkg) is open.
func (t *Tracker) IsActive(op, uid int, pkg string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active[subject{op, uid, pkg}] > 0
}

// IsAttributionActive reports whether the exact span is open.
func (t *Tracker) IsAttributionActive(key Key) bool {
	return t.Count(key) > 0
}

// Count returns the nesting depth of the span, 0 when closed.
func (t *Tracker) Count(key Key) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.spans[key]; ok {
		return s.count
	}
	return 0
}

// RemovePackage drops every span of (uid, pkg) and returns the aggregate
// keys (without attribution) that went inactive, ordered by op.
func (t *Tracker) RemovePackage(uid int, pkg string) []Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.spans {
		if k.UID == uid && k.Package == pkg {
			delete(t.spans, k)
		}
	}
	var out []Key
	for sub := range t.active {
		if sub.uid == uid && sub.pkg == pkg {
			delete(t.active, sub)
			out = append(out, Key{Op: sub.op, UID: uid, Package: pkg})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op < out[j].Op })
	return out
}

// Spans lists open spans matching uid (all uids when uid < 0), ordered by
// key.
func (t *Tracker) Spans(uid int) []Span {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Span, 0, len(t.spans))
	for k, s := range t.spans {
		if uid >= 0 && k.UID != uid {
			continue
		}
		out = append(out, Span{Key: k, Count: s.count, StartedAt: s.startedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Op != b.Op {
			return a.Op < b.Op
		}
		if a.UID != b.UID {
			return a.UID < b.UID
		}
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.AttributionTag < b.AttributionTag
	})
	return out
}
