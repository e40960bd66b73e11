// Package accesslog keeps the last allowed and last rejected access per
// (op, uid, package, attribution tag).
package accesslog

import (
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// Key identifies one attribution's history.
type Key struct {
	Op             int
	UID            int
	Package        string
	AttributionTag string
}

// Outcome selects which trail a record belongs to.
type Outcome int

const (
	Allowed Outcome = iota
	Rejected
)

// Filter selects records for LastAccess.
type Filter int

const (
	FilterAllowed Filter = iota
	FilterRejected
	// FilterAny returns the more recent of the two trails.
	FilterAny
)

// Record is one access.
type Record struct {
	Time     time.Time        `json:"time"`
	Duration time.Duration    `json:"duration"`
	Mode     registry.Mode    `json:"mode"`
	Flags    registry.OpFlags `json:"flags"`
	Message  string           `json:"message,omitempty"`
}

// Entry is the full history of one key.
type Entry struct {
	Key      Key     `json:"key"`
	Allowed  *Record `json:"allowed,omitempty"`
	Rejected *Record `json:"rejected,omitempty"`
}

// Logger is safe for concurrent use. Reads observe every completed write.
type Logger struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
}

func New() *Logger {
	return &Logger{entries: make(map[Key]*Entry)}
}

// Record replaces the trail selected by outcome. The other trail is never
// touched.
func (l *Logger) Record(key Key, outcome Outcome, rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &Entry{Key: key}
		l.entries[key] = e
	}
	r := rec
	if outcome == Allowed {
		e.Allowed = &r
	} else {
		e.Rejected = &r
	}
}

// RecordSpan writes the allowed record of a finished span: its time is the
// outermost start and its duration runs to the finish. Flags and message of
// the start that opened the span are kept; any other allowed record is
// replaced.
func (l *Logger) RecordSpan(key Key, start time.Time, d time.Duration, flags registry.OpFlags) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &Entry{Key: key}
		l.entries[key] = e
	}
	rec := Record{Time: start, Duration: d, Mode: registry.ModeAllowed, Flags: flags}
	if prev := e.Allowed; prev != nil && prev.Time.Equal(start) {
		rec.Flags = prev.Flags
		rec.Message = prev.Message
	}
	e.Allowed = &rec
}

// LastAccess returns the selected record of key.
func (l *Logger) LastAccess(key Key, filter Filter) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[key]
	if !ok {
		return Record{}, false
	}
	var r *Record
	switch filter {
	case FilterAllowed:
		r = e.Allowed
	case FilterRejected:
		r = e.Rejected
	default:
		r = e.Allowed
		if e.Rejected != nil && (r == nil || e.Rejected.Time.After(r.Time)) {
			r = e.Rejected
		}
	}
	if r == nil {
		return Record{}, false
	}
	return *r, true
}

// ForPackage returns copies of every entry of (uid, pkg), ordered by op then
// attribution tag.
func (l *Logger) ForPackage(uid int, pkg string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for k, e := range l.entries {
		if k.UID != uid || k.Package != pkg {
			continue
		}
		c := Entry{Key: k}
		if e.Allowed != nil {
			a := *e.Allowed
			c.Allowed = &a
		}
		if e.Rejected != nil {
			r := *e.Rejected
			c.Rejected = &r
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Op != out[j].Key.Op {
			return out[i].Key.Op < out[j].Key.Op
		}
		return out[i].Key.AttributionTag < out[j].Key.AttributionTag
	})
	return out
}

// RemovePackage drops the history of (uid, pkg).
func (l *Logger) RemovePackage(uid int, pkg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.entries {
		if k.UID == uid && k.Package == pkg {
			delete(l.entries, k)
		}
	}
}
