// Package watch fans engine events out to registered callbacks.
package watch

import (
	"fmt"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// Class separates the three watcher kinds.
type Class int

const (
	ClassMode Class = iota
	ClassActive
	ClassNoted
)

func (c Class) String() string {
	switch c {
	case ClassMode:
		return "mode"
	case ClassActive:
		return "active"
	case ClassNoted:
		return "noted"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Subject names the (op, uid, package) an event is about.
type Subject struct {
	OpCode  int    `json:"op_code"`
	Op      string `json:"op"`
	UID     int    `json:"uid"`
	Package string `json:"package"`
}

// Event is implemented by ModeEvent, ActiveEvent and NotedEvent.
type Event interface {
	Class() Class
	EventSubject() Subject
}

// ModeEvent reports that the effective mode of a subject may have changed.
type ModeEvent struct {
	Subject
}

func (ModeEvent) Class() Class { return ClassMode }
func (e ModeEvent) EventSubject() Subject { return e.Subject }

// ActiveEvent reports an active/inactive edge of the (op, uid, package)
// aggregate.
type ActiveEvent struct {
	Subject
	Active bool `json:"active"`
}

func (ActiveEvent) Class() Class { return ClassActive }
func (e ActiveEvent) EventSubject() Subject { return e.Subject }

// NotedEvent reports one evaluated note.
type NotedEvent struct {
	Subject
	AttributionTag string           `json:"attribution_tag,omitempty"`
	Flags          registry.OpFlags `json:"flags"`
	Mode           registry.Mode    `json:"mode"`
}

func (NotedEvent) Class() Class { return ClassNoted }
func (e NotedEvent) EventSubject() Subject { return e.Subject }

// Filter narrows a registration. Empty Ops matches every op; an empty
// Package matches every package.
type Filter struct {
	Ops     []int
	Package string
}

// Matches reports whether s passes the filter.
func (f Filter) Matches(s Subject) bool {
	if f.Package != "" && f.Package != s.Package {
		return false
	}
	if len(f.Ops) == 0 {
		return true
	}
	for _, op := range f.Ops {
		if op == s.OpCode {
			return true
		}
	}
	return false
}
