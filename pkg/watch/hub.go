package watch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/appops/pkg/auth"
)

// Handle identifies a registration.
type Handle string

// Callback receives events of the class it was registered for.
type Callback func(Event)

// VisibilityFunc decides whether owner may see ev.
type VisibilityFunc func(owner auth.Caller, ev Event) bool

type registration struct {
	handle Handle
	class  Class
	filter Filter
	owner  auth.Caller
	exec   Executor
	cb     Callback

	stopped atomic.Bool

	mu        sync.Mutex
	queue     []Event
	scheduled bool
}

// Hub holds registrations and their delivery queues.
type Hub struct {
	mu      sync.RWMutex
	regs    map[Handle]*registration
	byClass map[Class][]*registration

	visible VisibilityFunc
	logger  *slog.Logger
}

// NewHub creates a hub. A nil visibility func lets every owner see every
// event.
func NewHub(visible VisibilityFunc) *Hub {
	return &Hub{
		regs:    make(map[Handle]*registration),
		byClass: make(map[Class][]*registration),
		visible: visible,
		logger:  slog.Default().With("component", "watch"),
	}
}

// Watch registers cb. A nil executor selects DefaultExecutor(class).
func (h *Hub) Watch(class Class, filter Filter, owner auth.Caller, exec Executor, cb Callback) Handle {
	if exec == nil {
		exec = DefaultExecutor(class)
	}
	r := &registration{
		handle: Handle(uuid.NewString()),
		class:  class,
		filter: filter,
		owner:  owner,
		exec:   exec,
		cb:     cb,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.regs[r.handle] = r
	h.byClass[class] = append(h.byClass[class], r)
	return r.handle
}

// Stop unregisters handle and drops its queued events. Unknown handles are
// ignored. The returned bool reports whether a registration was removed.
//
// No callback starts once Stop has returned, except one whose stopped check
// already passed: such an in-flight delivery runs to completion. Stop does
// not wait for it, so a callback may call Stop on its own handle.
func (h *Hub) Stop(handle Handle) bool {
	h.mu.Lock()
	r, ok := h.regs[handle]
	if ok {
		delete(h.regs, handle)
		list := h.byClass[r.class]
		for i, x := range list {
			if x == r {
				h.byClass[r.class] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()
	if !ok {
		return false
	}

	r.mu.Lock()
	r.stopped.Store(true)
	r.queue = nil
	r.mu.Unlock()
	return true
}

// Len returns the number of live registrations of class.
func (h *Hub) Len(class Class) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byClass[class])
}

// Pending is a set of registrations with undelivered events.
type Pending []*registration

// Enqueue appends ev to the queue of every matching, visible registration.
// Callers enqueue while holding their own state lock so that queue order
// follows state order, then call Pending.Flush after releasing it.
func (h *Hub) Enqueue(ev Event) Pending {
	subj := ev.EventSubject()

	h.mu.RLock()
	defer h.mu.RUnlock()

	var p Pending
	for _, r := range h.byClass[ev.Class()] {
		if !r.filter.Matches(subj) {
			continue
		}
		if h.visible != nil && !h.visible(r.owner, ev) {
			continue
		}
		r.mu.Lock()
		if !r.stopped.Load() {
			r.queue = append(r.queue, ev)
			p = append(p, r)
		}
		r.mu.Unlock()
	}
	return p
}

// Flush schedules a drain on every registration in p that is not already
// draining.
func (h *Hub) Flush(p Pending) {
	for _, r := range p {
		h.kick(r)
	}
}

func (h *Hub) kick(r *registration) {
	r.mu.Lock()
	if r.scheduled || len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	r.scheduled = true
	r.mu.Unlock()

	r.exec.Execute(func() { h.drain(r) })
}

func (h *Hub) drain(r *registration) {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 || r.stopped.Load() {
			r.queue = nil
			r.scheduled = false
			r.mu.Unlock()
			return
		}
		ev := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.mu.Unlock()

		h.invoke(r, ev)
	}
}

func (h *Hub) invoke(r *registration, ev Event) {
	if r.stopped.Load() {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("watcher callback panicked",
				"handle", string(r.handle),
				"class", r.class.String(),
				"panic", rec,
			)
		}
	}()
	r.cb(ev)
}
