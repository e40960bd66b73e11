package appops

import (
	"context"

	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/watch"
)

// StartWatchingMode registers cb for mode changes of op ("" for every op),
// limited to pkg unless pkg is empty. A nil executor delivers
// asynchronously.
func (s *Service) StartWatchingMode(ctx context.Context, caller auth.Caller, op, pkg string, exec watch.Executor, cb func(watch.ModeEvent)) (watch.Handle, error) {
	var names []string
	if op != "" {
		names = []string{op}
	}
	filter, err := s.watchFilter(caller, names)
	if err != nil {
		return "", err
	}
	filter.Package = pkg

	h := s.hub.Watch(watch.ClassMode, filter, caller, exec, func(ev watch.Event) {
		cb(ev.(watch.ModeEvent))
	})
	s.logger.DebugContext(ctx, "mode watcher registered", "handle", string(h), "uid", caller.UID, "op", op, "package", pkg)
	return h, nil
}

// StopWatchingMode unregisters h. Unknown handles are ignored.
func (s *Service) StopWatchingMode(h watch.Handle) {
	s.hub.Stop(h)
}

// StartWatchingActive registers cb for active/inactive edges of ops (all ops
// when empty). A nil executor delivers inline.
func (s *Service) StartWatchingActive(ctx context.Context, caller auth.Caller, ops []string, exec watch.Executor, cb func(watch.ActiveEvent)) (watch.Handle, error) {
	filter, err := s.watchFilter(caller, ops)
	if err != nil {
		return "", err
	}
	h := s.hub.Watch(watch.ClassActive, filter, caller, exec, func(ev watch.Event) {
		cb(ev.(watch.ActiveEvent))
	})
	s.logger.DebugContext(ctx, "active watcher registered", "handle", string(h), "uid", caller.UID, "ops", ops)
	return h, nil
}

// StopWatchingActive unregisters h. Unknown handles are ignored.
func (s *Service) StopWatchingActive(h watch.Handle) {
	s.hub.Stop(h)
}

// StartWatchingNoted registers cb for every note of ops (all ops when
// empty). A nil executor delivers inline.
func (s *Service) StartWatchingNoted(ctx context.Context, caller auth.Caller, ops []string, exec watch.Executor, cb func(watch.NotedEvent)) (watch.Handle, error) {
	filter, err := s.watchFilter(caller, ops)
	if err != nil {
		return "", err
	}
	h := s.hub.Watch(watch.ClassNoted, filter, caller, exec, func(ev watch.Event) {
		cb(ev.(watch.NotedEvent))
	})
	s.logger.DebugContext(ctx, "noted watcher registered", "handle", string(h), "uid", caller.UID, "ops", ops)
	return h, nil
}

// StopWatchingNoted unregisters h. Unknown handles are ignored.
func (s *Service) StopWatchingNoted(h watch.Handle) {
	s.hub.Stop(h)
}

// watchFilter resolves op names. Naming a restricted op requires an
// elevated caller; unrestricted filters still never deliver restricted
// events to unprivileged owners.
func (s *Service) watchFilter(caller auth.Caller, names []string) (watch.Filter, error) {
	var f watch.Filter
	for _, name := range names {
		op, err := s.resolve(name)
		if err != nil {
			return watch.Filter{}, err
		}
		if err := s.gate.CanReadRestricted(caller, op); err != nil {
			return watch.Filter{}, securityErr(op.Name, caller.UID, caller.Package, err)
		}
		f.Ops = append(f.Ops, op.Code)
	}
	return f, nil
}

// Watchers returns the number of live registrations per class.
func (s *Service) Watchers() map[string]int {
	return map[string]int{
		watch.ClassMode.String():   s.hub.Len(watch.ClassMode),
		watch.ClassActive.String(): s.hub.Len(watch.ClassActive),
		watch.ClassNoted.String():  s.hub.Len(watch.ClassNoted),
	}
}
