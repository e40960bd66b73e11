// Package appops is the App Ops engine: it evaluates operation modes for
// (op, uid, package, attribution) subjects, tracks active spans, keeps the
// access history and notifies watchers of mode, active and noted events.
package appops

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/accesslog"
	"github.com/Mindburn-Labs/appops/pkg/activeops"
	"github.com/Mindburn-Labs/appops/pkg/audit"
	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/authz"
	"github.com/Mindburn-Labs/appops/pkg/packages"
	"github.com/Mindburn-Labs/appops/pkg/registry"
	"github.com/Mindburn-Labs/appops/pkg/store"
	"github.com/Mindburn-Labs/appops/pkg/watch"
)

// Recorder receives engine metrics. *observability.EngineMetrics implements
// it.
type Recorder interface {
	RecordDecision(ctx context.Context, call, op, mode string)
	RecordModeChange(ctx context.Context, op, scope string)
	RecordActive(ctx context.Context, op string, delta int64)
	RecordEvent(ctx context.Context, class string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(context.Context, string, string, string) {}
func (nopRecorder) RecordModeChange(context.Context, string, string) {}
func (nopRecorder) RecordActive(context.Context, string, int64) {}
func (nopRecorder) RecordEvent(context.Context, string) {}

// Options configure a Service. Every field is optional.
type Options struct {
	Catalog      *registry.Catalog
	Store        *store.ModeStore
	Directory    packages.Directory
	Restrictions *authz.Restrictions
	Recorder     Recorder
	Audit        audit.Logger
	Now          func() time.Time
}

// Request names the subject of a note, start or finish.
type Request struct {
	Op             string `json:"op"`
	UID            int    `json:"uid"`
	Package        string `json:"package"`
	AttributionTag string `json:"attribution_tag,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Service is safe for concurrent use. One RWMutex orders every mutation of
// the mode table, tracker and access log; watcher events are queued under
// it and delivered after it is released.
type Service struct {
	mu sync.RWMutex

	catalog      *registry.Catalog
	modes        *store.ModeStore
	tracker      *activeops.Tracker
	access       *accesslog.Logger
	hub          *watch.Hub
	dir          packages.Directory
	gate         authz.Gate
	restrictions *authz.Restrictions
	rec          Recorder
	audit        audit.Logger
	now          func() time.Time
	logger       *slog.Logger
}

// New builds a Service. It does no I/O; call Load to read persisted modes.
func New(opts Options) *Service {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = registry.Default()
	}
	modes := opts.Store
	if modes == nil {
		modes = store.NewModeStore(catalog, store.NewMemoryPersister(), store.DefaultWriteDelay)
	}
	dir := opts.Directory
	if dir == nil {
		dir = packages.NewInMemoryDirectory(packages.Platform...)
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		catalog:      catalog,
		modes:        modes,
		tracker:      activeops.New(),
		access:       accesslog.New(),
		dir:          dir,
		restrictions: opts.Restrictions,
		rec:          rec,
		audit:        auditLog,
		now:          now,
		logger:       slog.Default().With("component", "appops"),
	}
	s.hub = watch.NewHub(s.visible)
	return s
}

// Catalog returns the operation catalog for permission and name lookups.
func (s *Service) Catalog() *registry.Catalog {
	return s.catalog
}

// Load reads the persisted modes into the table.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes.Load(ctx)
}

// Close stops the deferred writer and flushes pending mode changes.
func (s *Service) Close(ctx context.Context) error {
	return s.modes.Close(ctx)
}

// CheckPackage verifies that uid owns pkg.
func (s *Service) CheckPackage(uid int, pkg string) error {
	if pkg == "" || !s.dir.Owns(uid, pkg) {
		return fmt.Errorf("%w: uid %d does not own package %q", ErrBadSubject, uid, pkg)
	}
	return nil
}

func (s *Service) resolve(name string) (registry.Op, error) {
	return s.catalog.ByName(name)
}

// effectiveMode resolves the stored mode and, unless raw, applies the
// restriction rules. Callers hold s.mu.
func (s *Service) effectiveMode(op registry.Op, uid int, pkg, tag string, raw bool) registry.Mode {
	mode := s.modes.Table().GetMode(op, uid, pkg)
	if raw || mode != registry.ModeAllowed {
		return mode
	}
	if rule, ok := s.restrictions.Match(authz.Subject{Op: op.Name, UID: uid, Package: pkg, Attribution: tag}); ok {
		s.logger.Debug("operation restricted", "op", op.Name, "uid", uid, "package", pkg, "rule", rule)
		return registry.ModeIgnored
	}
	return mode
}

// visible filters watcher deliveries by the owner's authority.
func (s *Service) visible(owner auth.Caller, ev watch.Event) bool {
	subj := ev.EventSubject()
	op, err := s.catalog.ByCode(subj.OpCode)
	if err != nil {
		return false
	}
	if ev.Class() == watch.ClassMode {
		return authz.Allowed(s.gate.CanReadRestricted(owner, op))
	}
	return s.gate.CanSee(owner, subj.UID, op)
}

func (s *Service) enqueue(ctx context.Context, p watch.Pending, ev watch.Event) watch.Pending {
	s.rec.RecordEvent(ctx, ev.Class().String())
	return append(p, s.hub.Enqueue(ev)...)
}

func subject(op registry.Op, uid int, pkg string) watch.Subject {
	return watch.Subject{OpCode: op.Code, Op: op.Name, UID: uid, Package: pkg}
}

func flagsFor(caller auth.Caller, uid int) registry.OpFlags {
	if caller.UID == uid {
		return registry.FlagSelf
	}
	return registry.FlagTrustedProxied
}

func (s *Service) recordAudit(ctx context.Context, caller auth.Caller, typ audit.EventType, action, resource string, meta map[string]any) {
	if err := s.audit.Record(auth.WithCaller(ctx, caller), typ, action, resource, meta); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", "action", action, "error", err)
	}
}
