package appops

import (
	"context"

	"github.com/Mindburn-Labs/appops/pkg/accesslog"
	"github.com/Mindburn-Labs/appops/pkg/activeops"
	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/authz"
	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// IsOpActive reports whether any attribution of (op, uid, pkg) has an open
// span. Unprivileged callers may only ask about their own uid.
func (s *Service) IsOpActive(ctx context.Context, caller auth.Caller, name string, uid int, pkg string) (bool, error) {
	op, err := s.observe(caller, name, uid, pkg)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.IsActive(op.Code, uid, pkg), nil
}

// LastAccess returns the last access of req's attribution selected by
// filter.
func (s *Service) LastAccess(ctx context.Context, caller auth.Caller, req Request, filter accesslog.Filter) (accesslog.Record, bool, error) {
	op, err := s.observe(caller, req.Op, req.UID, req.Package)
	if err != nil {
		return accesslog.Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.access.LastAccess(accesslog.Key{Op: op.Code, UID: req.UID, Package: req.Package, AttributionTag: req.AttributionTag}, filter)
	return rec, ok, nil
}

// OpEntry is one row of a package's operation history.
type OpEntry struct {
	Op             string            `json:"op"`
	AttributionTag string            `json:"attribution_tag,omitempty"`
	Mode           registry.Mode     `json:"mode"`
	Active         bool              `json:"active"`
	Allowed        *accesslog.Record `json:"allowed,omitempty"`
	Rejected       *accesslog.Record `json:"rejected,omitempty"`
}

// OpsForPackage lists the access history of (uid, pkg) with each op's
// current mode. Restricted ops are omitted for unprivileged callers.
func (s *Service) OpsForPackage(ctx context.Context, caller auth.Caller, uid int, pkg string) ([]OpEntry, error) {
	if err := s.gate.CanObserve(caller, uid); err != nil {
		return nil, securityErr("*", uid, pkg, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []OpEntry
	for _, e := range s.access.ForPackage(uid, pkg) {
		op, err := s.catalog.ByCode(e.Key.Op)
		if err != nil {
			continue
		}
		if !authz.Allowed(s.gate.CanReadRestricted(caller, op)) {
			continue
		}
		out = append(out, OpEntry{
			Op:             op.Name,
			AttributionTag: e.Key.AttributionTag,
			Mode:           s.modes.Table().GetMode(op, uid, pkg),
			Active:         s.tracker.IsAttributionActive(activeops.Key{Op: op.Code, UID: uid, Package: pkg, AttributionTag: e.Key.AttributionTag}),
			Allowed:        e.Allowed,
			Rejected:       e.Rejected,
		})
	}
	return out, nil
}

// ActiveSpans lists open spans of uid, or of every uid when uid < 0.
// Listing other uids requires an elevated caller.
func (s *Service) ActiveSpans(ctx context.Context, caller auth.Caller, uid int) ([]activeops.Span, error) {
	if uid < 0 && !caller.Elevated() {
		return nil, securityErr("*", uid, "", authz.ErrPermissionDenied)
	}
	if uid >= 0 {
		if err := s.gate.CanObserve(caller, uid); err != nil {
			return nil, securityErr("*", uid, "", err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.Spans(uid), nil
}

func (s *Service) observe(caller auth.Caller, name string, uid int, pkg string) (registry.Op, error) {
	op, err := s.resolve(name)
	if err != nil {
		return registry.Op{}, err
	}
	if err := s.gate.CanReadRestricted(caller, op); err != nil {
		return registry.Op{}, securityErr(op.Name, uid, pkg, err)
	}
	if err := s.gate.CanObserve(caller, uid); err != nil {
		return registry.Op{}, securityErr(op.Name, uid, pkg, err)
	}
	return op, nil
}
