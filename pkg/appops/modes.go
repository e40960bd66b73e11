package appops

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/appops/pkg/audit"
	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/authz"
	"github.com/Mindburn-Labs/appops/pkg/packages"
	"github.com/Mindburn-Labs/appops/pkg/registry"
	"github.com/Mindburn-Labs/appops/pkg/watch"
)

// SetMode sets the package-level mode of op for (uid, pkg). Mode watchers are
// notified only when the stored entry changes.
func (s *Service) SetMode(ctx context.Context, caller auth.Caller, name string, uid int, pkg string, mode registry.Mode) error {
	op, err := s.resolve(name)
	if err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if err := s.gate.CanSetMode(caller, uid, op); err != nil {
		s.recordAudit(ctx, caller, audit.EventDenied, "set_mode", resource(op.Name, uid, pkg), map[string]any{"error": err.Error()})
		return securityErr(op.Name, uid, pkg, err)
	}
	if err := s.CheckPackage(uid, pkg); err != nil {
		return err
	}

	var pending watch.Pending
	s.mu.Lock()
	changed := s.modes.Table().SetMode(op, uid, pkg, mode)
	if changed {
		s.modes.MarkDirty()
		pending = s.enqueue(ctx, pending, watch.ModeEvent{Subject: subject(op, uid, pkg)})
	}
	s.mu.Unlock()

	s.hub.Flush(pending)
	if changed {
		s.rec.RecordModeChange(ctx, op.Name, "package")
		s.recordAudit(ctx, caller, audit.EventModeChange, "set_mode", resource(op.Name, uid, pkg), map[string]any{"mode": mode.String()})
	}
	return nil
}

// SetUidMode sets the uid-level mode of op. A change notifies mode watchers
// once per package installed under uid.
func (s *Service) SetUidMode(ctx context.Context, caller auth.Caller, name string, uid int, mode registry.Mode) error {
	op, err := s.resolve(name)
	if err != nil {
		return err
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if err := s.gate.CanSetMode(caller, uid, op); err != nil {
		s.recordAudit(ctx, caller, audit.EventDenied, "set_uid_mode", resource(op.Name, uid, ""), map[string]any{"error": err.Error()})
		return securityErr(op.Name, uid, "", err)
	}

	var pending watch.Pending
	s.mu.Lock()
	changed := s.modes.Table().SetUIDMode(op, uid, mode)
	if changed {
		s.modes.MarkDirty()
		pkgs := s.dir.ForUID(uid)
		if len(pkgs) == 0 {
			pkgs = []string{""}
		}
		for _, pkg := range pkgs {
			pending = s.enqueue(ctx, pending, watch.ModeEvent{Subject: subject(op, uid, pkg)})
		}
	}
	s.mu.Unlock()

	s.hub.Flush(pending)
	if changed {
		s.rec.RecordModeChange(ctx, op.Name, "uid")
		s.recordAudit(ctx, caller, audit.EventModeChange, "set_uid_mode", resource(op.Name, uid, ""), map[string]any{"mode": mode.String()})
	}
	return nil
}

// ResetAllModes clears every package-level entry of (uid, pkg) and notifies
// mode watchers for each op whose effective mode changed. Entries shadowed by
// a uid-level mode are cleared silently.
func (s *Service) ResetAllModes(ctx context.Context, caller auth.Caller, uid int, pkg string) error {
	if err := s.gate.CanReset(caller, uid); err != nil {
		return securityErr("*", uid, pkg, err)
	}

	var (
		pending watch.Pending
		changed []registry.Op
	)
	s.mu.Lock()
	table := s.modes.Table()
	before := make(map[int]registry.Mode)
	for _, op := range s.catalog.Ops() {
		if _, ok := table.PackageMode(op, uid, pkg); ok {
			before[op.Code] = table.GetMode(op, uid, pkg)
		}
	}
	ops := table.ResetPackage(uid, pkg)
	if len(ops) > 0 {
		s.modes.MarkDirty()
	}
	for _, op := range ops {
		if table.GetMode(op, uid, pkg) == before[op.Code] {
			continue
		}
		changed = append(changed, op)
		pending = s.enqueue(ctx, pending, watch.ModeEvent{Subject: subject(op, uid, pkg)})
	}
	s.mu.Unlock()

	s.hub.Flush(pending)
	for _, op := range changed {
		s.rec.RecordModeChange(ctx, op.Name, "package")
	}
	if len(ops) > 0 {
		s.recordAudit(ctx, caller, audit.EventReset, "reset_all_modes", resource("*", uid, pkg), map[string]any{"ops": len(ops)})
	}
	return nil
}

// ReloadNonHistoricalState flushes the mode table to the persister and
// reads it back. A failed reload keeps the current modes. Watchers are not
// notified.
func (s *Service) ReloadNonHistoricalState(ctx context.Context, caller auth.Caller) error {
	if !caller.Elevated() {
		return securityErr("*", caller.UID, caller.Package, fmt.Errorf("%w: reload requires an elevated caller", authz.ErrPermissionDenied))
	}

	s.mu.Lock()
	err := s.modes.Reload(ctx)
	s.mu.Unlock()

	if err != nil {
		s.logger.ErrorContext(ctx, "reload failed, keeping current modes", "error", err)
		return fmt.Errorf("reload: %w", err)
	}
	s.recordAudit(ctx, caller, audit.EventReload, "reload", "modes", nil)
	return nil
}

// PackageRemoved uninstalls pkg from uid and drops every trace of it: modes,
// open spans and history. Spans that were active produce inactive edges.
// Only elevated callers may remove packages.
func (s *Service) PackageRemoved(ctx context.Context, caller auth.Caller, uid int, pkg string) error {
	if !caller.Elevated() {
		return securityErr("*", uid, pkg, fmt.Errorf("%w: package removal requires an elevated caller", authz.ErrPermissionDenied))
	}

	var pending watch.Pending

	s.mu.Lock()
	if err := s.dir.Uninstall(uid, pkg); err != nil {
		s.mu.Unlock()
		if errors.Is(err, packages.ErrPackageNotFound) {
			return securityErr("*", uid, pkg, fmt.Errorf("%w: %v", ErrBadSubject, err))
		}
		return fmt.Errorf("uninstall %s: %w", pkg, err)
	}
	if ops := s.modes.Table().ResetPackage(uid, pkg); len(ops) > 0 {
		s.modes.MarkDirty()
	}
	for _, k := range s.tracker.RemovePackage(uid, pkg) {
		op, err := s.catalog.ByCode(k.Op)
		if err != nil {
			continue
		}
		s.rec.RecordActive(ctx, op.Name, -1)
		pending = s.enqueue(ctx, pending, watch.ActiveEvent{Subject: subject(op, uid, pkg), Active: false})
	}
	s.access.RemovePackage(uid, pkg)
	s.mu.Unlock()

	s.hub.Flush(pending)
	s.recordAudit(ctx, caller, audit.EventPackage, "package_removed", resource("*", uid, pkg), nil)
	return nil
}

func resource(op string, uid int, pkg string) string {
	if pkg == "" {
		return fmt.Sprintf("%s/%d", op, uid)
	}
	return fmt.Sprintf("%s/%d/%s", op, uid, pkg)
}
