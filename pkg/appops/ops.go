package appops

import (
	"context"

	"github.com/Mindburn-Labs/appops/pkg/accesslog"
	"github.com/Mindburn-Labs/appops/pkg/activeops"
	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/registry"
	"github.com/Mindburn-Labs/appops/pkg/watch"
)

// CheckOp returns the effective mode of op for (uid, pkg) without recording
// an access. ModeErrored and bad subjects are returned as a SecurityError.
func (s *Service) CheckOp(ctx context.Context, caller auth.Caller, op string, uid int, pkg string) (registry.Mode, error) {
	return s.check(ctx, caller, "check", op, uid, pkg, false, true)
}

// CheckOpNoThrow is CheckOp with ModeErrored and bad subjects folded into a
// ModeErrored result.
func (s *Service) CheckOpNoThrow(ctx context.Context, caller auth.Caller, op string, uid int, pkg string) (registry.Mode, error) {
	return s.check(ctx, caller, "check", op, uid, pkg, false, false)
}

// CheckOpRaw is CheckOp without restriction rules.
func (s *Service) CheckOpRaw(ctx context.Context, caller auth.Caller, op string, uid int, pkg string) (registry.Mode, error) {
	return s.check(ctx, caller, "check_raw", op, uid, pkg, true, true)
}

// CheckOpRawNoThrow is CheckOpNoThrow without restriction rules.
func (s *Service) CheckOpRawNoThrow(ctx context.Context, caller auth.Caller, op string, uid int, pkg string) (registry.Mode, error) {
	return s.check(ctx, caller, "check_raw", op, uid, pkg, true, false)
}

func (s *Service) check(ctx context.Context, caller auth.Caller, call, name string, uid int, pkg string, raw, throw bool) (registry.Mode, error) {
	op, err := s.resolve(name)
	if err != nil {
		return registry.ModeErrored, err
	}
	// Restricted reads fail on both variants.
	if err := s.gate.CanReadRestricted(caller, op); err != nil {
		return registry.ModeErrored, securityErr(op.Name, uid, pkg, err)
	}
	if err := s.CheckPackage(uid, pkg); err != nil {
		if throw {
			return registry.ModeErrored, securityErr(op.Name, uid, pkg, err)
		}
		return registry.ModeErrored, nil
	}

	s.mu.RLock()
	mode := s.effectiveMode(op, uid, pkg, "", raw)
	s.mu.RUnlock()

	s.rec.RecordDecision(ctx, call, op.Name, mode.String())
	if mode == registry.ModeErrored && throw {
		return mode, securityErr(op.Name, uid, pkg, ErrOpErrored)
	}
	return mode, nil
}

// NoteOp evaluates op for req and records the access. noted watchers are
// notified of every evaluation.
func (s *Service) NoteOp(ctx context.Context, caller auth.Caller, req Request) (registry.Mode, error) {
	return s.note(ctx, caller, req, false, true)
}

// NoteOpNoThrow is NoteOp with errors other than UnknownOperation folded
// into a ModeErrored result.
func (s *Service) NoteOpNoThrow(ctx context.Context, caller auth.Caller, req Request) (registry.Mode, error) {
	return s.note(ctx, caller, req, false, false)
}

// StartOp is NoteOp that also opens an active span when the result is
// ModeAllowed.
func (s *Service) StartOp(ctx context.Context, caller auth.Caller, req Request) (registry.Mode, error) {
	return s.note(ctx, caller, req, true, true)
}

// StartOpNoThrow is the non-throwing StartOp.
func (s *Service) StartOpNoThrow(ctx context.Context, caller auth.Caller, req Request) (registry.Mode, error) {
	return s.note(ctx, caller, req, true, false)
}

func (s *Service) note(ctx context.Context, caller auth.Caller, req Request, start, throw bool) (registry.Mode, error) {
	op, err := s.resolve(req.Op)
	if err != nil {
		return registry.ModeErrored, err
	}
	if err := s.gate.CanActFor(caller, req.UID); err != nil {
		if throw {
			return registry.ModeErrored, securityErr(op.Name, req.UID, req.Package, err)
		}
		return registry.ModeErrored, nil
	}
	if err := s.CheckPackage(req.UID, req.Package); err != nil {
		if throw {
			return registry.ModeErrored, securityErr(op.Name, req.UID, req.Package, err)
		}
		return registry.ModeErrored, nil
	}

	call := "note"
	if start {
		call = "start"
	}
	flags := flagsFor(caller, req.UID)
	now := s.now()
	akey := accesslog.Key{Op: op.Code, UID: req.UID, Package: req.Package, AttributionTag: req.AttributionTag}

	var pending watch.Pending

	s.mu.Lock()
	mode := s.effectiveMode(op, req.UID, req.Package, req.AttributionTag, false)
	rec := accesslog.Record{Time: now, Mode: mode, Flags: flags, Message: req.Message}
	if mode == registry.ModeAllowed {
		s.access.Record(akey, accesslog.Allowed, rec)
		if start {
			tkey := activeops.Key{Op: op.Code, UID: req.UID, Package: req.Package, AttributionTag: req.AttributionTag}
			if s.tracker.Start(tkey, now) {
				s.rec.RecordActive(ctx, op.Name, 1)
				pending = s.enqueue(ctx, pending, watch.ActiveEvent{Subject: subject(op, req.UID, req.Package), Active: true})
			}
		}
	} else {
		s.access.Record(akey, accesslog.Rejected, rec)
	}
	pending = s.enqueue(ctx, pending, watch.NotedEvent{
		Subject:        subject(op, req.UID, req.Package),
		AttributionTag: req.AttributionTag,
		Flags:          flags,
		Mode:           mode,
	})
	s.mu.Unlock()

	s.hub.Flush(pending)

	s.rec.RecordDecision(ctx, call, op.Name, mode.String())
	if mode != registry.ModeAllowed {
		s.logger.DebugContext(ctx, "operation rejected",
			"call", call, "op", op.Name, "uid", req.UID, "package", req.Package, "mode", mode.String())
	}
	if mode == registry.ModeErrored && throw {
		return mode, securityErr(op.Name, req.UID, req.Package, ErrOpErrored)
	}
	return mode, nil
}

// FinishOp closes one start of req's span. Finishing a span that is not
// open does nothing.
func (s *Service) FinishOp(ctx context.Context, caller auth.Caller, req Request) error {
	op, err := s.resolve(req.Op)
	if err != nil {
		return err
	}
	if err := s.gate.CanActFor(caller, req.UID); err != nil {
		return securityErr(op.Name, req.UID, req.Package, err)
	}

	tkey := activeops.Key{Op: op.Code, UID: req.UID, Package: req.Package, AttributionTag: req.AttributionTag}
	var pending watch.Pending

	s.mu.Lock()
	res := s.tracker.Finish(tkey, s.now())
	if res.SpanEnded {
		akey := accesslog.Key{Op: op.Code, UID: req.UID, Package: req.Package, AttributionTag: req.AttributionTag}
		s.access.RecordSpan(akey, res.StartedAt, res.Duration, flagsFor(caller, req.UID))
	}
	if res.BecameInactive {
		s.rec.RecordActive(ctx, op.Name, -1)
		pending = s.enqueue(ctx, pending, watch.ActiveEvent{Subject: subject(op, req.UID, req.Package), Active: false})
	}
	s.mu.Unlock()

	s.hub.Flush(pending)
	return nil
}
