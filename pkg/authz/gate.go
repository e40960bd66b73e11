// Package authz decides whether a caller may mutate or observe App Ops state.
package authz

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/registry"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrSelfModification = errors.New("cannot modify own app ops")
)

// Gate applies the caller authority rules. The zero value is ready to use.
type Gate struct{}

// CanSetMode checks a mode write for (uid, op). Self-modification is refused
// before elevation is considered, so elevated callers cannot change their
// own modes either.
func (Gate) CanSetMode(caller auth.Caller, uid int, op registry.Op) error {
	if caller.UID == uid {
		return fmt.Errorf("%w: uid %d, op %s", ErrSelfModification, uid, op.Name)
	}
	if !caller.Elevated() {
		return fmt.Errorf("%w: uid %d may not set %s for uid %d", ErrPermissionDenied, caller.UID, op.Name, uid)
	}
	return nil
}

// CanReset checks a reset of every package-level mode of uid.
func (Gate) CanReset(caller auth.Caller, uid int) error {
	if caller.UID == uid {
		return fmt.Errorf("%w: uid %d", ErrSelfModification, uid)
	}
	if !caller.Elevated() {
		return fmt.Errorf("%w: uid %d may not reset modes of uid %d", ErrPermissionDenied, caller.UID, uid)
	}
	return nil
}

// CanReadRestricted checks read or watch access to op.
func (Gate) CanReadRestricted(caller auth.Caller, op registry.Op) error {
	if op.RestrictRead && !caller.Elevated() {
		return fmt.Errorf("%w: %s is restricted", ErrPermissionDenied, op.Name)
	}
	return nil
}

// CanActFor checks a note, start or finish on behalf of uid.
func (Gate) CanActFor(caller auth.Caller, uid int) error {
	if caller.UID != uid && !caller.Elevated() {
		return fmt.Errorf("%w: uid %d may not act for uid %d", ErrPermissionDenied, caller.UID, uid)
	}
	return nil
}

// CanObserve checks a query of uid's active state or access history.
func (Gate) CanObserve(caller auth.Caller, uid int) error {
	if caller.UID != uid && !caller.Elevated() {
		return fmt.Errorf("%w: uid %d may not observe uid %d", ErrPermissionDenied, caller.UID, uid)
	}
	return nil
}

// CanSee reports whether a watcher owned by caller may receive an event for
// (uid, op).
func (g Gate) CanSee(caller auth.Caller, uid int, op registry.Op) bool {
	return Allowed(g.CanReadRestricted(caller, op)) && Allowed(g.CanObserve(caller, uid))
}

// Allowed is the bool form of a gate result.
func Allowed(err error) bool {
	return err == nil
}
