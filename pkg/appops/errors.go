package appops

import (
	"errors"
	"fmt"
)

var (
	// ErrBadSubject means the uid does not own the package, or the package is
	// empty.
	ErrBadSubject = errors.New("bad subject")
	// ErrOpErrored is the cause carried by a SecurityError when the resolved
	// mode is ModeErrored.
	ErrOpErrored = errors.New("operation errored")
	// ErrInvalidMode rejects writes of an out-of-range mode.
	ErrInvalidMode = errors.New("invalid mode")
)

// SecurityError is returned by throwing variants and by privileged calls
// that the policy gate refused.
type SecurityError struct {
	Op      string
	UID     int
	Package string
	Err     error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security: %s uid=%d package=%q: %v", e.Op, e.UID, e.Package, e.Err)
}

func (e *SecurityError) Unwrap() error { return e.Err }

// IsSecurityFailure reports whether err carries a SecurityError.
func IsSecurityFailure(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

func securityErr(op string, uid int, pkg string, err error) error {
	return &SecurityError{Op: op, UID: uid, Package: pkg, Err: err}
}
