package registry

import (
	"fmt"
	"strings"
)

// Mode is the enforcement decision for an operation.
type Mode int

const (
	// ModeAllowed lets the caller perform the operation.
	ModeAllowed Mode = 0
	// ModeIgnored silently fails the operation.
	ModeIgnored Mode = 1
	// ModeErrored denies the operation; throwing variants surface a security failure.
	ModeErrored Mode = 2
	// ModeDefault defers to the caller's own permission check.
	ModeDefault Mode = 3
)

var modeNames = [...]string{
	ModeAllowed: "allow",
	ModeIgnored: "ignore",
	ModeErrored: "deny",
	ModeDefault: "default",
}

// Valid reports whether m is one of the four known modes.
func (m Mode) Valid() bool {
	return m >= ModeAllowed && m <= ModeDefault
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode accepts the text form ("allow", "ignore", "deny", "default") and
// the aliases used by the platform shell ("allowed", "ignored", "errored").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "allowed":
		return ModeAllowed, nil
	case "ignore", "ignored":
		return ModeIgnored, nil
	case "deny", "errored", "error":
		return ModeErrored, nil
	case "default":
		return ModeDefault, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
