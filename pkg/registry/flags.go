package registry

import "strings"

// OpFlags describe how an access reached the engine.
type OpFlags int

const (
	// FlagSelf marks an access the app made for itself.
	FlagSelf OpFlags = 1 << iota
	FlagTrustedProxy
	FlagUntrustedProxy
	FlagTrustedProxied
	FlagUntrustedProxied

	FlagsAll = FlagSelf | FlagTrustedProxy | FlagUntrustedProxy | FlagTrustedProxied | FlagUntrustedProxied
)

var flagNames = []struct {
	flag OpFlags
	name string
}{
	{FlagSelf, "self"},
	{FlagTrustedProxy, "trusted_proxy"},
	{FlagUntrustedProxy, "untrusted_proxy"},
	{FlagTrustedProxied, "trusted_proxied"},
	{FlagUntrustedProxied, "untrusted_proxied"},
}

func (f OpFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
