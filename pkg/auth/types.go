package auth

import "slices"

// Well-known platform uids.
const (
	RootUID   = 0
	SystemUID = 1000
	ShellUID  = 2000
)

// PerUserRange is the uid span owned by one device user.
const PerUserRange = 100000

// GrantManageAppOpsModes lets a caller change modes for other apps and read
// restricted operations.
const GrantManageAppOpsModes = "android.permission.MANAGE_APP_OPS_MODES"

// Caller is the identity an engine call is made on behalf of. It is always
// passed explicitly; there is no ambient calling identity.
type Caller struct {
	UID     int      `json:"uid"`
	Package string   `json:"package,omitempty"`
	Grants  []string `json:"grants,omitempty"`
}

// App returns an unprivileged caller for an installed package.
func App(uid int, pkg string) Caller {
	return Caller{UID: uid, Package: pkg}
}

// Shell returns the shell identity with the mode-management grant, the
// identity test harnesses adopt to reset and set modes.
func Shell() Caller {
	return Caller{UID: ShellUID, Package: "com.android.shell", Grants: []string{GrantManageAppOpsModes}}
}

// System returns the system server identity.
func System() Caller {
	return Caller{UID: SystemUID, Package: "android"}
}

// HasGrant reports whether the caller holds perm.
func (c Caller) HasGrant(perm string) bool {
	return slices.Contains(c.Grants, perm)
}

// Elevated reports whether the caller may act on other apps' state.
func (c Caller) Elevated() bool {
	return c.UID == RootUID || c.UID == SystemUID || c.HasGrant(GrantManageAppOpsModes)
}

// UserID returns the device user the uid belongs to.
func UserID(uid int) int {
	return uid / PerUserRange
}
