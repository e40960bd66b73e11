// Package packages tracks which uid owns which installed package.
package packages

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrInvalidPackage  = errors.New("invalid package")
)

// Directory answers ownership questions for the engine.
type Directory interface {
	// Owns reports whether pkg is installed under uid.
	Owns(uid int, pkg string) bool
	// ForUID lists the packages installed under uid, sorted.
	ForUID(uid int) []string
	// Uninstall removes pkg from uid, returning ErrPackageNotFound when it
	// is not installed there.
	Uninstall(uid int, pkg string) error
}

// Package is one installed package.
type Package struct {
	Name string `json:"name" yaml:"name"`
	UID  int    `json:"uid" yaml:"uid"`
}

// Platform packages present on every device.
var Platform = []Package{
	{Name: "root", UID: 0},
	{Name: "android", UID: 1000},
	{Name: "com.android.shell", UID: 2000},
}

// InMemoryDirectory is a thread-safe in-memory Directory. A package name may
// be installed under several uids (one per device user) and several packages
// may share one uid.
type InMemoryDirectory struct {
	mu    sync.RWMutex
	byUID map[int]map[string]struct{}
}

// NewInMemoryDirectory returns a directory seeded with pkgs.
func NewInMemoryDirectory(pkgs ...Package) *InMemoryDirectory {
	d := &InMemoryDirectory{byUID: make(map[int]map[string]struct{})}
	for _, p := range pkgs {
		_ = d.Install(p)
	}
	return d
}

// Install records p. Installing an existing package is a no-op.
func (d *InMemoryDirectory) Install(p Package) error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPackage)
	}
	if p.UID < 0 {
		return fmt.Errorf("%w: %s has negative uid %d", ErrInvalidPackage, p.Name, p.UID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.byUID[p.UID]
	if !ok {
		set = make(map[string]struct{})
		d.byUID[p.UID] = set
	}
	set[p.Name] = struct{}{}
	return nil
}

// Uninstall removes pkg from uid.
func (d *InMemoryDirectory) Uninstall(uid int, pkg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.byUID[uid]
	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrPackageNotFound, pkg, uid)
	}
	if _, ok := set[pkg]; !ok {
		return fmt.Errorf("%w: %s/%d", ErrPackageNotFound, pkg, uid)
	}
	delete(set, pkg)
	if len(set) == 0 {
		delete(d.byUID, uid)
	}
	return nil
}

func (d *InMemoryDirectory) Owns(uid int, pkg string) bool {
	if pkg == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.byUID[uid][pkg]
	return ok
}

func (d *InMemoryDirectory) ForUID(uid int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.byUID[uid]))
	for name := range d.byUID[uid] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// List returns every installed package ordered by uid then name.
func (d *InMemoryDirectory) List() []Package {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Package
	for uid, set := range d.byUID {
		for name := range set {
			out = append(out, Package{Name: name, UID: uid})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UID != out[j].UID {
			return out[i].UID < out[j].UID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
