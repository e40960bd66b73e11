// Package store holds the non-historical App Ops state: the uid-level and
// package-level mode tables, their snapshot codec and persistence backends.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

type uidKey struct {
	op  int
	uid int
}

type pkgKey struct {
	op  int
	uid int
	pkg string
}

// ModeTable is the in-memory mode state. A stored mode equal to the op's
// default is never kept: writing it clears the entry.
type ModeTable struct {
	mu       sync.RWMutex
	catalog  *registry.Catalog
	uidModes map[uidKey]registry.Mode
	pkgModes map[pkgKey]registry.Mode
	logger   *slog.Logger
}

// NewModeTable returns an empty table over catalog.
func NewModeTable(catalog *registry.Catalog) *ModeTable {
	return &ModeTable{
		catalog:  catalog,
		uidModes: make(map[uidKey]registry.Mode),
		pkgModes: make(map[pkgKey]registry.Mode),
		logger:   slog.Default().With("component", "modetable"),
	}
}

// GetMode resolves the effective mode: a uid-level entry wins over a
// package-level entry, which wins over the op default.
func (t *ModeTable) GetMode(op registry.Op, uid int, pkg string) registry.Mode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if m, ok := t.uidModes[uidKey{op.Code, uid}]; ok {
		return m
	}
	if m, ok := t.pkgModes[pkgKey{op.Code, uid, pkg}]; ok {
		return m
	}
	return t.catalog.DefaultMode(op)
}

// UIDMode returns the uid-level entry, if any.
func (t *ModeTable) UIDMode(op registry.Op, uid int) (registry.Mode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.uidModes[uidKey{op.Code, uid}]
	return m, ok
}

// PackageMode returns the package-level entry, if any.
func (t *ModeTable) PackageMode(op registry.Op, uid int, pkg string) (registry.Mode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.pkgModes[pkgKey{op.Code, uid, pkg}]
	return m, ok
}

// SetMode writes the package-level entry and reports whether the stored
// value changed.
func (t *ModeTable) SetMode(op registry.Op, uid int, pkg string, mode registry.Mode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return setEntry(t.pkgModes, pkgKey{op.Code, uid, pkg}, mode, t.catalog.DefaultMode(op))
}

// SetUIDMode writes the uid-level entry and reports whether the stored value
// changed.
func (t *ModeTable) SetUIDMode(op registry.Op, uid int, mode registry.Mode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return setEntry(t.uidModes, uidKey{op.Code, uid}, mode, t.catalog.DefaultMode(op))
}

func setEntry[K comparable](m map[K]registry.Mode, key K, mode, def registry.Mode) bool {
	prev, had := m[key]
	if mode == def {
		if !had {
			return false
		}
		delete(m, key)
		return true
	}
	if had && prev == mode {
		return false
	}
	m[key] = mode
	return true
}

// ResetPackage clears every package-level entry of (uid, pkg) and returns the
// ops whose entry was removed, in code order.
func (t *ModeTable) ResetPackage(uid int, pkg string) []registry.Op {
	t.mu.Lock()
	defer t.mu.Unlock()

	var codes []int
	for k := range t.pkgModes {
		if k.uid == uid && k.pkg == pkg {
			codes = append(codes, k.op)
			delete(t.pkgModes, k)
		}
	}
	sort.Ints(codes)

	ops := make([]registry.Op, 0, len(codes))
	for _, code := range codes {
		op, _ := t.catalog.ByCode(code)
		ops = append(ops, op)
	}
	return ops
}

// RemovePackage drops all state of an uninstalled package.
func (t *ModeTable) RemovePackage(uid int, pkg string) {
	t.ResetPackage(uid, pkg)
}

// Len returns the number of stored entries across both tables.
func (t *ModeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.uidModes) + len(t.pkgModes)
}

// Snapshot copies the table into its persistent form, with entries sorted so
// equal tables produce equal snapshots.
func (t *ModeTable) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := NewSnapshot()
	for k, m := range t.uidModes {
		op, _ := t.catalog.ByCode(k.op)
		snap.UIDModes = append(snap.UIDModes, UIDEntry{Op: op.Name, UID: k.uid, Mode: m})
	}
	for k, m := range t.pkgModes {
		op, _ := t.catalog.ByCode(k.op)
		snap.PackageModes = append(snap.PackageModes, PackageEntry{Op: op.Name, UID: k.uid, Package: k.pkg, Mode: m})
	}
	snap.sort()
	return snap
}

// Restore replaces the table contents with snap. The snapshot is fully
// validated before the swap; on error the table is unchanged. Entries for ops
// the catalog does not know are dropped.
func (t *ModeTable) Restore(snap *Snapshot) error {
	uidModes := make(map[uidKey]registry.Mode, len(snap.UIDModes))
	pkgModes := make(map[pkgKey]registry.Mode, len(snap.PackageModes))

	for _, e := range snap.UIDModes {
		op, ok := t.resolve(e.Op)
		if !ok {
			continue
		}
		if !e.Mode.Valid() || e.UID < 0 {
			return fmt.Errorf("%w: uid entry %s/%d has mode %d", ErrCorruptSnapshot, e.Op, e.UID, int(e.Mode))
		}
		if e.Mode != op.DefaultMode {
			uidModes[uidKey{op.Code, e.UID}] = e.Mode
		}
	}
	for _, e := range snap.PackageModes {
		op, ok := t.resolve(e.Op)
		if !ok {
			continue
		}
		if !e.Mode.Valid() || e.UID < 0 || e.Package == "" {
			return fmt.Errorf("%w: package entry %s/%d/%q has mode %d", ErrCorruptSnapshot, e.Op, e.UID, e.Package, int(e.Mode))
		}
		if e.Mode != op.DefaultMode {
			pkgModes[pkgKey{op.Code, e.UID, e.Package}] = e.Mode
		}
	}

	t.mu.Lock()
	t.uidModes = uidModes
	t.pkgModes = pkgModes
	t.mu.Unlock()
	return nil
}

func (t *ModeTable) resolve(name string) (registry.Op, bool) {
	op, err := t.catalog.ByName(name)
	if err != nil {
		t.logger.Warn("dropping persisted mode for unknown op", "op", name)
		return registry.Op{}, false
	}
	return op, true
}
