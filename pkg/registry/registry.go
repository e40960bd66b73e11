// Package registry holds the operation catalog: the immutable table that maps
// operation codes, names and gating permissions onto each other.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Op is one catalog entry.
type Op struct {
	Code        int    `json:"code" yaml:"code"`
	Name        string `json:"name" yaml:"name"`
	Permission  string `json:"permission,omitempty" yaml:"permission,omitempty"`
	DefaultMode Mode   `json:"default_mode" yaml:"default_mode"`
	// RestrictRead ops can only be read or watched by elevated callers.
	RestrictRead bool `json:"restrict_read,omitempty" yaml:"restrict_read,omitempty"`
}

// Catalog is read-only after New returns and safe for concurrent use.
type Catalog struct {
	ops          []Op
	byName       map[string]int
	byPermission map[string]int
}

// New validates ops and builds a catalog. Codes must be dense (ops[i].Code
// == i), names and permissions unique.
func New(ops []Op) (*Catalog, error) {
	c := &Catalog{
		ops:          make([]Op, len(ops)),
		byName:       make(map[string]int, len(ops)),
		byPermission: make(map[string]int),
	}
	copy(c.ops, ops)

	for i, op := range c.ops {
		if op.Code != i {
			return nil, fmt.Errorf("op %q: code %d is not dense (want %d)", op.Name, op.Code, i)
		}
		if op.Name == "" {
			return nil, fmt.Errorf("op code %d has no name", op.Code)
		}
		if !op.DefaultMode.Valid() {
			return nil, fmt.Errorf("op %q: invalid default mode %d", op.Name, int(op.DefaultMode))
		}
		if prev, dup := c.byName[op.Name]; dup {
			return nil, fmt.Errorf("op name %q used by codes %d and %d", op.Name, prev, op.Code)
		}
		c.byName[op.Name] = op.Code

		if op.Permission == "" {
			continue
		}
		if prev, dup := c.byPermission[op.Permission]; dup {
			return nil, fmt.Errorf("permission %q maps to both %q and %q", op.Permission, c.ops[prev].Name, op.Name)
		}
		c.byPermission[op.Permission] = op.Code
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide platform catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := New(BuiltinOps())
		if err != nil {
			panic("registry: builtin catalog is invalid: " + err.Error())
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Len returns the number of operations.
func (c *Catalog) Len() int { return len(c.ops) }

// Ops returns a copy of every entry in code order.
func (c *Catalog) Ops() []Op {
	out := make([]Op, len(c.ops))
	copy(out, c.ops)
	return out
}

// Names returns every op name in code order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.ops))
	for i, op := range c.ops {
		names[i] = op.Name
	}
	return names
}

// ByCode resolves an op by its integer code.
func (c *Catalog) ByCode(code int) (Op, error) {
	if code < 0 || code >= len(c.ops) {
		return Op{}, fmt.Errorf("%w: code %d", ErrUnknownOperation, code)
	}
	return c.ops[code], nil
}

// ByName resolves an op by its string name.
func (c *Catalog) ByName(name string) (Op, error) {
	code, ok := c.byName[name]
	if !ok {
		return Op{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return c.ops[code], nil
}

// DefaultMode returns the built-in mode of op.
func (c *Catalog) DefaultMode(op Op) Mode {
	return c.ops[op.Code].DefaultMode
}

// PermissionFor returns the permission gating op, if any.
func (c *Catalog) PermissionFor(op Op) (string, bool) {
	p := c.ops[op.Code].Permission
	return p, p != ""
}

// OpFor returns the op gated by permission, if any.
func (c *Catalog) OpFor(permission string) (Op, bool) {
	code, ok := c.byPermission[permission]
	if !ok {
		return Op{}, false
	}
	return c.ops[code], true
}

// StrOpToOp converts an op name into its code.
func (c *Catalog) StrOpToOp(name string) (int, error) {
	op, err := c.ByName(name)
	if err != nil {
		return -1, err
	}
	return op.Code, nil
}

// OpToPermission returns the permission for the named op, or "" when the op
// is not gated by a permission.
func (c *Catalog) OpToPermission(name string) (string, error) {
	op, err := c.ByName(name)
	if err != nil {
		return "", err
	}
	return op.Permission, nil
}

// PermissionToOp returns the op name gated by permission.
func (c *Catalog) PermissionToOp(permission string) (string, bool) {
	op, ok := c.OpFor(permission)
	if !ok {
		return "", false
	}
	return op.Name, true
}

// PermissionToOpCode returns the op code gated by permission, or -1.
func (c *Catalog) PermissionToOpCode(permission string) int {
	op, ok := c.OpFor(permission)
	if !ok {
		return -1
	}
	return op.Code
}

// OpToDefaultMode returns the default mode for the named op.
func (c *Catalog) OpToDefaultMode(name string) (Mode, error) {
	op, err := c.ByName(name)
	if err != nil {
		return 0, err
	}
	return op.DefaultMode, nil
}

// Permissions returns every mapped permission, sorted.
func (c *Catalog) Permissions() []string {
	perms := make([]string, 0, len(c.byPermission))
	for p := range c.byPermission {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}
