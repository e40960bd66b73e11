package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// Dialect selects placeholder syntax for SQLPersister.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS appops_uid_modes (
		op TEXT NOT NULL,
		uid INTEGER NOT NULL,
		mode TEXT NOT NULL,
		PRIMARY KEY (op, uid)
	)`,
	`CREATE TABLE IF NOT EXISTS appops_package_modes (
		op TEXT NOT NULL,
		uid INTEGER NOT NULL,
		package TEXT NOT NULL,
		mode TEXT NOT NULL,
		PRIMARY KEY (op, uid, package)
	)`,
	`CREATE TABLE IF NOT EXISTS appops_meta (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// SQLPersister stores modes as rows, one table per level, plus a meta table
// carrying the schema version and the snapshot digest.
type SQLPersister struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLPersister wraps db. Call Init before first use.
func NewSQLPersister(db *sql.DB, dialect Dialect) (*SQLPersister, error) {
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
	return &SQLPersister{db: db, dialect: dialect}, nil
}

// Init creates the tables if they do not exist.
func (p *SQLPersister) Init(ctx context.Context) error {
	for _, stmt := range sqlSchema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate mode tables: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (p *SQLPersister) rebind(query string) string {
	if p.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p *SQLPersister) Save(ctx context.Context, snap *Snapshot) error {
	sorted := *snap
	sorted.UIDModes = append([]UIDEntry(nil), snap.UIDModes...)
	sorted.PackageModes = append([]PackageEntry(nil), snap.PackageModes...)
	sorted.sort()
	digest, err := sorted.Digest()
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM appops_uid_modes`); err != nil {
		return fmt.Errorf("clear uid modes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM appops_package_modes`); err != nil {
		return fmt.Errorf("clear package modes: %w", err)
	}
	for _, e := range sorted.UIDModes {
		if _, err := tx.ExecContext(ctx,
			p.rebind(`INSERT INTO appops_uid_modes (op, uid, mode) VALUES (?, ?, ?)`),
			e.Op, e.UID, e.Mode.String(),
		); err != nil {
			return fmt.Errorf("insert uid mode: %w", err)
		}
	}
	for _, e := range sorted.PackageModes {
		if _, err := tx.ExecContext(ctx,
			p.rebind(`INSERT INTO appops_package_modes (op, uid, package, mode) VALUES (?, ?, ?, ?)`),
			e.Op, e.UID, e.Package, e.Mode.String(),
		); err != nil {
			return fmt.Errorf("insert package mode: %w", err)
		}
	}

	upsert := p.rebind(`INSERT INTO appops_meta (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`)
	if _, err := tx.ExecContext(ctx, upsert, "version", sorted.Version); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, "digest", digest); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *SQLPersister) Load(ctx context.Context) (*Snapshot, error) {
	version, err := p.meta(ctx, "version")
	if err != nil {
		return nil, err
	}
	if version == "" {
		return NewSnapshot(), nil
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	digest, err := p.meta(ctx, "digest")
	if err != nil {
		return nil, err
	}

	snap := NewSnapshot()
	snap.Version = version

	rows, err := p.db.QueryContext(ctx, `SELECT op, uid, mode FROM appops_uid_modes`)
	if err != nil {
		return nil, fmt.Errorf("query uid modes: %w", err)
	}
	for rows.Next() {
		var e UIDEntry
		var mode string
		if err := rows.Scan(&e.Op, &e.UID, &mode); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan uid mode: %w", err)
		}
		if e.Mode, err = registry.ParseMode(mode); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		snap.UIDModes = append(snap.UIDModes, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = p.db.QueryContext(ctx, `SELECT op, uid, package, mode FROM appops_package_modes`)
	if err != nil {
		return nil, fmt.Errorf("query package modes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var e PackageEntry
		var mode string
		if err := rows.Scan(&e.Op, &e.UID, &e.Package, &mode); err != nil {
			return nil, fmt.Errorf("scan package mode: %w", err)
		}
		if e.Mode, err = registry.ParseMode(mode); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		snap.PackageModes = append(snap.PackageModes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap.sort()
	got, err := snap.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if got != digest {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorruptSnapshot)
	}
	return snap, nil
}

func (p *SQLPersister) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.QueryRowContext(ctx, p.rebind(`SELECT value FROM appops_meta WHERE name = ?`), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}
