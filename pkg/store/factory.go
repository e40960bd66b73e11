package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names a persistence backend.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendS3       Backend = "s3"
	BackendGCS      Backend = "gcs"
)

// BackendConfig selects and configures a Persister.
type BackendConfig struct {
	Backend       Backend
	DataDir       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	S3            S3Config
	GCSBucket     string
	BlobPrefix    string
}

// OpenPersister builds the configured backend. The returned close function
// releases any connection the backend holds and is never nil.
func OpenPersister(ctx context.Context, cfg BackendConfig) (Persister, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryPersister(), noop, nil

	case BackendFile, "":
		p, err := NewFilePersister(filepath.Join(cfg.DataDir, "appops", SnapshotObject))
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil

	case BackendSQLite, BackendPostgres:
		return openSQL(ctx, cfg)

	case BackendRedis:
		p := NewRedisPersister(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := p.Ping(ctx); err != nil {
			_ = p.Close()
			return nil, noop, err
		}
		return p, p.Close, nil

	case BackendS3:
		s3cfg := cfg.S3
		if s3cfg.Prefix == "" {
			s3cfg.Prefix = cfg.BlobPrefix
		}
		blobs, err := NewS3BlobStore(ctx, s3cfg)
		if err != nil {
			return nil, noop, err
		}
		return NewBlobPersister(blobs), noop, nil

	case BackendGCS:
		blobs, err := newGCSBlobStore(ctx, cfg.GCSBucket, cfg.BlobPrefix)
		if err != nil {
			return nil, noop, err
		}
		closeFn := noop
		if c, ok := blobs.(interface{ Close() error }); ok {
			closeFn = c.Close
		}
		return NewBlobPersister(blobs), closeFn, nil
	}
	return nil, noop, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
}

func openSQL(ctx context.Context, cfg BackendConfig) (Persister, func() error, error) {
	noop := func() error { return nil }

	var (
		db  *sql.DB
		err error
	)
	if cfg.Backend == BackendPostgres {
		if cfg.DatabaseURL == "" {
			return nil, noop, errors.New("DATABASE_URL is required for the postgres store")
		}
		db, err = sql.Open("postgres", cfg.DatabaseURL)
	} else {
		//nolint:gosec // G301: state directory is shared with operators
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, noop, fmt.Errorf("failed to ensure data dir: %w", err)
		}
		db, err = sql.Open("sqlite", filepath.Join(cfg.DataDir, "appops.db"))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, noop, fmt.Errorf("open %s: %w", cfg.Backend, err)
	}

	p, err := NewSQLPersister(db, Dialect(cfg.Backend))
	if err != nil {
		_ = db.Close()
		return nil, noop, err
	}
	if err := p.Init(ctx); err != nil {
		_ = db.Close()
		return nil, noop, err
	}
	return p, db.Close, nil
}
