package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/registry"
)

// DefaultWriteDelay batches bursts of mode writes into one save.
const DefaultWriteDelay = 100 * time.Millisecond

// ModeStore couples a ModeTable with a Persister and a deferred writer.
// Mutations mark the table dirty; a save happens WriteDelay later, on Flush,
// or on Close.
type ModeStore struct {
	table      *ModeTable
	persister  Persister
	writeDelay time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	dirty  bool
	timer  *time.Timer
	closed bool

	// serializes saves and loads against each other
	ioMu sync.Mutex
}

// NewModeStore returns a store with an empty table. Call Load to read
// persisted state.
func NewModeStore(catalog *registry.Catalog, persister Persister, writeDelay time.Duration) *ModeStore {
	if writeDelay <= 0 {
		writeDelay = DefaultWriteDelay
	}
	return &ModeStore{
		table:      NewModeTable(catalog),
		persister:  persister,
		writeDelay: writeDelay,
		logger:     slog.Default().With("component", "modestore"),
	}
}

// Table returns the live table.
func (s *ModeStore) Table() *ModeTable {
	return s.table
}

// MarkDirty schedules a deferred save.
func (s *ModeStore) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = true
	if s.closed || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.writeDelay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		if err := s.Flush(context.Background()); err != nil {
			s.logger.Error("deferred mode write failed", "error", err)
		}
	})
}

// Dirty reports whether unsaved changes exist.
func (s *ModeStore) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush saves the table now if it has unsaved changes.
func (s *ModeStore) Flush(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.flushLocked(ctx)
}

func (s *ModeStore) flushLocked(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.persister.Save(ctx, s.table.Snapshot()); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("save modes: %w", err)
	}
	return nil
}

// Load replaces the table with the persisted state.
func (s *ModeStore) Load(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.loadLocked(ctx)
}

func (s *ModeStore) loadLocked(ctx context.Context) error {
	snap, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load modes: %w", err)
	}
	if err := s.table.Restore(snap); err != nil {
		return err
	}
	s.logger.Info("mode state loaded", "entries", s.table.Len())
	return nil
}

// Reload writes pending changes, then reads them back and swaps the table.
// Any failure leaves the current table in place.
func (s *ModeStore) Reload(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	return s.loadLocked(ctx)
}

// Close stops the deferred writer and saves pending changes.
func (s *ModeStore) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.Flush(ctx)
}
