package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Persister loads and saves the non-historical mode state. Load returns an
// empty snapshot when nothing has been saved yet.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// MemoryPersister keeps the encoded snapshot in memory. It round-trips
// through the codec so it behaves like the durable backends.
type MemoryPersister struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (p *MemoryPersister) Load(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return NewSnapshot(), nil
	}
	return DecodeSnapshot(p.data)
}

func (p *MemoryPersister) Save(ctx context.Context, snap *Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.data = data
	p.mu.Unlock()
	return nil
}

// Raw returns the last saved encoding.
func (p *MemoryPersister) Raw() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.data...)
}

// SetRaw replaces the saved encoding, as if another writer had produced it.
func (p *MemoryPersister) SetRaw(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = append([]byte(nil), data...)
}

// FilePersister stores the snapshot in a single file, replaced atomically.
type FilePersister struct {
	path string
	mu   sync.Mutex
}

// NewFilePersister ensures the parent directory of path exists.
func NewFilePersister(path string) (*FilePersister, error) {
	//nolint:gosec // G301: state directory is shared with operators
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure state dir: %w", err)
	}
	return &FilePersister{path: path}, nil
}

func (p *FilePersister) Load(ctx context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return DecodeSnapshot(data)
}

func (p *FilePersister) Save(ctx context.Context, snap *Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tmpPath := p.path + ".tmp"
	//nolint:gosec // G306: state file is not secret
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}
