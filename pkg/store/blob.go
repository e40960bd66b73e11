package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrBlobNotFound is returned by a BlobStore for a missing object.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the object-storage contract used for snapshot persistence.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// SnapshotObject is the object name the snapshot is written to, below the
// store's prefix.
const SnapshotObject = "modes.cbor"

// BlobPersister stores the encoded snapshot as one object.
type BlobPersister struct {
	blobs BlobStore
}

func NewBlobPersister(blobs BlobStore) *BlobPersister {
	return &BlobPersister{blobs: blobs}
}

func (p *BlobPersister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := p.blobs.Get(ctx, SnapshotObject)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("load snapshot object: %w", err)
	}
	return DecodeSnapshot(data)
}

func (p *BlobPersister) Save(ctx context.Context, snap *Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := p.blobs.Put(ctx, SnapshotObject, data); err != nil {
		return fmt.Errorf("save snapshot object: %w", err)
	}
	return nil
}
