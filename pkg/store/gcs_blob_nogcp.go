//go:build !gcp

package store

import (
	"context"
	"fmt"
)

func newGCSBlobStore(ctx context.Context, bucket, prefix string) (BlobStore, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
