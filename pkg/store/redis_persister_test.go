package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisPersister_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisPersister_Integration(t *testing.T) {
	p := NewRedisPersister("localhost:6379", "", 0).WithKey("appops:test:modes")
	ctx := context.Background()
	if err := p.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer func() { _ = p.Close() }()
	require.NoError(t, p.client.Del(ctx, p.key).Err())

	empty, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, NewSnapshot(), empty)

	require.NoError(t, p.Save(ctx, sampleSnapshot()))
	back, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), back)

	require.NoError(t, p.client.Set(ctx, p.key, "junk", 0).Err())
	_, err = p.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)

	require.NoError(t, p.client.Del(ctx, p.key).Err())
}
