package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the encoded snapshot.
const DefaultRedisKey = "appops:modes"

// RedisPersister stores the encoded snapshot under a single key. The write
// is a plain SET, so concurrent daemons sharing a key last-writer-win.
type RedisPersister struct {
	client *redis.Client
	key    string
}

// NewRedisPersister creates a persister backed by Redis.
func NewRedisPersister(addr string, password string, db int) *RedisPersister {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPersister{client: rdb, key: DefaultRedisKey}
}

// WithKey returns a copy writing to key, sharing the client.
func (p *RedisPersister) WithKey(key string) *RedisPersister {
	return &RedisPersister{client: p.client, key: key}
}

// Ping checks connectivity.
func (p *RedisPersister) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (p *RedisPersister) Load(ctx context.Context) (*Snapshot, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return DecodeSnapshot(data)
}

func (p *RedisPersister) Save(ctx context.Context, snap *Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the client.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
