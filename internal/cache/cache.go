// Package cache bridges pay() and verify() for providers whose callback does
// not carry enough correlation data. Session entries are single-use; order
// bindings are read with Get and live until their TTL.
package cache

import (
	"context"
	"time"
)

const DefaultTTL = 24 * time.Hour

type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns the value and removes it. ok is false when the key is
	// missing, expired or already taken.
	Take(ctx context.Context, key string) (value string, ok bool, err error)
	// Get returns the value without removing it.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
}

// Key namespaces a bridge entry by provider.
func Key(provider, key string) string {
	return "paygate:" + provider + ":" + key
}
