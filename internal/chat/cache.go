package chat

import (
	"context"
	"time"
)

// Cache is the key-value store holding live chat snapshots and the request
// queue. Updates are whole-value get/set; no partial in-place mutation is
// relied upon for correctness. A ttl of zero means no expiration.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// ExpiredSubscriber streams names of expired cache keys. The reconciler is
// its only consumer.
type ExpiredSubscriber interface {
	SubscribeExpired(ctx context.Context) (<-chan string, error)
}
