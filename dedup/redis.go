package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex keeps completed-task fingerprints in Redis with a TTL
// equal to the dedup window. Seen only reads, so tasks in flight never
// match themselves; Record writes the key when a task completes. The
// caller owns the Redis client lifecycle.
type RedisIndex struct {
	client redis.Cmdable
	window time.Duration
}

var (
	_ Index    = (*RedisIndex)(nil)
	_ Recorder = (*RedisIndex)(nil)
)

// NewRedisIndex creates a Redis-backed fingerprint index with the given
// dedup window.
func NewRedisIndex(client redis.Cmdable, window time.Duration) *RedisIndex {
	return &RedisIndex{client: client, window: window}
}

// Seen reports whether the fingerprint was recorded within the window.
func (i *RedisIndex) Seen(ctx context.Context, fp Fingerprint) (bool, error) {
	n, err := i.client.Exists(ctx, fp.Key()).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Record marks the fingerprint seen for the dedup window. A repeat
// completion simply refreshes the TTL.
func (i *RedisIndex) Record(ctx context.Context, fp Fingerprint) error {
	return i.client.Set(ctx, fp.Key(), 1, i.window).Err()
}
