package kvstore

import (
	"context"
	"errors"
	"time"

	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// toucher is implemented by clients that can extend a key's expiry in place.
type toucher interface {
	Touch(ctx context.Context, key string, ttl time.Duration) error
}

// RedisStore persists values as redis strings. Reads slide the expiry forward, so a
// cart only lapses after ttl without any activity.
type RedisStore struct {
	client redisKV
	keyFn  func(string) string
	ttl    time.Duration
}

// NewRedisStore builds a store; keyFn namespaces keys (nil keeps them as-is) and a
// zero ttl keeps values forever.
func NewRedisStore(client redisKV, keyFn func(string) string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if keyFn == nil {
		keyFn = func(key string) string { return key }
	}
	return &RedisStore{client: client, keyFn: keyFn, ttl: ttl}, nil
}

func (r *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.keyFn(key))
	if err != nil {
		if pkgredis.IsMissing(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t, ok := r.client.(toucher); ok && r.ttl > 0 {
		// Expiry refresh is best effort; the value is already in hand.
		_ = t.Touch(ctx, r.keyFn(key), r.ttl)
	}
	return []byte(value), nil
}

func (r *RedisStore) Save(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.keyFn(key), string(value), r.ttl)
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.keyFn(key))
}
