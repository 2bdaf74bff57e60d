package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"checklist/api/internal/util"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport failures.
var ErrUnavailable = errors.New("lock backend unavailable")

// releaseScript deletes the key only while it still carries our token, so an
// expired holder never releases a lock someone else has since acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements a per-key lock shared by every process talking to
// the same Redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(redisURL string, ttl, retry time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, ttl, retry), nil
}

// NewRedisLockerWithClient creates a locker from an existing Redis client.
func NewRedisLockerWithClient(client *redis.Client, ttl, retry time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLocker{
		client: client,
		prefix: "checklist:lock:",
		ttl:    ttl,
		retry:  retry,
	}
}

func (l *RedisLocker) key(name string) string {
	return l.prefix + name
}

// Lock polls SET NX until it wins the key or ctx is done. The lock expires
// after the configured TTL even if release is never called.
func (l *RedisLocker) Lock(ctx context.Context, name string) (func(), error) {
	key := l.key(name)
	token := util.NewID("")
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, name, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w: %w", name, ErrUnavailable, err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
				})
			}, nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, name, ctx.Err())
		case <-timer.C:
		}
	}
}

// Close closes the Redis connection
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// Ping checks if Redis is reachable
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
