package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix        = "lock:"
	idempotencyKeyPrefix = "idem:"
	idempotencyKeyTTL    = 24 * time.Hour
	defaultLockTTL       = 10 * time.Second
	lockRetryMin         = 5 * time.Millisecond
	lockRetryMax         = 100 * time.Millisecond
)

// releaseLockScript deletes the lock only if it still carries our token, so an
// expired holder never frees a lock someone else has since taken.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client  *redis.Client
	lockTTL time.Duration
	logger  *slog.Logger
}

type RedisOption func(*RedisAdapter)

func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *RedisAdapter) {
		r.logger = logger.With("module", "lending", "layer", "redis")
	}
}

func NewRedisAdapter(client *redis.Client, opts ...RedisOption) *RedisAdapter {
	r := &RedisAdapter{
		client:  client,
		lockTTL: defaultLockTTL,
		logger:  slog.Default().With("module", "lending", "layer", "redis"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConnectRedis accepts either a redis:// URL or a host:port address and pings the server.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr, PoolSize: 100}
	if strings.HasPrefix(addr, "redis://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Lock takes a distributed lock on key, polling until it is free or ctx is done.
// The lock expires after lockTTL if the holder dies.
func (r *RedisAdapter) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()
	wait := lockRetryMin

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, lockRetryMax)
	}

	return func() {
		// The caller's ctx may already be cancelled; the lock must still be freed.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
			r.logger.WarnContext(releaseCtx, "release lock failed, held until ttl",
				"operation", "unlock",
				"outcome", "failed",
				"key", key,
				"ttl", r.lockTTL,
				"error", err,
			)
		}
	}, nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// Ping reports whether the server is reachable.
func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
