package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix      = "ogmon:lock:"
	defaultLockTTL      = 2 * time.Minute
	defaultPollInterval = 100 * time.Millisecond
	unlockTimeout       = 5 * time.Second
	connectionTimeout   = 5 * time.Second
)

// ErrEmptyAddress is returned when no Redis address is configured
var ErrEmptyAddress = errors.New("redis address is required")

// Deletes the key only if it still carries our token, so an expired lock
// taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisLocker is a lock shared by every process using the same Redis. Locks
// expire after TTL so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client       redis.Cmdable
	TTL          time.Duration
	PollInterval time.Duration
}

// NewRedisLocker returns a locker on client with default timings
func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{
		client:       client,
		TTL:          defaultLockTTL,
		PollInterval: defaultPollInterval,
	}
}

// Lock polls until the key is acquired or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			if err := releaseScript.Run(unlockCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				slog.Warn("Failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}
