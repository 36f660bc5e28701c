package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
)

const lockKeyPrefix = "lws:order-lock:"

// releaseScript deletes the lock only when the caller still owns it, so a
// worker whose lease expired cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes per-order processing across worker instances using
// leased keys. A lease that outlives its holder expires on its own.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a RedisLocker and verifies the connection
func NewRedisLocker(cfg config.LockConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("lock: connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, cfg.LeaseTTL), nil
}

// NewRedisLockerWithClient creates a RedisLocker on an existing client.
// Useful for testing or when sharing a client across components.
func NewRedisLockerWithClient(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire takes the leased lock for an order, or returns ErrOrderLocked
func (l *RedisLocker) Acquire(ctx context.Context, orderNum int) (func(), error) {
	key := lockKeyPrefix + strconv.Itoa(orderNum)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire order %d: %w", orderNum, err)
	}
	if !ok {
		return nil, workflow.ErrOrderLocked
	}

	release := func() {
		// Release runs during cleanup; give it its own deadline
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.client, []string{key}, token)
	}
	return release, nil
}

// Ensure RedisLocker implements workflow.OrderLocker
var _ workflow.OrderLocker = (*RedisLocker)(nil)

// New creates the locker selected by configuration. "memory" serializes
// within the process; "redis" coordinates across worker instances.
func New(cfg config.LockConfig) (workflow.OrderLocker, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryLocker(), nil
	case "redis":
		return NewRedisLocker(cfg)
	default:
		return nil, fmt.Errorf("lock: unknown backend %q", cfg.Backend)
	}
}
