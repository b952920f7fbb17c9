package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/memes-airdrop/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisStore wraps the Redis client
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis connection and verifies it with a ping
func NewRedisStore(ctx context.Context, cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DefaultCycleLockKey is the key replicas contend on for the export cycle
const DefaultCycleLockKey = "airdrop:export:cycle-lock"

// CycleLock is a single-holder Redis lock guarding the export cycle across replicas
type CycleLock struct {
	store *RedisStore
	key   string
	ttl   time.Duration
}

// NewCycleLock creates a lock on key that expires after ttl if never released
func NewCycleLock(store *RedisStore, key string, ttl time.Duration) *CycleLock {
	if key == "" {
		key = DefaultCycleLockKey
	}
	return &CycleLock{store: store, key: key, ttl: ttl}
}

// Acquire tries to take the lock. It returns the holder token and true on success,
// or false when another holder has it.
func (l *CycleLock) Acquire(ctx context.Context) (string, bool, error) {
	token := uuid.New().String()

	ok, err := l.store.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the lock if token still holds it. Releasing an expired or foreign lock is a no-op.
func (l *CycleLock) Release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, l.store.client, []string{l.key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release cycle lock: %w", err)
	}
	return nil
}

// Key returns the Redis key of the lock
func (l *CycleLock) Key() string {
	return l.key
}
