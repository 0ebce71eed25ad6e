package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot means no last-known answer was ever stored for the key.
var ErrNoSnapshot = errors.New("no snapshot")

// SnapshotStore keeps the last good collaborator answer per trend.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, blob []byte) error
}

type MemorySnapshots struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{data: map[string][]byte{}}
}

func (m *MemorySnapshots) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.data[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), blob...), nil
}

func (m *MemorySnapshots) Store(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), blob...)
	return nil
}

// RedisSnapshots stores snapshots under a key prefix. A zero TTL keeps them
// until overwritten.
type RedisSnapshots struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisSnapshots(client redis.Cmdable, prefix string, ttl time.Duration) *RedisSnapshots {
	if prefix == "" {
		prefix = "trendsim:snapshot:"
	}
	return &RedisSnapshots{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis opens a pooled client with the timeouts used across the service.
func DialRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		PoolSize:        10,
		MinIdleConns:    2,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		MaxRetries:      2,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 200 * time.Millisecond,
	})
}

func (r *RedisSnapshots) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return []byte(val), nil
}

func (r *RedisSnapshots) Store(ctx context.Context, key string, blob []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, string(blob), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
