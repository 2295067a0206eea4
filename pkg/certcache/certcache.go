// Package certcache implements the client-cert path/password cache
// spec.md §4.9/§6 describes as an external collaborator "keyed by
// well-known names" — tlsbucket.CertCacheKeyPath and
// tlsbucket.CertCacheKeyPassword. Cache(s) built here satisfy
// tlsbucket.CertCache directly.
package certcache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached client-cert path/password pair is
// trusted before the TLS context falls back to re-prompting, matching
// spec.md §4.9's "on mismatch they fall back to re-prompting" without
// ever needing a mismatch to be observed first.
const DefaultTTL = 24 * time.Hour

// Redis is a Redis-backed CertCache, grounded on the teacher pack's own
// go-redis wrapper style (etalazz-vsa's persistence.GoRedisEvaler): a
// thin struct around *redis.Client with a context.Background() fallback
// since the tlsbucket.CertCache interface has no context parameter (the
// TLS callback chain it's called from has none either).
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing *redis.Client. ttl <= 0 uses DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get implements tlsbucket.CertCache.
func (r *Redis) Get(key string) (string, bool) {
	val, err := r.client.Get(context.Background(), key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set implements tlsbucket.CertCache.
func (r *Redis) Set(key, value string) {
	r.client.Set(context.Background(), key, value, r.ttl)
}

// Memory is a process-local CertCache, used when no Redis deployment is
// available (e.g. the demo CLI's single-shot mode) or as the test double
// in place of a real Redis connection.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty in-memory CertCache.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}
