package certcache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedis(client, time.Minute), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, _ := newTestRedis(t)

	if _, ok := cache.Get("serf:ssl:cert"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	cache.Set("serf:ssl:cert", "/etc/certs/client.pem:/etc/certs/client.key")
	val, ok := cache.Get("serf:ssl:cert")
	if !ok || val != "/etc/certs/client.pem:/etc/certs/client.key" {
		t.Fatalf("got (%q, %v), want the stored path", val, ok)
	}
}

func TestRedisCacheExpires(t *testing.T) {
	cache, mr := newTestRedis(t)

	cache.Set("serf:ssl:certpw", "hunter2")
	mr.FastForward(2 * time.Minute)

	if _, ok := cache.Get("serf:ssl:certpw"); ok {
		t.Fatalf("expected the cached password to have expired")
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemory()

	if _, ok := cache.Get("serf:ssl:cert"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	cache.Set("serf:ssl:cert", "/tmp/client.pem:/tmp/client.key")
	if v, ok := cache.Get("serf:ssl:cert"); !ok || v != "/tmp/client.pem:/tmp/client.key" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}
