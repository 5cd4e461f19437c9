package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		if val, _ := cache.Get(ctx, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Date(2025, 10, 2, 9, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, "expiring", []byte("temp"), time.Minute)
		if val, _ := c.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		now = now.Add(2 * time.Minute)
		if val, _ := c.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expected expired entry removed, size %d", size)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes least recently used
		_, _ = small.Get(ctx, "a")
		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, "a"); string(val) != "1" {
			t.Error("expected 'a' to survive eviction")
		}
		if size, capacity := small.Stats(); size != 3 || capacity != 3 {
			t.Errorf("unexpected stats %d/%d", size, capacity)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "k", []byte("old"), time.Minute)
		_ = cache.Set(ctx, "k", []byte("new"), time.Minute)

		if val, _ := cache.Get(ctx, "k"); string(val) != "new" {
			t.Errorf("expected 'new', got '%s'", string(val))
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	local := NewLRUCache(10)
	remote := NewLRUCache(10)
	c := newTwoPhase(local, remote, time.Minute)

	t.Run("WritesBothLayers", func(t *testing.T) {
		if err := c.Set(ctx, "p", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if val, _ := local.Get(ctx, "p"); string(val) != "v" {
			t.Error("expected L1 populated")
		}
		if val, _ := remote.Get(ctx, "p"); string(val) != "v" {
			t.Error("expected L2 populated")
		}
	})

	t.Run("PromotesL2Hit", func(t *testing.T) {
		_ = remote.Set(ctx, "only-remote", []byte("r"), time.Hour)

		val, err := c.Get(ctx, "only-remote")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "r" {
			t.Errorf("expected 'r', got '%s'", string(val))
		}
		if val, _ := local.Get(ctx, "only-remote"); string(val) != "r" {
			t.Error("expected L2 hit to populate L1")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Delete(ctx, "p")
		if val, _ := c.Get(ctx, "p"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, ok := c.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "none"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if c != nil {
			t.Error("expected nil cache when disabled")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
