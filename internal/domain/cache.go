package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching prediction responses.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis" or "none"
	Type string `json:"type" mapstructure:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" mapstructure:"local_max_size"`
	LocalTTL     time.Duration `json:"localTTL" mapstructure:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" mapstructure:"redis_addr"`
	RedisPassword string `json:"redisPassword" mapstructure:"redis_password"`
	RedisDB       int    `json:"redisDB" mapstructure:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enable_two_phase"` // If true, check local first, then Redis
}
