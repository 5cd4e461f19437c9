package domain

import (
	"time"
)

// Config holds the complete Cipher configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier determines which infrastructure backs the service
	Tier Tier `json:"tier" mapstructure:"tier"`

	// Backend is the FastAPI prediction/complaint service
	Backend BackendConfig `json:"backend" mapstructure:"backend"`

	// Dashboard behavior
	Display DisplayConfig `json:"display" mapstructure:"display"`
	Sync    SyncConfig    `json:"sync" mapstructure:"sync"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"write_timeout"` // seconds
}

// BackendConfig holds the REST backend settings. BaseURL is the only
// environment-dependent input of the alert core.
type BackendConfig struct {
	BaseURL    string        `json:"baseUrl" mapstructure:"base_url"`
	RetryCount int           `json:"retryCount" mapstructure:"retry_count"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"` // zero means no client timeout

	// DemoMode substitutes a generated complaint id when one is missing.
	DemoMode bool `json:"demoMode" mapstructure:"demo_mode"`
}

// DisplayConfig controls how alerts are presented.
type DisplayConfig struct {
	TimeZone    string `json:"timeZone" mapstructure:"time_zone"`
	MapWidth    int    `json:"mapWidth" mapstructure:"map_width"`   // pixels
	MapHeight   int    `json:"mapHeight" mapstructure:"map_height"` // pixels
	ForwardedBy string `json:"forwardedBy" mapstructure:"forwarded_by"`
}

// SyncConfig controls the live synchronization manager.
type SyncConfig struct {
	// Selector is a CEL expression choosing which complaints to watch.
	Selector           string        `json:"selector" mapstructure:"selector"`
	MaxConcurrent      int           `json:"maxConcurrent" mapstructure:"max_concurrent"`
	PredictionCacheTTL time.Duration `json:"predictionCacheTTL" mapstructure:"prediction_cache_ttl"`

	// Source is "store" (repository + event bus push) or "rest" (backend polling).
	Source       string        `json:"source" mapstructure:"source"`
	PollInterval time.Duration `json:"pollInterval" mapstructure:"poll_interval"`
}

// Complaint source kinds.
const (
	SourceStore = "store"
	SourceREST  = "rest"
)

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8000",
		},
		Display: DisplayConfig{
			TimeZone:    "Asia/Kolkata",
			MapWidth:    1024,
			MapHeight:   768,
			ForwardedBy: DefaultForwardedBy,
		},
		Sync: SyncConfig{
			MaxConcurrent:      4,
			PredictionCacheTTL: 5 * time.Minute,
			Source:             SourceStore,
			PollInterval:       10 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./cipher.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "cipher",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "cipher",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
