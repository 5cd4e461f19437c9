// Package config loads the service configuration from defaults, an optional
// file, and CIPHER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CIPHER_BACKEND_BASE_URL or CIPHER_REPOSITORY_DRIVER.
const EnvPrefix = "CIPHER"

// Load reads configuration from file and environment variables.
// CIPHER_TIER=pro switches the base defaults to domain.ProConfig.
func Load(configPath string) (*domain.Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		cfg = domain.ProConfig()
	}

	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base url %q", cfg.Backend.BaseURL)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Backend.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative")
	}
	switch cfg.Sync.Source {
	case domain.SourceStore, domain.SourceREST:
	default:
		return fmt.Errorf("unknown complaint source %q", cfg.Sync.Source)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *domain.Config) {
	v.SetDefault("tier", string(cfg.Tier))

	// Server defaults
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)

	// Backend defaults
	v.SetDefault("backend.base_url", cfg.Backend.BaseURL)
	v.SetDefault("backend.retry_count", cfg.Backend.RetryCount)
	v.SetDefault("backend.timeout", cfg.Backend.Timeout)
	v.SetDefault("backend.demo_mode", cfg.Backend.DemoMode)

	// Display defaults
	v.SetDefault("display.time_zone", cfg.Display.TimeZone)
	v.SetDefault("display.map_width", cfg.Display.MapWidth)
	v.SetDefault("display.map_height", cfg.Display.MapHeight)
	v.SetDefault("display.forwarded_by", cfg.Display.ForwardedBy)

	// Sync defaults
	v.SetDefault("sync.selector", cfg.Sync.Selector)
	v.SetDefault("sync.max_concurrent", cfg.Sync.MaxConcurrent)
	v.SetDefault("sync.prediction_cache_ttl", cfg.Sync.PredictionCacheTTL)
	v.SetDefault("sync.source", cfg.Sync.Source)
	v.SetDefault("sync.poll_interval", cfg.Sync.PollInterval)

	// Repository defaults
	v.SetDefault("repository.driver", cfg.Repository.Driver)
	v.SetDefault("repository.sqlite_path", cfg.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", cfg.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", cfg.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", cfg.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", cfg.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", cfg.Repository.PostgresDB)
	v.SetDefault("repository.postgres_ssl_mode", cfg.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", cfg.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", cfg.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", cfg.Repository.ConnMaxLifetime)

	// Cache defaults
	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.local_max_size", cfg.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", cfg.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", cfg.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", cfg.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", cfg.Cache.EnableTwoPhase)

	// Event bus defaults
	v.SetDefault("event_bus.type", cfg.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", cfg.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_url", cfg.EventBus.NATSUrl)
	v.SetDefault("event_bus.nats_token", cfg.EventBus.NATSToken)
	v.SetDefault("event_bus.nats_max_reconnects", cfg.EventBus.NATSMaxReconnects)
	v.SetDefault("event_bus.nats_reconnect_wait", cfg.EventBus.NATSReconnectWait)

	// Observability defaults
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
}
