// Package domain defines the core interfaces and types for Cipher.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the backing store: live complaints,
// the history partition, and escalated bank alerts.
type Repository interface {
	// Complaint operations
	SaveComplaint(ctx context.Context, c *RawComplaint) error
	GetComplaint(ctx context.Context, id string) (*RawComplaint, error)
	ListComplaints(ctx context.Context) ([]*RawComplaint, error)
	UpdateComplaintStatus(ctx context.Context, id string, status string) error

	// ArchiveComplaint moves a complaint to the history partition.
	// Implementations report an already archived complaint with a sentinel error.
	ArchiveComplaint(ctx context.Context, id string, notes string, at time.Time) error
	ListHistory(ctx context.Context) ([]*ArchivedComplaint, error)

	// Bank alerts (append-only)
	SaveBankAlert(ctx context.Context, rec *BankAlertRecord) error
	GetBankAlert(ctx context.Context, id string) (*BankAlertRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgres_port"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgres_user"`
	PostgresPassword string `json:"postgresPassword" mapstructure:"postgres_password"`
	PostgresDB       string `json:"postgresDB" mapstructure:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSSLMode" mapstructure:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
}
