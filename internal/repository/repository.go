// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyArchived = errors.New("complaint already in history")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveComplaint inserts a complaint document or replaces its fields.
func (r *SQLRepository) SaveComplaint(ctx context.Context, c *domain.RawComplaint) error {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: complaint id is required", ErrInvalidInput)
	}

	fields, err := json.Marshal(c.Fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	status := c.Status
	if status == "" {
		status = domain.StatusOpen
	}

	query := `
		INSERT INTO complaints (id, status, created_at, fields)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fields = excluded.fields
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), c.ID, status, createdAt.UTC(), string(fields))
	return err
}

// GetComplaint retrieves a live complaint by ID.
func (r *SQLRepository) GetComplaint(ctx context.Context, id string) (*domain.RawComplaint, error) {
	query := `
		SELECT id, status, created_at, fields
		FROM complaints
		WHERE id = ?
	`

	c, err := scanComplaint(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComplaints returns live complaints, newest first.
func (r *SQLRepository) ListComplaints(ctx context.Context) ([]*domain.RawComplaint, error) {
	query := `
		SELECT id, status, created_at, fields
		FROM complaints
		ORDER BY created_at DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	complaints := []*domain.RawComplaint{}
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, c)
	}

	return complaints, rows.Err()
}

// UpdateComplaintStatus sets the status of a live complaint.
func (r *SQLRepository) UpdateComplaintStatus(ctx context.Context, id string, status string) error {
	if strings.TrimSpace(status) == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`UPDATE complaints SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveComplaint moves a complaint into history_complaints with status
// "Forwarded to Bank". The move is a single transaction.
func (r *SQLRepository) ArchiveComplaint(ctx context.Context, id string, notes string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM history_complaints WHERE id = ?`), id).Scan(&exists)
	if err == nil {
		return ErrAlreadyArchived
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	c, err := scanComplaint(tx.QueryRowContext(ctx,
		r.rebind(`SELECT id, status, created_at, fields FROM complaints WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	fields, _ := json.Marshal(c.Fields)

	insert := `
		INSERT INTO history_complaints (id, status, created_at, fields, resolution_date, resolution_notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(insert),
		c.ID, domain.StatusForwarded, c.CreatedAt.UTC(), string(fields), at.UTC(), notes,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM complaints WHERE id = ?`), id); err != nil {
		return err
	}

	return tx.Commit()
}

// ListHistory returns archived complaints, most recently resolved first.
func (r *SQLRepository) ListHistory(ctx context.Context) ([]*domain.ArchivedComplaint, error) {
	query := `
		SELECT id, status, created_at, fields, resolution_date, resolution_notes
		FROM history_complaints
		ORDER BY resolution_date DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []*domain.ArchivedComplaint{}
	for rows.Next() {
		var a domain.ArchivedComplaint
		var fields string

		if err := rows.Scan(
			&a.ID, &a.Status, &a.CreatedAt, &fields,
			&a.ResolutionDate, &a.ResolutionNotes,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &a.Fields); err != nil {
			return nil, fmt.Errorf("failed to parse complaint %s: %w", a.ID, err)
		}
		history = append(history, &a)
	}

	return history, rows.Err()
}

// SaveBankAlert appends an escalated alert. Existing records are never
// overwritten.
func (r *SQLRepository) SaveBankAlert(ctx context.Context, rec *domain.BankAlertRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: bank alert id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bank_alerts (id, alert_id, complaint_id, status, forwarded_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.AlertID, rec.ComplaintID, rec.Status, rec.ForwardedAt.UTC(), string(payload),
	)
	return err
}

// GetBankAlert retrieves an escalated alert by record ID.
func (r *SQLRepository) GetBankAlert(ctx context.Context, id string) (*domain.BankAlertRecord, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT payload FROM bank_alerts WHERE id = ?`), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec domain.BankAlertRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse bank alert %s: %w", id, err)
	}
	return &rec, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (*domain.RawComplaint, error) {
	var c domain.RawComplaint
	var fields string

	if err := row.Scan(&c.ID, &c.Status, &c.CreatedAt, &fields); err != nil {
		return nil, err
	}
	if fields != "" {
		if err := json.Unmarshal([]byte(fields), &c.Fields); err != nil {
			return nil, fmt.Errorf("failed to parse complaint %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
