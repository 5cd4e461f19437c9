package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
)

// MemoryRepository implements domain.Repository in process memory.
// Used for demos and tests; contents are lost on exit.
type MemoryRepository struct {
	mu         sync.RWMutex
	complaints map[string]*domain.RawComplaint
	history    map[string]*domain.ArchivedComplaint
	alerts     map[string]*domain.BankAlertRecord
	closed     bool

	// FailWrites makes bank alert writes fail, for exercising error paths.
	FailWrites bool
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		complaints: make(map[string]*domain.RawComplaint),
		history:    make(map[string]*domain.ArchivedComplaint),
		alerts:     make(map[string]*domain.BankAlertRecord),
	}
}

// SaveComplaint inserts or replaces a complaint, keeping its creation time.
func (m *MemoryRepository) SaveComplaint(ctx context.Context, c *domain.RawComplaint) error {
	if c == nil || strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: complaint id is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneRaw(c)
	if cp.Status == "" {
		cp.Status = domain.StatusOpen
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if existing, ok := m.complaints[c.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	m.complaints[c.ID] = cp
	return nil
}

// GetComplaint returns a copy of a live complaint.
func (m *MemoryRepository) GetComplaint(ctx context.Context, id string) (*domain.RawComplaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.complaints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRaw(c), nil
}

// ListComplaints returns live complaints, newest first.
func (m *MemoryRepository) ListComplaints(ctx context.Context) ([]*domain.RawComplaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.RawComplaint, 0, len(m.complaints))
	for _, c := range m.complaints {
		out = append(out, cloneRaw(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateComplaintStatus sets the status of a live complaint.
func (m *MemoryRepository) UpdateComplaintStatus(ctx context.Context, id string, status string) error {
	if strings.TrimSpace(status) == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.complaints[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	return nil
}

// ArchiveComplaint moves a complaint into history.
func (m *MemoryRepository) ArchiveComplaint(ctx context.Context, id string, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.history[id]; ok {
		return ErrAlreadyArchived
	}
	c, ok := m.complaints[id]
	if !ok {
		return ErrNotFound
	}

	archived := &domain.ArchivedComplaint{
		RawComplaint:    *cloneRaw(c),
		ResolutionDate:  at,
		ResolutionNotes: notes,
	}
	archived.Status = domain.StatusForwarded

	m.history[id] = archived
	delete(m.complaints, id)
	return nil
}

// ListHistory returns archived complaints, most recently resolved first.
func (m *MemoryRepository) ListHistory(ctx context.Context) ([]*domain.ArchivedComplaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.ArchivedComplaint, 0, len(m.history))
	for _, h := range m.history {
		cp := *h
		cp.RawComplaint = *cloneRaw(&h.RawComplaint)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolutionDate.After(out[j].ResolutionDate)
	})
	return out, nil
}

// SaveBankAlert appends a bank alert record.
func (m *MemoryRepository) SaveBankAlert(ctx context.Context, rec *domain.BankAlertRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: bank alert id is required", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites {
		return fmt.Errorf("bank alert store unavailable")
	}
	if _, ok := m.alerts[rec.ID]; ok {
		return fmt.Errorf("%w: bank alert %s exists", ErrInvalidInput, rec.ID)
	}
	cp := *rec
	m.alerts[rec.ID] = &cp
	return nil
}

// GetBankAlert returns a copy of a bank alert record.
func (m *MemoryRepository) GetBankAlert(ctx context.Context, id string) (*domain.BankAlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// BankAlertCount returns the number of stored bank alerts.
func (m *MemoryRepository) BankAlertCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.alerts)
}

// Ping fails after Close.
func (m *MemoryRepository) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("repository is closed")
	}
	return nil
}

// Close marks the repository closed.
func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneRaw(c *domain.RawComplaint) *domain.RawComplaint {
	cp := *c
	cp.Fields = make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cp.Fields[k] = v
	}
	return &cp
}
