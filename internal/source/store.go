package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/repository"
)

// ArchiveNotes is recorded on complaints archived after escalation.
const ArchiveNotes = "Automatically archived after forwarding to bank"

// ErrAlreadyArchived is returned when archiving a complaint already in history.
var ErrAlreadyArchived = repository.ErrAlreadyArchived

// Store is the push-capable complaint source. Writes go to the repository
// and are announced on the event bus; subscribers re-read the full
// complaint set on every announcement.
type Store struct {
	repo   domain.Repository
	bus    domain.EventBus
	norm   *Normalizer
	logger *slog.Logger
	now    func() time.Time

	// DemoMode substitutes C-<unix millis> for a missing complaint id.
	// Without it Submit rejects the document.
	DemoMode bool
}

// NewStore creates a store-backed complaint source.
func NewStore(repo domain.Repository, bus domain.EventBus, norm *Normalizer) *Store {
	if norm == nil {
		norm = NewNormalizer(time.UTC, nil)
	}
	return &Store{
		repo:   repo,
		bus:    bus,
		norm:   norm,
		logger: norm.Logger,
		now:    norm.Now,
	}
}

// FetchAll reads every live complaint, newest first. Documents that fail
// normalization are logged and skipped.
func (s *Store) FetchAll(ctx context.Context) ([]domain.Complaint, error) {
	docs, err := s.repo.ListComplaints(ctx)
	if err != nil {
		return nil, &domain.TransportError{Op: "list complaints", Err: err}
	}
	return s.normalizeAll(docs), nil
}

func (s *Store) normalizeAll(docs []*domain.RawComplaint) []domain.Complaint {
	out := make([]domain.Complaint, 0, len(docs))
	for _, d := range docs {
		c, err := s.norm.Normalize(*d)
		if err != nil {
			s.logger.Warn("skipping malformed complaint",
				"document_id", d.ID,
				"error", err,
			)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Subscribe delivers the current complaint set, then a fresh set after each
// change notification. A failed re-read is logged and the subscription
// stays open. Deliveries are serialized.
func (s *Store) Subscribe(ctx context.Context, onUpdate func([]domain.Complaint)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	var mu sync.Mutex
	stopped := false

	deliver := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}

		complaints, err := s.FetchAll(ctx)
		if err != nil {
			s.logger.Error("complaint snapshot failed", "error", err)
			return
		}
		if stopped || ctx.Err() != nil {
			return
		}
		onUpdate(complaints)
	}

	sub, err := s.bus.Subscribe(subCtx, domain.TopicComplaintsChanged, func(ctx context.Context, msg *domain.Message) error {
		deliver(ctx)
		return nil
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to complaint changes: %w", err)
	}

	go deliver(subCtx)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			stopped = true
			mu.Unlock()
			_ = sub.Unsubscribe()
		})
	}
	return unsubscribe, nil
}

// Submit stores a new complaint document and announces the change. A
// missing identifier is a MalformedDataError unless DemoMode is set.
func (s *Store) Submit(ctx context.Context, fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}

	id := firstString(fields, idKeys...)
	if id == "" {
		if !s.DemoMode {
			return "", &domain.MalformedDataError{Field: "complaint_id", Reason: "missing"}
		}
		id = "C-" + strconv.FormatInt(s.now().UnixMilli(), 10)
		fields["complaint_id"] = id
	}

	doc := &domain.RawComplaint{
		ID:        id,
		CreatedAt: s.now(),
		Status:    firstString(fields, "status"),
		Fields:    fields,
	}

	if _, err := s.norm.Normalize(*doc); err != nil {
		return "", err
	}
	if err := s.repo.SaveComplaint(ctx, doc); err != nil {
		return "", err
	}

	s.announce(ctx, id)
	return id, nil
}

// UpdateStatus changes a live complaint's status.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	if err := s.repo.UpdateComplaintStatus(ctx, id, status); err != nil {
		return err
	}
	s.announce(ctx, id)
	return nil
}

// Archive moves a complaint to history with status "Forwarded to Bank".
func (s *Store) Archive(ctx context.Context, id string) error {
	if err := s.repo.ArchiveComplaint(ctx, id, ArchiveNotes, s.now()); err != nil {
		return err
	}
	s.announce(ctx, id)
	return nil
}

// History returns archived complaints.
func (s *Store) History(ctx context.Context) ([]*domain.ArchivedComplaint, error) {
	return s.repo.ListHistory(ctx)
}

// Get returns one live complaint, normalized.
func (s *Store) Get(ctx context.Context, id string) (domain.Complaint, error) {
	doc, err := s.repo.GetComplaint(ctx, id)
	if err != nil {
		return domain.Complaint{}, err
	}
	return s.norm.Normalize(*doc)
}

func (s *Store) announce(ctx context.Context, id string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicComplaintsChanged, []byte(id)); err != nil {
		s.logger.Warn("failed to publish complaint change",
			"complaint_id", id,
			"error", err,
		)
	}
}

// IsNotFound reports whether err means the complaint does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
