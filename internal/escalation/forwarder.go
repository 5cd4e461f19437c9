// Package escalation forwards alerts to the bank alert store.
package escalation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/cipher/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cipher-escalation")

// Archiver moves a forwarded complaint out of the live set.
type Archiver interface {
	ArchiveComplaint(ctx context.Context, complaintID string) error
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(ctx context.Context, complaintID string) error

// ArchiveComplaint calls f.
func (f ArchiverFunc) ArchiveComplaint(ctx context.Context, complaintID string) error {
	return f(ctx, complaintID)
}

// Forwarder writes bank alert records and archives their complaints.
type Forwarder struct {
	repo        domain.Repository
	archiver    Archiver
	bus         domain.EventBus
	forwardedBy string
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithEventBus announces forwarded alerts on bus.
func WithEventBus(bus domain.EventBus) Option {
	return func(f *Forwarder) { f.bus = bus }
}

// WithForwardedBy sets the actor recorded on each record.
func WithForwardedBy(name string) Option {
	return func(f *Forwarder) {
		if name != "" {
			f.forwardedBy = name
		}
	}
}

// WithClock sets the clock used for forwardedAt.
func WithClock(now func() time.Time) Option {
	return func(f *Forwarder) { f.now = now }
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(f *Forwarder) { f.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

// New creates a forwarder. archiver may be nil to skip archiving.
func New(repo domain.Repository, archiver Archiver, opts ...Option) *Forwarder {
	f := &Forwarder{
		repo:        repo,
		archiver:    archiver,
		forwardedBy: domain.DefaultForwardedBy,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward appends a bank alert record for a and returns its id. A failed
// write is returned as *domain.TransportError. Archiving the complaint
// afterwards is best effort: a failure is logged and does not affect the
// result.
func (f *Forwarder) Forward(ctx context.Context, a domain.Alert) (string, error) {
	ctx, span := tracer.Start(ctx, "forward alert")
	defer span.End()
	span.SetAttributes(
		attribute.String("alert.id", a.ID),
		attribute.String("complaint.id", a.ComplaintID),
	)

	rec := domain.NewBankAlertRecord(f.newID(), a, f.forwardedBy, f.now())

	if err := f.repo.SaveBankAlert(ctx, &rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &domain.TransportError{Op: "save bank alert", Err: err}
	}

	f.logger.Info("alert forwarded to bank",
		"record_id", rec.ID,
		"alert_id", a.ID,
		"complaint_id", a.ComplaintID,
		"priority", string(a.Priority),
	)

	f.archive(ctx, a.ComplaintID)
	f.announce(ctx, &rec)

	return rec.ID, nil
}

func (f *Forwarder) archive(ctx context.Context, complaintID string) {
	if f.archiver == nil || complaintID == "" {
		return
	}
	if err := f.archiver.ArchiveComplaint(ctx, complaintID); err != nil {
		archiveErr := &domain.ArchiveError{ComplaintID: complaintID, Err: err}
		f.logger.Warn("complaint archive failed after escalation",
			"complaint_id", complaintID,
			"error", archiveErr,
		)
	}
}

func (f *Forwarder) announce(ctx context.Context, rec *domain.BankAlertRecord) {
	if f.bus == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := f.bus.Publish(ctx, domain.TopicAlertForwarded, payload); err != nil {
		f.logger.Warn("failed to publish forwarded alert",
			"record_id", rec.ID,
			"error", err,
		)
	}
}
