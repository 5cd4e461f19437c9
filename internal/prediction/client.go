// Package prediction requests ranked at-risk ATM locations for complaints.
package prediction

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("cipher-prediction")

// Hotspotter is the part of the backend client the predictor needs.
type Hotspotter interface {
	ATMHotspots(ctx context.Context, payload any) (map[string][]domain.RiskPrediction, error)
}

// request is the hotspot payload: the complaint document plus the
// complaint time under the name the model service reads.
type request struct {
	domain.Complaint
	TimeOfComplaint string `json:"time_of_complaint"`
}

// Client implements domain.Predictor against the backend hotspot endpoint.
type Client struct {
	backend  Hotspotter
	demoMode bool
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDemoMode substitutes a generated complaint id when one is missing
// instead of rejecting the complaint.
func WithDemoMode(enabled bool) Option {
	return func(c *Client) { c.demoMode = enabled }
}

// WithClock sets the clock used for generated ids.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a prediction client.
func New(backend Hotspotter, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict returns the ranked candidate locations for one complaint. An
// empty result means the model found no at-risk location.
func (c *Client) Predict(ctx context.Context, complaint domain.Complaint) ([]domain.RiskPrediction, error) {
	if complaint.ComplaintID == "" {
		if !c.demoMode {
			return nil, &domain.MalformedDataError{Field: "complaint_id", Reason: "missing"}
		}
		complaint.ComplaintID = "C-" + strconv.FormatInt(c.now().UnixMilli(), 10)
		c.logger.Warn("complaint has no id, using generated id",
			"complaint_id", complaint.ComplaintID,
		)
	}

	ctx, span := tracer.Start(ctx, "predict")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", complaint.ComplaintID))

	req := request{
		Complaint:       complaint,
		TimeOfComplaint: complaint.Timestamp.Format(time.RFC3339),
	}

	byComplaint, err := c.backend.ATMHotspots(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	preds := byComplaint[complaint.ComplaintID]
	out := make([]domain.RiskPrediction, 0, len(preds))
	for _, p := range preds {
		if p.ComplaintID == "" {
			p.ComplaintID = complaint.ComplaintID
		}
		out = append(out, p)
	}

	span.SetAttributes(attribute.Int("prediction.count", len(out)))
	c.logger.Debug("predictions received",
		"complaint_id", complaint.ComplaintID,
		"count", len(out),
	)
	return out, nil
}
