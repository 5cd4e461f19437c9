// Package backend is the REST client for the complaint and prediction
// service.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/opensource-finance/cipher/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Endpoint paths relative to the configured base URL.
const (
	PathComplaints  = "/api/complaints"
	PathHistory     = "/api/history"
	PathATMHotspots = "/api/complaints/atm-hotspots"
	pathArchiveFmt  = "/api/complaints/%s/archive"
)

var tracer = otel.Tracer("cipher-backend")

// Client talks to the backend service. It has no timeout of its own unless
// one is configured; callers bound requests through the context.
type Client struct {
	http *resty.Client
}

// New creates a backend client from configuration.
func New(cfg domain.BackendConfig) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount)

	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}

	return &Client{http: c}
}

// ListComplaints fetches the live complaint documents.
func (c *Client) ListComplaints(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, "list complaints", resty.MethodGet, PathComplaints, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListHistory fetches archived complaint documents.
func (c *Client) ListHistory(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, "list history", resty.MethodGet, PathHistory, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ATMHotspots requests ranked at-risk ATMs for a complaint payload. The
// response is keyed by complaint id.
func (c *Client) ATMHotspots(ctx context.Context, payload any) (map[string][]domain.RiskPrediction, error) {
	var out map[string][]domain.RiskPrediction
	if err := c.do(ctx, "atm hotspots", resty.MethodPost, PathATMHotspots, payload, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string][]domain.RiskPrediction{}
	}
	return out, nil
}

// ArchiveComplaint asks the backend to move a complaint to history.
func (c *Client) ArchiveComplaint(ctx context.Context, complaintID string) error {
	path := fmt.Sprintf(pathArchiveFmt, url.PathEscape(complaintID))
	return c.do(ctx, "archive complaint", resty.MethodPost, path, struct{}{}, nil)
}

// do performs a request and decodes a JSON body into out. Network errors
// and non-2xx statuses become *domain.TransportError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := tracer.Start(ctx, "backend "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer span.End()

	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &domain.TransportError{Op: op, Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		span.SetStatus(codes.Error, resp.Status())
		slog.Debug("backend request failed",
			"op", op,
			"status", resp.StatusCode(),
			"body", truncate(resp.String(), 256),
		)
		return &domain.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("%s", truncate(resp.String(), 256)),
		}
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		span.RecordError(err)
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
