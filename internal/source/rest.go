package source

import (
	"context"
	"time"

	"github.com/opensource-finance/cipher/internal/backend"
	"github.com/opensource-finance/cipher/internal/domain"
)

// REST reads complaints from the backend API. The API has no push channel,
// so Subscribe polls when PollInterval is set and otherwise delivers a
// single snapshot.
type REST struct {
	client       *backend.Client
	norm         *Normalizer
	PollInterval time.Duration
}

// NewREST creates a REST complaint source.
func NewREST(client *backend.Client, norm *Normalizer) *REST {
	if norm == nil {
		norm = NewNormalizer(time.UTC, nil)
	}
	return &REST{client: client, norm: norm}
}

// FetchAll returns the backend's live complaints.
func (r *REST) FetchAll(ctx context.Context) ([]domain.Complaint, error) {
	docs, err := r.client.ListComplaints(ctx)
	if err != nil {
		return nil, err
	}
	return r.normalize(docs), nil
}

// History returns complaints the backend has archived.
func (r *REST) History(ctx context.Context) ([]domain.Complaint, error) {
	docs, err := r.client.ListHistory(ctx)
	if err != nil {
		return nil, err
	}
	return r.normalize(docs), nil
}

func (r *REST) normalize(docs []map[string]any) []domain.Complaint {
	out := make([]domain.Complaint, 0, len(docs))
	for _, d := range docs {
		c, err := r.norm.Normalize(domain.RawComplaint{Fields: d})
		if err != nil {
			r.norm.Logger.Warn("skipping malformed complaint",
				"complaint_id", firstString(d, idKeys...),
				"error", err,
			)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Subscribe delivers the current set and, when polling, a new set on every
// tick. Fetch failures are logged and polling continues.
func (r *REST) Subscribe(ctx context.Context, onUpdate func([]domain.Complaint)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		poll := func() {
			complaints, err := r.FetchAll(ctx)
			if err != nil {
				r.norm.Logger.Error("complaint poll failed", "error", err)
				return
			}
			if ctx.Err() == nil {
				onUpdate(complaints)
			}
		}

		poll()
		if r.PollInterval <= 0 {
			return
		}

		ticker := time.NewTicker(r.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return cancel, nil
}
