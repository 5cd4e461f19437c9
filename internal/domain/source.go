package domain

import (
	"context"
)

// ComplaintSource delivers normalized complaints from a backing store.
type ComplaintSource interface {
	// FetchAll performs a one-shot read. An empty store yields an empty slice.
	FetchAll(ctx context.Context) ([]Complaint, error)

	// Subscribe delivers an initial snapshot followed by one full snapshot
	// per change. The returned function cancels delivery; it is idempotent.
	Subscribe(ctx context.Context, onUpdate func([]Complaint)) (unsubscribe func(), err error)
}

// Predictor returns ranked at-risk locations for one complaint.
type Predictor interface {
	Predict(ctx context.Context, c Complaint) ([]RiskPrediction, error)
}
