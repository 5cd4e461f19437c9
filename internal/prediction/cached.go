package prediction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
)

// Cached memoizes a predictor's results by complaint content. Failed
// predictions are never cached, and cache errors degrade to a direct call.
type Cached struct {
	next   domain.Predictor
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next with cache. A nil cache returns next unchanged.
func NewCached(next domain.Predictor, cache domain.Cache, ttl time.Duration) domain.Predictor {
	if cache == nil {
		return next
	}
	return &Cached{next: next, cache: cache, ttl: ttl, logger: slog.Default()}
}

// Predict serves from cache when the same complaint content was scored
// within the TTL.
func (c *Cached) Predict(ctx context.Context, complaint domain.Complaint) ([]domain.RiskPrediction, error) {
	if complaint.ComplaintID == "" {
		return c.next.Predict(ctx, complaint)
	}

	key, err := cacheKey(complaint)
	if err != nil {
		return c.next.Predict(ctx, complaint)
	}

	if data, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("prediction cache read failed", "error", err)
	} else if data != nil {
		var preds []domain.RiskPrediction
		if err := json.Unmarshal(data, &preds); err == nil {
			return preds, nil
		}
		_ = c.cache.Delete(ctx, key)
	}

	preds, err := c.next.Predict(ctx, complaint)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(preds); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("prediction cache write failed", "error", err)
		}
	}
	return preds, nil
}

// cacheKey fingerprints the full complaint content, so an edited complaint
// misses the cache.
func cacheKey(c domain.Complaint) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return domain.PredictionCacheKey(hex.EncodeToString(sum[:])), nil
}
