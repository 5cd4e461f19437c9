package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/cipher/internal/backend"
	"github.com/opensource-finance/cipher/internal/cache"
	"github.com/opensource-finance/cipher/internal/domain"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeHotspots struct {
	calls   atomic.Int32
	payload any
	resp    map[string][]domain.RiskPrediction
	err     error
}

func (f *fakeHotspots) ATMHotspots(ctx context.Context, payload any) (map[string][]domain.RiskPrediction, error) {
	f.calls.Add(1)
	f.payload = payload
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func sampleComplaint() domain.Complaint {
	return domain.Complaint{
		ComplaintID:        "CMP-1",
		Timestamp:          time.Date(2025, 10, 2, 3, 50, 0, 0, time.UTC),
		VictimState:        "Tamil Nadu",
		VictimLat:          13.0827,
		VictimLon:          80.2707,
		FraudType:          "Phishing",
		BankName:           "SBI",
		ReportedLossAmount: 25000,
		UrgencyScore:       0.8,
		Status:             domain.StatusOpen,
	}
}

func TestPredictWirePayload(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != backend.PathATMHotspots {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"CMP-1":[{"atm_id":1042,"atm_name":"SBI Anna Salai","suspected_atm_place":"Anna Salai, Chennai","lat":13.06,"lon":80.26,"rank":1,"risk_score":0.91,"risk_score_norm":0.93,"risk_class":"High"}]}`)
	}))
	defer server.Close()

	p := New(backend.New(domain.BackendConfig{BaseURL: server.URL}), WithLogger(quiet))

	preds, err := p.Predict(context.Background(), sampleComplaint())
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	if body["complaint_id"] != "CMP-1" {
		t.Errorf("expected complaint_id in payload, got %v", body["complaint_id"])
	}
	if body["time_of_complaint"] != "2025-10-02T03:50:00Z" {
		t.Errorf("unexpected time_of_complaint %v", body["time_of_complaint"])
	}
	if body["fraud_type"] != "Phishing" {
		t.Errorf("unexpected fraud_type %v", body["fraud_type"])
	}

	if len(preds) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(preds))
	}
	if preds[0].ATMID != "1042" {
		t.Errorf("expected atm 1042, got %s", preds[0].ATMID)
	}
	if preds[0].ComplaintID != "CMP-1" {
		t.Errorf("expected complaint id to be filled, got %q", preds[0].ComplaintID)
	}
}

func TestPredict(t *testing.T) {
	ctx := context.Background()

	t.Run("NoRisk", func(t *testing.T) {
		f := &fakeHotspots{resp: map[string][]domain.RiskPrediction{"OTHER": {{ATMID: "1"}}}}
		preds, err := New(f, WithLogger(quiet)).Predict(ctx, sampleComplaint())
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if preds == nil || len(preds) != 0 {
			t.Errorf("expected empty non-nil result, got %v", preds)
		}
	})

	t.Run("TransportError", func(t *testing.T) {
		f := &fakeHotspots{err: &domain.TransportError{Op: "atm hotspots", StatusCode: 500}}
		_, err := New(f, WithLogger(quiet)).Predict(ctx, sampleComplaint())
		var te *domain.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		if te.StatusCode != 500 {
			t.Errorf("expected status 500, got %d", te.StatusCode)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		f := &fakeHotspots{}
		c := sampleComplaint()
		c.ComplaintID = ""

		_, err := New(f, WithLogger(quiet)).Predict(ctx, c)
		var malformed *domain.MalformedDataError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedDataError, got %v", err)
		}
		if f.calls.Load() != 0 {
			t.Error("backend should not be called without an id")
		}
	})

	t.Run("MissingIDDemoMode", func(t *testing.T) {
		now := time.UnixMilli(1759376400000)
		f := &fakeHotspots{resp: map[string][]domain.RiskPrediction{
			"C-1759376400000": {{ATMID: "7", Rank: 1}},
		}}
		c := sampleComplaint()
		c.ComplaintID = ""

		p := New(f, WithDemoMode(true), WithClock(func() time.Time { return now }), WithLogger(quiet))
		preds, err := p.Predict(ctx, c)
		if err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if len(preds) != 1 || preds[0].ComplaintID != "C-1759376400000" {
			t.Errorf("unexpected predictions %+v", preds)
		}
		req, ok := f.payload.(request)
		if !ok {
			t.Fatalf("unexpected payload type %T", f.payload)
		}
		if req.ComplaintID != "C-1759376400000" {
			t.Errorf("expected generated id in payload, got %s", req.ComplaintID)
		}
	})
}

func TestCached(t *testing.T) {
	ctx := context.Background()

	t.Run("HitsCacheForSameContent", func(t *testing.T) {
		f := &fakeHotspots{resp: map[string][]domain.RiskPrediction{"CMP-1": {{ATMID: "1", Rank: 1, RiskScoreNorm: 0.93}}}}
		p := NewCached(New(f, WithLogger(quiet)), cache.NewLRUCache(10), time.Minute)

		for i := 0; i < 3; i++ {
			preds, err := p.Predict(ctx, sampleComplaint())
			if err != nil {
				t.Fatalf("predict failed: %v", err)
			}
			if len(preds) != 1 || preds[0].RiskScoreNorm != 0.93 {
				t.Fatalf("unexpected predictions %+v", preds)
			}
		}
		if f.calls.Load() != 1 {
			t.Errorf("expected 1 backend call, got %d", f.calls.Load())
		}

		edited := sampleComplaint()
		edited.UrgencyScore = 0.95
		if _, err := p.Predict(ctx, edited); err != nil {
			t.Fatalf("predict failed: %v", err)
		}
		if f.calls.Load() != 2 {
			t.Errorf("edited complaint should miss the cache, got %d calls", f.calls.Load())
		}
	})

	t.Run("ErrorsAreNotCached", func(t *testing.T) {
		f := &fakeHotspots{err: errors.New("unavailable")}
		p := NewCached(New(f, WithLogger(quiet)), cache.NewLRUCache(10), time.Minute)

		for i := 0; i < 2; i++ {
			if _, err := p.Predict(ctx, sampleComplaint()); err == nil {
				t.Fatal("expected error")
			}
		}
		if f.calls.Load() != 2 {
			t.Errorf("expected 2 backend calls, got %d", f.calls.Load())
		}
	})

	t.Run("NilCache", func(t *testing.T) {
		inner := New(&fakeHotspots{}, WithLogger(quiet))
		if got := NewCached(inner, nil, time.Minute); got != domain.Predictor(inner) {
			t.Error("expected inner predictor when cache is nil")
		}
	})
}
