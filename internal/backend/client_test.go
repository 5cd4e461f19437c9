package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-finance/cipher/internal/domain"
)

func TestATMHotspots(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != PathATMHotspots {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"CMP-1":[{"atm_id":1042,"atm_name":"SBI Anna Nagar","lat":13.08,"lon":80.21,"risk_score_norm":0.93,"rank":1,"risk_class":"Critical"}]}`))
	}))
	defer srv.Close()

	client := New(domain.BackendConfig{BaseURL: srv.URL})

	out, err := client.ATMHotspots(context.Background(), map[string]any{"complaint_id": "CMP-1"})
	if err != nil {
		t.Fatalf("ATMHotspots failed: %v", err)
	}

	if gotBody["complaint_id"] != "CMP-1" {
		t.Errorf("payload not forwarded: %v", gotBody)
	}

	preds := out["CMP-1"]
	if len(preds) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(preds))
	}
	if preds[0].ATMID != "1042" {
		t.Errorf("expected numeric atm_id decoded as 1042, got %q", preds[0].ATMID)
	}
	if preds[0].RiskScoreNorm != 0.93 {
		t.Errorf("unexpected score %v", preds[0].RiskScoreNorm)
	}
}

func TestTransportErrors(t *testing.T) {
	t.Run("Non2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := New(domain.BackendConfig{BaseURL: srv.URL}).ListComplaints(context.Background())

		var te *domain.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		if te.StatusCode != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", te.StatusCode)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := New(domain.BackendConfig{BaseURL: url}).ArchiveComplaint(context.Background(), "CMP-1")

		var te *domain.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransportError, got %v", err)
		}
		if te.StatusCode != 0 {
			t.Errorf("expected no status for network failure, got %d", te.StatusCode)
		}
	})

	t.Run("BadJSON", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		_, err := New(domain.BackendConfig{BaseURL: srv.URL}).ListHistory(context.Background())
		var te *domain.TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransportError, got %v", err)
		}
	})
}

func TestArchiveComplaint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"message":"Complaint archived successfully"}`))
	}))
	defer srv.Close()

	if err := New(domain.BackendConfig{BaseURL: srv.URL + "/"}).ArchiveComplaint(context.Background(), "CMP-7"); err != nil {
		t.Fatalf("ArchiveComplaint failed: %v", err)
	}
	if path != "/api/complaints/CMP-7/archive" {
		t.Errorf("unexpected path %s", path)
	}
}

func TestListComplaints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"complaint_id":"CMP-1"},{"complaint_id":"CMP-2"}]`))
	}))
	defer srv.Close()

	docs, err := New(domain.BackendConfig{BaseURL: srv.URL}).ListComplaints(context.Background())
	if err != nil {
		t.Fatalf("ListComplaints failed: %v", err)
	}
	if len(docs) != 2 || docs[1]["complaint_id"] != "CMP-2" {
		t.Errorf("unexpected documents %v", docs)
	}
}
