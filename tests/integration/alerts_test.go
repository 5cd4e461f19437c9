//go:build integration
// +build integration

// Package integration drives a running Cipher instance end to end:
//
//	complaint submitted -> prediction -> live alerts -> filter -> forward -> history
//
// The instance must run with the store source (the default) and a reachable
// prediction backend.
//
// Run with: CIPHER_TEST_URL=http://localhost:8080 go test -tags=integration -v ./tests/integration/...
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig(t *testing.T) TestConfig {
	t.Helper()
	baseURL := os.Getenv("CIPHER_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	resp, err := http.Get(baseURL + "/ready")
	if err != nil {
		t.Skipf("cipher not reachable at %s: %v", baseURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("cipher at %s is not ready: %d", baseURL, resp.StatusCode)
	}
	return TestConfig{BaseURL: baseURL}
}

// Alert mirrors the dashboard alert contract.
type Alert struct {
	ID              string  `json:"alertId"`
	ComplaintID     string  `json:"complaintId"`
	ATMID           string  `json:"atmId"`
	Priority        string  `json:"priority"`
	RiskScoreNorm   float64 `json:"riskScoreNorm"`
	Rank            int     `json:"rank"`
	Time            string  `json:"time"`
	ConfidenceScore string  `json:"confidenceScore"`
	AIExplanation   string  `json:"aiExplanation"`
}

type alertList struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
}

var bands = map[string]bool{
	"Very Critical": true,
	"Critical":      true,
	"High":          true,
	"Medium":        true,
	"Low":           true,
	"Unbanded":      true,
}

func call(t *testing.T, cfg TestConfig, method, path string, body any, want int) []byte {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, cfg.BaseURL+path, r)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, want, resp.StatusCode, string(respBody))
	}
	return respBody
}

func alertsFor(t *testing.T, cfg TestConfig, complaintID string) []Alert {
	t.Helper()
	var list alertList
	if err := json.Unmarshal(call(t, cfg, http.MethodGet, "/dashboard/alerts", nil, http.StatusOK), &list); err != nil {
		t.Fatalf("Failed to decode alerts: %v", err)
	}
	var out []Alert
	for _, a := range list.Alerts {
		if a.ComplaintID == complaintID {
			out = append(out, a)
		}
	}
	return out
}

func waitForAlerts(t *testing.T, cfg TestConfig, complaintID string) []Alert {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if alerts := alertsFor(t, cfg, complaintID); len(alerts) > 0 {
			return alerts
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("no alerts for %s within 30s", complaintID)
	return nil
}

func TestComplaintToBankAlert(t *testing.T) {
	cfg := getTestConfig(t)
	complaintID := fmt.Sprintf("IT-%d", time.Now().UnixNano())

	call(t, cfg, http.MethodPut, "/dashboard/watch", map[string]string{"selector": ""}, http.StatusOK)
	call(t, cfg, http.MethodPut, "/dashboard/filter", map[string]any{"bands": bands}, http.StatusOK)

	call(t, cfg, http.MethodPost, "/api/complaints", map[string]any{
		"complaint_id":         complaintID,
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
		"victim_state":         "Tamil Nadu",
		"victim_district":      "Chennai",
		"victim_lat":           13.0827,
		"victim_lon":           80.2707,
		"channel":              "UPI",
		"fraud_type":           "Phishing",
		"bank_name":            "SBI",
		"reported_loss_amount": 25000,
		"urgency_score":        0.9,
		"num_transactions":     3,
		"is_otp_shared":        1,
	}, http.StatusCreated)

	alerts := waitForAlerts(t, cfg, complaintID)

	t.Run("AlertContract", func(t *testing.T) {
		confidence := regexp.MustCompile(`^\d+\.\d$`)
		clock := regexp.MustCompile(`^\d{2}:\d{2} (AM|PM)$`)
		for i, a := range alerts {
			if a.ID != complaintID+"-"+a.ATMID {
				t.Errorf("alert id %q does not join complaint and atm", a.ID)
			}
			if !bands[a.Priority] {
				t.Errorf("unknown priority %q", a.Priority)
			}
			if !confidence.MatchString(a.ConfidenceScore) {
				t.Errorf("confidence %q should have one decimal", a.ConfidenceScore)
			}
			if !clock.MatchString(a.Time) {
				t.Errorf("time %q is not hh:mm AM/PM", a.Time)
			}
			if !strings.Contains(a.AIExplanation, complaintID) {
				t.Errorf("explanation %q should name the complaint", a.AIExplanation)
			}
			if i > 0 && alerts[i-1].Rank > a.Rank {
				t.Errorf("alerts not ordered by rank at %d", i)
			}
		}
	})

	t.Run("FilterHidesBand", func(t *testing.T) {
		band := alerts[0].Priority
		sel := map[string]bool{}
		for b := range bands {
			sel[b] = b != band
		}
		call(t, cfg, http.MethodPut, "/dashboard/filter", map[string]any{"bands": sel}, http.StatusOK)
		for _, a := range alertsFor(t, cfg, complaintID) {
			if a.Priority == band {
				t.Errorf("alert %s in hidden band %s still visible", a.ID, band)
			}
		}
		call(t, cfg, http.MethodPut, "/dashboard/filter", map[string]any{"bands": bands}, http.StatusOK)
	})

	t.Run("ForwardArchives", func(t *testing.T) {
		var fwd struct {
			RecordID string `json:"recordId"`
		}
		body := call(t, cfg, http.MethodPost, "/dashboard/alerts/"+alerts[0].ID+"/forward", nil, http.StatusCreated)
		if err := json.Unmarshal(body, &fwd); err != nil || fwd.RecordID == "" {
			t.Fatalf("unexpected forward response %s", string(body))
		}

		var rec map[string]any
		json.Unmarshal(call(t, cfg, http.MethodGet, "/api/bank-alerts/"+fwd.RecordID, nil, http.StatusOK), &rec)
		if rec["status"] != "Pending" || rec["complaint_id"] != complaintID {
			t.Errorf("unexpected bank alert %v", rec)
		}

		deadline := time.Now().Add(10 * time.Second)
		for len(alertsFor(t, cfg, complaintID)) > 0 {
			if time.Now().After(deadline) {
				t.Fatal("forwarded complaint still live after 10s")
			}
			time.Sleep(100 * time.Millisecond)
		}

		var history []map[string]any
		json.Unmarshal(call(t, cfg, http.MethodGet, "/api/history", nil, http.StatusOK), &history)
		found := false
		for _, h := range history {
			if h["complaint_id"] == complaintID {
				found = h["status"] == "Forwarded to Bank"
			}
		}
		if !found {
			t.Errorf("complaint %s not archived as forwarded", complaintID)
		}
	})
}

func TestMapEndpoints(t *testing.T) {
	cfg := getTestConfig(t)

	call(t, cfg, http.MethodPut, "/dashboard/map/mode", map[string]string{"mode": "heat"}, http.StatusOK)
	var view struct {
		Mode     string `json:"mode"`
		Gradient []any  `json:"gradient"`
	}
	json.Unmarshal(call(t, cfg, http.MethodGet, "/dashboard/map", nil, http.StatusOK), &view)
	if view.Mode != "heat" || len(view.Gradient) != 5 {
		t.Errorf("unexpected heat view %+v", view)
	}
	call(t, cfg, http.MethodPut, "/dashboard/map/mode", map[string]string{"mode": "markers"}, http.StatusOK)

	var vp struct {
		Zoom int `json:"zoom"`
	}
	json.Unmarshal(call(t, cfg, http.MethodPost, "/dashboard/map/zoom", map[string]string{"action": "reset"}, http.StatusOK), &vp)
	if vp.Zoom != 7 {
		t.Errorf("expected default zoom 7, got %d", vp.Zoom)
	}

	call(t, cfg, http.MethodGet, "/dashboard/map/geojson", nil, http.StatusOK)
}
