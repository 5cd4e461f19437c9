package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ATMID identifies a physical ATM. The prediction service emits it as a
// JSON number while stored records carry it as a string.
type ATMID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ATMID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ATMID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("atm_id: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = ATMID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ATMID(n.String())
	return nil
}

// String returns the identifier text.
func (id ATMID) String() string { return string(id) }

// RiskPrediction is a scored, ranked candidate location for one complaint.
type RiskPrediction struct {
	ATMID           ATMID   `json:"atm_id"`
	ATMName         string  `json:"atm_name"`
	Place           string  `json:"suspected_atm_place"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	Rank            int     `json:"rank"`
	RiskScore       float64 `json:"risk_score"`
	RiskScoreNorm   float64 `json:"risk_score_norm"`
	RiskClass       string  `json:"risk_class"`
	FraudType       string  `json:"fraud_type"`
	BankName        string  `json:"bank_name"`
	EstimatedLoss   float64 `json:"estimated_loss"`
	TotalComplaints int     `json:"total_complaints"`
	ComplaintID     string  `json:"complaint_id,omitempty"`
}

// PredictionCacheKey returns the cache key for a complaint's predictions.
func PredictionCacheKey(fingerprint string) string {
	return "predictions:" + fingerprint
}
