package domain

import (
	"time"
)

// Severity is an ordered categorical risk level.
type Severity string

// Severity bands, most severe first.
const (
	SeverityVeryCritical Severity = "Very Critical"
	SeverityCritical     Severity = "Critical"
	SeverityHigh         Severity = "High"
	SeverityMedium       Severity = "Medium"
	SeverityLow          Severity = "Low"

	// SeverityUnbanded holds scores below the lowest band threshold.
	SeverityUnbanded Severity = "Unbanded"
)

// severityBands maps lower score thresholds (inclusive) to bands.
// Ordered from highest threshold to lowest.
var severityBands = []struct {
	Severity Severity
	Lower    float64
}{
	{SeverityVeryCritical, 0.9},
	{SeverityCritical, 0.8},
	{SeverityHigh, 0.7},
	{SeverityMedium, 0.6},
	{SeverityLow, 0.5},
}

// BandFor classifies a normalized risk score.
func BandFor(score float64) Severity {
	for _, b := range severityBands {
		if score >= b.Lower {
			return b.Severity
		}
	}
	return SeverityUnbanded
}

// Severities returns every band, most severe first.
func Severities() []Severity {
	out := make([]Severity, 0, len(severityBands)+1)
	for _, b := range severityBands {
		out = append(out, b.Severity)
	}
	return append(out, SeverityUnbanded)
}

// Known reports whether s is one of the defined bands.
func (s Severity) Known() bool {
	return s.Order() >= 0
}

// Order returns the position of s in Severities, or -1 when unknown.
func (s Severity) Order() int {
	for i, b := range Severities() {
		if b == s {
			return i
		}
	}
	return -1
}

// FilterSelection says which bands are visible.
type FilterSelection map[Severity]bool

// DefaultSelection includes every band.
func DefaultSelection() FilterSelection {
	sel := make(FilterSelection, len(severityBands)+1)
	for _, s := range Severities() {
		sel[s] = true
	}
	return sel
}

// Includes reports whether alerts of band s pass the selection.
func (f FilterSelection) Includes(s Severity) bool {
	return f[s]
}

// Clone returns an independent copy.
func (f FilterSelection) Clone() FilterSelection {
	out := make(FilterSelection, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Position is a WGS84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is inside the WGS84 ranges.
func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Alert is the display-ready join of a complaint and one risk prediction.
type Alert struct {
	ID              string   `json:"alertId"`
	ComplaintID     string   `json:"complaintId"`
	ATMID           ATMID    `json:"atmId"`
	ATMName         string   `json:"atmName"`
	Priority        Severity `json:"priority"`
	RiskClass       string   `json:"riskClass"`
	RiskScore       float64  `json:"riskScore"`
	RiskScoreNorm   float64  `json:"riskScoreNorm"`
	Rank            int      `json:"rank"`
	Location        string   `json:"location"`
	Time            string   `json:"time"`
	Amount          float64  `json:"amount"`
	ComplaintsCount int      `json:"complaintsCount"`
	Position        Position `json:"position"`
	Status          string   `json:"status"`
	ConfidenceScore string   `json:"confidenceScore"`
	AIExplanation   string   `json:"aiExplanation"`
	FraudType       string   `json:"fraudType"`
	InvolvedBank    string   `json:"involvedBank"`
}

// AlertID joins a complaint and an ATM into an alert identifier.
func AlertID(complaintID string, atmID ATMID) string {
	return complaintID + "-" + string(atmID)
}

// Bank alert record defaults.
const (
	BankAlertStatusPending = "Pending"
	DefaultForwardedBy     = "Control Panel"
)

// BankAlertRecord is an alert escalated to the bank layer. Records are
// append-only.
type BankAlertRecord struct {
	ID string `json:"id"`

	// ATM information
	AlertID     string  `json:"alert_id"`
	ATMID       ATMID   `json:"atm_id"`
	ATMName     string  `json:"atm_name"`
	ATMLocation string  `json:"atm_location"`
	ATMLat      float64 `json:"atm_lat"`
	ATMLon      float64 `json:"atm_lon"`

	// Risk assessment
	RiskClass     string   `json:"risk_class"`
	RiskScore     float64  `json:"risk_score"`
	RiskScoreNorm float64  `json:"risk_score_norm"`
	Rank          int      `json:"rank"`
	Priority      Severity `json:"priority"`

	// Complaint details
	ComplaintID     string  `json:"complaint_id"`
	FraudType       string  `json:"fraud_type"`
	BankName        string  `json:"bank_name"`
	EstimatedLoss   float64 `json:"estimated_loss"`
	TotalComplaints int     `json:"total_complaints"`
	AlertStatus     string  `json:"alert_status"`

	AIExplanation   string `json:"ai_explanation"`
	ConfidenceScore string `json:"confidence_score"`

	ForwardedAt time.Time `json:"forwarded_at"`
	ForwardedBy string    `json:"forwarded_by"`
	Status      string    `json:"status"`
	TimeOfAlert string    `json:"time_of_alert"`
}

// NewBankAlertRecord copies an alert into a pending bank alert record.
func NewBankAlertRecord(id string, a Alert, forwardedBy string, forwardedAt time.Time) BankAlertRecord {
	if forwardedBy == "" {
		forwardedBy = DefaultForwardedBy
	}
	return BankAlertRecord{
		ID:              id,
		AlertID:         a.ID,
		ATMID:           a.ATMID,
		ATMName:         a.ATMName,
		ATMLocation:     a.Location,
		ATMLat:          a.Position.Lat,
		ATMLon:          a.Position.Lon,
		RiskClass:       a.RiskClass,
		RiskScore:       a.RiskScore,
		RiskScoreNorm:   a.RiskScoreNorm,
		Rank:            a.Rank,
		Priority:        a.Priority,
		ComplaintID:     a.ComplaintID,
		FraudType:       a.FraudType,
		BankName:        a.InvolvedBank,
		EstimatedLoss:   a.Amount,
		TotalComplaints: a.ComplaintsCount,
		AlertStatus:     a.Status,
		AIExplanation:   a.AIExplanation,
		ConfidenceScore: a.ConfidenceScore,
		ForwardedAt:     forwardedAt,
		ForwardedBy:     forwardedBy,
		Status:          BankAlertStatusPending,
		TimeOfAlert:     a.Time,
	}
}

// Alert rebuilds the alert the record was created from.
func (r BankAlertRecord) Alert() Alert {
	return Alert{
		ID:              r.AlertID,
		ComplaintID:     r.ComplaintID,
		ATMID:           r.ATMID,
		ATMName:         r.ATMName,
		Priority:        r.Priority,
		RiskClass:       r.RiskClass,
		RiskScore:       r.RiskScore,
		RiskScoreNorm:   r.RiskScoreNorm,
		Rank:            r.Rank,
		Location:        r.ATMLocation,
		Time:            r.TimeOfAlert,
		Amount:          r.EstimatedLoss,
		ComplaintsCount: r.TotalComplaints,
		Position:        Position{Lat: r.ATMLat, Lon: r.ATMLon},
		Status:          r.AlertStatus,
		ConfidenceScore: r.ConfidenceScore,
		AIExplanation:   r.AIExplanation,
		FraudType:       r.FraudType,
		InvolvedBank:    r.BankName,
	}
}
