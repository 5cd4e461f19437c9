// Package derive joins complaints with their risk predictions to produce
// display-ready alerts.
package derive

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/shopspring/decimal"
)

// TimeLayout is the 12-hour clock layout alerts are displayed with.
const TimeLayout = "03:04 PM"

// DefaultZone is the zone alert times are shown in when none is configured.
const DefaultZone = "Asia/Kolkata"

// ist is used when the zone database is unavailable.
var ist = time.FixedZone("IST", 5*3600+30*60)

var hundred = decimal.NewFromInt(100)

// Engine derives alerts. The zero value formats times in UTC.
type Engine struct {
	Location *time.Location
}

// NewEngine returns an engine displaying times in the named zone. An
// unknown zone falls back to India Standard Time.
func NewEngine(zone string) *Engine {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = ist
	}
	return &Engine{Location: loc}
}

// Derive builds one alert per prediction, ordered by rank and then ATM id.
// Inputs are not modified. Predictions without an ATM id or with an
// out-of-range position are rejected.
func (e *Engine) Derive(c domain.Complaint, preds []domain.RiskPrediction) ([]domain.Alert, error) {
	loc := e.Location
	if loc == nil {
		loc = time.UTC
	}

	alerts := make([]domain.Alert, 0, len(preds))
	for _, p := range preds {
		if strings.TrimSpace(string(p.ATMID)) == "" {
			return nil, &domain.MalformedDataError{Field: "atm_id", Reason: "missing"}
		}
		pos := domain.Position{Lat: p.Lat, Lon: p.Lon}
		if !pos.Valid() {
			return nil, &domain.MalformedDataError{
				Field:  "position",
				Reason: fmt.Sprintf("atm %s at (%v, %v) is out of range", p.ATMID, p.Lat, p.Lon),
			}
		}

		alerts = append(alerts, domain.Alert{
			ID:              domain.AlertID(c.ComplaintID, p.ATMID),
			ComplaintID:     c.ComplaintID,
			ATMID:           p.ATMID,
			ATMName:         p.ATMName,
			Priority:        domain.BandFor(p.RiskScoreNorm),
			RiskClass:       p.RiskClass,
			RiskScore:       p.RiskScore,
			RiskScoreNorm:   p.RiskScoreNorm,
			Rank:            p.Rank,
			Location:        p.Place,
			Time:            c.Timestamp.In(loc).Format(TimeLayout),
			Amount:          p.EstimatedLoss,
			ComplaintsCount: p.TotalComplaints,
			Position:        pos,
			Status:          c.Status,
			ConfidenceScore: Confidence(p.RiskScoreNorm),
			AIExplanation:   Explanation(p.Rank, c.ComplaintID),
			FraudType:       p.FraudType,
			InvolvedBank:    p.BankName,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Rank != alerts[j].Rank {
			return alerts[i].Rank < alerts[j].Rank
		}
		return alerts[i].ATMID < alerts[j].ATMID
	})
	return alerts, nil
}

// Confidence renders a normalized score as a percentage with one decimal,
// rounding half away from zero.
func Confidence(norm float64) string {
	return decimal.NewFromFloat(norm).Mul(hundred).StringFixed(1)
}

// Explanation is the human-readable reason attached to an alert.
func Explanation(rank int, complaintID string) string {
	return fmt.Sprintf("Model ranked this location #%d for complaint %s.", rank, complaintID)
}
