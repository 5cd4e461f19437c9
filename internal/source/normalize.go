// Package source adapts complaint stores into normalized domain.Complaint
// snapshots.
package source

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/spf13/cast"
)

// Field names producers use for the complaint identifier and timestamp,
// in order of preference.
var (
	idKeys        = []string{"complaint_id", "complaintId", "id"}
	timestampKeys = []string{"timestamp", "time_of_complaint", "complaint_timestamp", "createdAt", "created_at"}
)

// Normalizer maps heterogeneous complaint documents onto domain.Complaint.
type Normalizer struct {
	// Now supplies the fallback timestamp for documents without one.
	Now func() time.Time

	// Location interprets timestamps that carry no zone offset.
	Location *time.Location

	Logger *slog.Logger
}

// NewNormalizer returns a normalizer using the wall clock.
func NewNormalizer(loc *time.Location, logger *slog.Logger) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{Now: time.Now, Location: loc, Logger: logger}
}

// Normalize converts one raw document. The document id is the identifier
// of last resort.
func (n *Normalizer) Normalize(raw domain.RawComplaint) (domain.Complaint, error) {
	f := raw.Fields
	if f == nil {
		f = map[string]any{}
	}

	c := domain.Complaint{
		ComplaintID: firstString(f, idKeys...),

		VictimState:      str(f, "victim_state"),
		VictimDistrict:   str(f, "victim_district"),
		VictimTaluka:     str(f, "victim_taluka"),
		VictimVillage:    str(f, "victim_village"),
		VictimPincode:    str(f, "victim_pincode"),
		VictimRuralUrban: str(f, "victim_rural_urban"),
		Channel:          str(f, "channel"),
		FraudType:        str(f, "fraud_type"),
		BankName:         str(f, "bank_name"),
		DeviceType:       str(f, "device_type"),
		LinkedFraudRing:  str(f, "linked_fraud_ring"),
		Status:           raw.Status,
	}
	if c.ComplaintID == "" {
		c.ComplaintID = raw.ID
	}
	// The envelope status tracks updates; the field is what was submitted.
	if c.Status == "" {
		c.Status = firstString(f, "status")
	}
	if c.Status == "" {
		c.Status = domain.StatusOpen
	}

	var err error
	floats := []struct {
		key string
		dst *float64
	}{
		{"victim_lat", &c.VictimLat},
		{"victim_lon", &c.VictimLon},
		{"reported_loss_amount", &c.ReportedLossAmount},
		{"urgency_score", &c.UrgencyScore},
	}
	for _, fl := range floats {
		if *fl.dst, err = toFloat(f[fl.key]); err != nil {
			return domain.Complaint{}, &domain.MalformedDataError{Field: fl.key, Reason: err.Error()}
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"num_transactions", &c.NumTransactions},
		{"is_otp_shared", &c.IsOTPShared},
		{"clicked_malicious_link", &c.ClickedMaliciousLink},
		{"account_age_months", &c.AccountAgeMonths},
		{"prior_complaints_same_upi", &c.PriorComplaintsSameUPI},
	}
	for _, in := range ints {
		if *in.dst, err = toInt(f[in.key]); err != nil {
			return domain.Complaint{}, &domain.MalformedDataError{Field: in.key, Reason: err.Error()}
		}
	}

	ts, key, err := n.timestamp(f, raw.CreatedAt)
	if err != nil {
		return domain.Complaint{}, &domain.MalformedDataError{Field: key, Reason: err.Error()}
	}
	c.Timestamp = ts

	if err := c.Validate(); err != nil {
		return domain.Complaint{}, err
	}
	return c, nil
}

// timestamp resolves the canonical complaint time, falling back to the
// document creation time and finally to Now.
func (n *Normalizer) timestamp(f map[string]any, createdAt time.Time) (time.Time, string, error) {
	for _, key := range timestampKeys {
		v, ok := f[key]
		if !ok || isBlank(v) {
			continue
		}
		t, err := n.toTime(v)
		if err != nil {
			return time.Time{}, key, err
		}
		return t, key, nil
	}

	if !createdAt.IsZero() {
		return createdAt, "", nil
	}

	now := n.Now()
	n.Logger.Debug("complaint has no timestamp, using current time",
		"complaint_id", firstString(f, idKeys...),
		"timestamp", now,
	)
	return now, "", nil
}

func (n *Normalizer) toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case map[string]any:
		// Document-store timestamp objects: {"seconds": ..., "nanoseconds": ...}
		secs, err := cast.ToInt64E(firstValue(x, "seconds", "_seconds"))
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp object: %w", err)
		}
		nanos := cast.ToInt64(firstValue(x, "nanoseconds", "_nanoseconds"))
		return time.Unix(secs, nanos), nil
	case float64, int, int64:
		// Numeric timestamps are epoch milliseconds.
		ms, err := cast.ToInt64E(x)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms), nil
	default:
		return cast.ToTimeInDefaultLocationE(strings.TrimSpace(cast.ToString(v)), n.Location)
	}
}

func firstValue(f map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isBlank(v) {
			return v
		}
	}
	return nil
}

func firstString(f map[string]any, keys ...string) string {
	v := firstValue(f, keys...)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

func str(f map[string]any, key string) string {
	return firstString(f, key)
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// toFloat treats blanks as zero and accepts numeric strings.
func toFloat(v any) (float64, error) {
	if isBlank(v) {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	return cast.ToFloat64E(v)
}

// toInt treats blanks as zero and accepts "12.0" style strings and booleans.
func toInt(v any) (int, error) {
	if isBlank(v) {
		return 0, nil
	}
	if i, err := cast.ToIntE(v); err == nil {
		return i, nil
	}
	if b, err := cast.ToBoolE(v); err == nil {
		return cast.ToInt(b), nil
	}
	fl, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int(fl), nil
}
