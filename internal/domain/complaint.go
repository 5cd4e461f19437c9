package domain

import (
	"time"
)

// StatusOpen is the status assigned to complaints that arrive without one.
const StatusOpen = "Open"

// StatusForwarded is the status of a complaint moved to the history partition.
const StatusForwarded = "Forwarded to Bank"

// Complaint is an incident report submitted by or on behalf of a fraud victim.
// Complaints are normalized by the source adapter before they reach the core.
type Complaint struct {
	ComplaintID string    `json:"complaint_id"`
	Timestamp   time.Time `json:"timestamp"`

	// Victim location
	VictimState      string  `json:"victim_state,omitempty"`
	VictimDistrict   string  `json:"victim_district,omitempty"`
	VictimTaluka     string  `json:"victim_taluka,omitempty"`
	VictimVillage    string  `json:"victim_village,omitempty"`
	VictimPincode    string  `json:"victim_pincode,omitempty"`
	VictimRuralUrban string  `json:"victim_rural_urban,omitempty"`
	VictimLat        float64 `json:"victim_lat"`
	VictimLon        float64 `json:"victim_lon"`

	Channel            string  `json:"channel,omitempty"`
	FraudType          string  `json:"fraud_type,omitempty"`
	BankName           string  `json:"bank_name,omitempty"`
	ReportedLossAmount float64 `json:"reported_loss_amount"`
	DeviceType         string  `json:"device_type,omitempty"`
	UrgencyScore       float64 `json:"urgency_score"`

	// Model features; flags are 0/1 integers on the wire
	NumTransactions        int    `json:"num_transactions"`
	IsOTPShared            int    `json:"is_otp_shared"`
	ClickedMaliciousLink   int    `json:"clicked_malicious_link"`
	AccountAgeMonths       int    `json:"account_age_months"`
	PriorComplaintsSameUPI int    `json:"prior_complaints_same_upi"`
	LinkedFraudRing        string `json:"linked_fraud_ring,omitempty"`

	Status string `json:"status"`
}

// Validate checks the value ranges a complaint must satisfy.
func (c Complaint) Validate() error {
	if c.ComplaintID == "" {
		return &MalformedDataError{Field: "complaint_id", Reason: "missing"}
	}
	if c.ReportedLossAmount < 0 {
		return &MalformedDataError{Field: "reported_loss_amount", Reason: "negative"}
	}
	if c.UrgencyScore < 0 || c.UrgencyScore > 1 {
		return &MalformedDataError{Field: "urgency_score", Reason: "outside [0,1]"}
	}
	return nil
}

// Same reports whether two complaints carry identical content.
// Timestamps are compared as instants.
func (c Complaint) Same(o Complaint) bool {
	a, b := c, o
	a.Timestamp, b.Timestamp = time.Time{}, time.Time{}
	return a == b && c.Timestamp.Equal(o.Timestamp)
}

// RawComplaint is a complaint document as held by the backing store,
// before field names are normalized.
type RawComplaint struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Status    string         `json:"status"`
	Fields    map[string]any `json:"fields"`
}

// ArchivedComplaint is a complaint moved to the history partition.
type ArchivedComplaint struct {
	RawComplaint
	ResolutionDate  time.Time `json:"resolutionDate"`
	ResolutionNotes string    `json:"resolutionNotes"`
}
