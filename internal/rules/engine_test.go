package rules

import (
	"errors"
	"testing"

	"github.com/opensource-finance/cipher/internal/domain"
)

func complaints() []domain.Complaint {
	return []domain.Complaint{
		{ComplaintID: "CMP-1", FraudType: "Phishing", BankName: "SBI", VictimState: "Tamil Nadu", ReportedLossAmount: 25000, UrgencyScore: 0.8, NumTransactions: 3, IsOTPShared: 1},
		{ComplaintID: "CMP-2", FraudType: "Vishing", BankName: "HDFC", VictimState: "Kerala", ReportedLossAmount: 900, UrgencyScore: 0.2},
		{ComplaintID: "CMP-3", FraudType: "Phishing", BankName: "HDFC", VictimState: "Tamil Nadu", ReportedLossAmount: 120000, UrgencyScore: 0.95, Status: "Investigating"},
	}
}

func TestEngineCreation(t *testing.T) {
	if _, err := NewEngine(); err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
}

func TestCompile(t *testing.T) {
	engine, _ := NewEngine()

	t.Run("Valid", func(t *testing.T) {
		sel, err := engine.Compile(`fraud_type == "Phishing"`)
		if err != nil {
			t.Fatalf("compile failed: %v", err)
		}
		if sel.Expression() != `fraud_type == "Phishing"` {
			t.Errorf("unexpected expression %q", sel.Expression())
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		if _, err := engine.Compile("this is not valid CEL !!!"); err == nil {
			t.Error("expected error for invalid CEL expression")
		}
	})

	t.Run("UnknownVariable", func(t *testing.T) {
		if _, err := engine.Compile("amount > 100.0"); err == nil {
			t.Error("expected error for undeclared variable")
		}
	})

	t.Run("NotBool", func(t *testing.T) {
		if _, err := engine.Compile("reported_loss_amount * 2.0"); !errors.Is(err, ErrInvalidSelector) {
			t.Errorf("expected ErrInvalidSelector for non-bool expression, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		sel, err := engine.Compile("   ")
		if err != nil {
			t.Fatalf("compile failed: %v", err)
		}
		ok, err := sel.Match(complaints()[1])
		if err != nil || !ok {
			t.Errorf("empty selector should match, got %v %v", ok, err)
		}
	})
}

func TestSelect(t *testing.T) {
	engine, _ := NewEngine()

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"All", "", []string{"CMP-1", "CMP-2", "CMP-3"}},
		{"ByFraudType", `fraud_type == "Phishing"`, []string{"CMP-1", "CMP-3"}},
		{"ByLoss", "reported_loss_amount >= 10000.0", []string{"CMP-1", "CMP-3"}},
		{"Compound", `bank_name == "HDFC" && urgency_score > 0.5`, []string{"CMP-3"}},
		{"Flags", "is_otp_shared == 1", []string{"CMP-1"}},
		{"ComplaintMap", `complaint.victim_state == "Kerala"`, []string{"CMP-2"}},
		{"Status", `status != ""`, []string{"CMP-3"}},
		{"InList", `victim_state in ["Kerala", "Goa"]`, []string{"CMP-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := engine.Compile(tt.expr)
			if err != nil {
				t.Fatalf("compile failed: %v", err)
			}

			got := sel.Select(complaints(), func(c domain.Complaint, err error) {
				t.Errorf("unexpected evaluation error for %s: %v", c.ComplaintID, err)
			})

			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %d complaints", tt.want, len(got))
			}
			for i, c := range got {
				if c.ComplaintID != tt.want[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.want[i], c.ComplaintID)
				}
			}
		})
	}
}

func TestSelectEvaluationError(t *testing.T) {
	engine, _ := NewEngine()

	sel, err := engine.Compile(`complaint.missing_field == "x"`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	var failed []string
	got := sel.Select(complaints(), func(c domain.Complaint, err error) {
		failed = append(failed, c.ComplaintID)
	})
	if len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
	if len(failed) != 3 {
		t.Errorf("expected 3 evaluation errors, got %d", len(failed))
	}
}

func TestNilSelector(t *testing.T) {
	var sel *Selector
	ok, err := sel.Match(complaints()[0])
	if err != nil || !ok {
		t.Errorf("nil selector should match, got %v %v", ok, err)
	}
	if len(sel.Select(complaints(), nil)) != 3 {
		t.Error("nil selector should keep everything")
	}
}
