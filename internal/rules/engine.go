// Package rules provides CEL-based complaint selection.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/cipher/internal/domain"
)

// ErrInvalidSelector wraps every selector compilation failure.
var ErrInvalidSelector = errors.New("invalid selector")

// Engine compiles complaint selector expressions.
type Engine struct {
	env *cel.Env
}

// Selector decides whether a complaint is watched. The zero-expression
// selector matches every complaint.
type Selector struct {
	expr    string
	program cel.Program
}

// NewEngine creates a CEL environment exposing complaint fields.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("complaint", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("complaint_id", cel.StringType),
		cel.Variable("fraud_type", cel.StringType),
		cel.Variable("bank_name", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("victim_state", cel.StringType),
		cel.Variable("victim_district", cel.StringType),
		cel.Variable("reported_loss_amount", cel.DoubleType),
		cel.Variable("urgency_score", cel.DoubleType),
		cel.Variable("num_transactions", cel.IntType),
		// Behavioral flags, 0 or 1
		cel.Variable("is_otp_shared", cel.IntType),
		cel.Variable("clicked_malicious_link", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// Compile builds a selector. An empty expression selects everything.
func (e *Engine) Compile(expr string) (*Selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Selector{}, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelector, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: must return bool, got %v", ErrInvalidSelector, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create selector program: %w", err)
	}

	return &Selector{expr: expr, program: program}, nil
}

// Expression returns the source expression.
func (s *Selector) Expression() string {
	if s == nil {
		return ""
	}
	return s.expr
}

// Match evaluates the selector against one complaint.
func (s *Selector) Match(c domain.Complaint) (bool, error) {
	if s == nil || s.program == nil {
		return true, nil
	}

	out, _, err := s.program.Eval(activation(c))
	if err != nil {
		return false, fmt.Errorf("evaluate selector for %s: %w", c.ComplaintID, err)
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("selector returned %v, not bool", out.Type())
	}
	return bool(b), nil
}

// Select keeps the complaints the selector matches, in order. Complaints
// that fail evaluation are reported to onError and dropped.
func (s *Selector) Select(cs []domain.Complaint, onError func(domain.Complaint, error)) []domain.Complaint {
	if s == nil || s.program == nil {
		return cs
	}

	out := make([]domain.Complaint, 0, len(cs))
	for _, c := range cs {
		ok, err := s.Match(c)
		if err != nil {
			if onError != nil {
				onError(c, err)
			}
			continue
		}
		if ok {
			out = append(out, c)
		}
	}
	return out
}

func activation(c domain.Complaint) map[string]any {
	return map[string]any{
		"complaint": map[string]any{
			"complaint_id":         c.ComplaintID,
			"timestamp":            c.Timestamp,
			"victim_state":         c.VictimState,
			"victim_district":      c.VictimDistrict,
			"victim_taluka":        c.VictimTaluka,
			"victim_village":       c.VictimVillage,
			"victim_pincode":       c.VictimPincode,
			"victim_rural_urban":   c.VictimRuralUrban,
			"victim_lat":           c.VictimLat,
			"victim_lon":           c.VictimLon,
			"channel":              c.Channel,
			"fraud_type":           c.FraudType,
			"bank_name":            c.BankName,
			"reported_loss_amount": c.ReportedLossAmount,
			"device_type":          c.DeviceType,
			"urgency_score":        c.UrgencyScore,
			"linked_fraud_ring":    c.LinkedFraudRing,
			"account_age_months":   int64(c.AccountAgeMonths),
			"status":               c.Status,
		},
		"complaint_id":           c.ComplaintID,
		"fraud_type":             c.FraudType,
		"bank_name":              c.BankName,
		"channel":                c.Channel,
		"status":                 c.Status,
		"victim_state":           c.VictimState,
		"victim_district":        c.VictimDistrict,
		"reported_loss_amount":   c.ReportedLossAmount,
		"urgency_score":          c.UrgencyScore,
		"num_transactions":       int64(c.NumTransactions),
		"is_otp_shared":          int64(c.IsOTPShared),
		"clicked_malicious_link": int64(c.ClickedMaliciousLink),
	}
}
