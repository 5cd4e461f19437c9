package filter

import (
	"testing"

	"github.com/opensource-finance/cipher/internal/domain"
)

func alerts() []domain.Alert {
	return []domain.Alert{
		{ID: "a", Priority: domain.SeverityLow},
		{ID: "b", Priority: domain.SeverityVeryCritical},
		{ID: "c", Priority: domain.SeverityMedium},
		{ID: "d", Priority: domain.SeverityUnbanded},
		{ID: "e", Priority: "Bogus"},
		{ID: "f", Priority: domain.SeverityVeryCritical},
	}
}

func ids(as []domain.Alert) string {
	s := ""
	for _, a := range as {
		s += a.ID
	}
	return s
}

func TestApply(t *testing.T) {
	t.Run("DefaultSelection", func(t *testing.T) {
		var unknown []string
		got := Apply(alerts(), domain.DefaultSelection(), func(a domain.Alert) { unknown = append(unknown, a.ID) })

		if ids(got) != "abcdf" {
			t.Errorf("expected abcdf, got %s", ids(got))
		}
		if len(unknown) != 1 || unknown[0] != "e" {
			t.Errorf("expected e to be reported, got %v", unknown)
		}
	})

	t.Run("SingleBand", func(t *testing.T) {
		sel := domain.FilterSelection{domain.SeverityVeryCritical: true}
		got := Apply(alerts(), sel, func(domain.Alert) {})
		if ids(got) != "bf" {
			t.Errorf("expected bf, got %s", ids(got))
		}
	})

	t.Run("NothingSelected", func(t *testing.T) {
		got := Apply(alerts(), domain.FilterSelection{}, func(domain.Alert) {})
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %v", got)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		sel := domain.FilterSelection{domain.SeverityLow: true, domain.SeverityMedium: true}
		once := Apply(alerts(), sel, func(domain.Alert) {})
		twice := Apply(once, sel, func(domain.Alert) {})
		if ids(once) != ids(twice) {
			t.Errorf("expected %s, got %s", ids(once), ids(twice))
		}
	})

	t.Run("DoesNotModifyInput", func(t *testing.T) {
		in := alerts()
		Apply(in, domain.FilterSelection{}, func(domain.Alert) {})
		if ids(in) != "abcdef" {
			t.Errorf("input changed: %s", ids(in))
		}
	})

	t.Run("NilDiagnostic", func(t *testing.T) {
		got := Apply(alerts(), domain.DefaultSelection(), nil)
		if len(got) != 5 {
			t.Errorf("expected 5 alerts, got %d", len(got))
		}
	})
}

func TestCounts(t *testing.T) {
	counts := Counts(alerts())

	if len(counts) != len(domain.Severities()) {
		t.Errorf("expected every band, got %d entries", len(counts))
	}
	if counts[domain.SeverityVeryCritical] != 2 {
		t.Errorf("expected 2 very critical, got %d", counts[domain.SeverityVeryCritical])
	}
	if counts[domain.SeverityHigh] != 0 {
		t.Errorf("expected 0 high, got %d", counts[domain.SeverityHigh])
	}
	if _, ok := counts["Bogus"]; ok {
		t.Error("unknown band should not be counted")
	}
}
