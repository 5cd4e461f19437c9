// Package filter narrows alert lists by severity band.
package filter

import (
	"log/slog"

	"github.com/opensource-finance/cipher/internal/domain"
)

// Apply returns the alerts whose priority is selected, in their original
// order. Alerts with an unknown priority are never shown; diag is called
// for each of them. A nil diag logs a warning.
func Apply(alerts []domain.Alert, sel domain.FilterSelection, diag func(domain.Alert)) []domain.Alert {
	if diag == nil {
		diag = logUnknown
	}

	out := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		if !a.Priority.Known() {
			diag(a)
			continue
		}
		if sel.Includes(a.Priority) {
			out = append(out, a)
		}
	}
	return out
}

// Counts tallies alerts per known band. Every band is present in the result.
func Counts(alerts []domain.Alert) map[domain.Severity]int {
	counts := make(map[domain.Severity]int, len(domain.Severities()))
	for _, s := range domain.Severities() {
		counts[s] = 0
	}
	for _, a := range alerts {
		if a.Priority.Known() {
			counts[a.Priority]++
		}
	}
	return counts
}

func logUnknown(a domain.Alert) {
	slog.Warn("alert has unknown priority",
		"alert_id", a.ID,
		"priority", string(a.Priority),
	)
}
