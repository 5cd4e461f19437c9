package domain

import (
	"errors"
	"fmt"
)

// ErrStaleGeneration marks a message or result produced for a superseded
// subscription generation or derivation cycle. It never leaves the manager.
var ErrStaleGeneration = errors.New("stale generation")

// TransportError is a network or non-2xx failure talking to an external
// collaborator (backend API or backing store).
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedDataError reports a record with a missing or invalid field.
type MalformedDataError struct {
	Field  string
	Reason string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("malformed %s: %s", e.Field, e.Reason)
}

// ArchiveError is a failed best-effort archive after an escalation.
// It is logged and never returned to callers of Forward.
type ArchiveError struct {
	ComplaintID string
	Err         error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive complaint %s: %v", e.ComplaintID, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }
