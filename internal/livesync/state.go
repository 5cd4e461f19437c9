// Package livesync keeps the live complaint and alert set in step with the
// complaint source.
//
// State changes go through Reduce, a pure function over (State, Message).
// Every subscription epoch carries a generation and every derivation request
// a cycle number; messages tagged with a superseded generation or cycle are
// rejected with domain.ErrStaleGeneration and leave the state untouched.
package livesync

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/cipher/internal/domain"
)

// Status is the lifecycle position of the live channel.
type Status int

const (
	Idle Status = iota
	Subscribing
	Synced
	Error
	Unsubscribed
)

var statusNames = [...]string{"idle", "subscribing", "synced", "error", "unsubscribed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText renders the status name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Message is an input to Reduce.
type Message interface {
	isMessage()
}

// Subscribe starts a new subscription epoch. Generations must increase.
type Subscribe struct {
	Generation uint64
}

// Push carries the full complaint set delivered by the source.
type Push struct {
	Generation uint64
	Complaints []domain.Complaint
}

// Derived carries the outcome of one derivation cycle.
type Derived struct {
	Generation  uint64
	ComplaintID string
	Cycle       uint64
	Alerts      []domain.Alert
	Err         error
}

// SourceFailed reports that the source could not deliver.
type SourceFailed struct {
	Generation uint64
	Err        error
}

// Teardown ends the channel. Nothing is applied afterwards.
type Teardown struct{}

func (Subscribe) isMessage()    {}
func (Push) isMessage()         {}
func (Derived) isMessage()      {}
func (SourceFailed) isMessage() {}
func (Teardown) isMessage()     {}

// Effect is work the reducer asks the caller to perform.
type Effect interface {
	isEffect()
}

// Derive requests predictions and alert derivation for one complaint. The
// result must come back as a Derived message with the same tags.
type Derive struct {
	Generation uint64
	Cycle      uint64
	Complaint  domain.Complaint
}

func (Derive) isEffect() {}

type entry struct {
	complaint domain.Complaint
	alerts    []domain.Alert
	err       error
	cycle     uint64
	seq       uint64
	derived   bool
}

// State is the manager's view of the channel. The zero value is Idle.
// A State is never modified in place by Reduce.
type State struct {
	Status     Status
	Generation uint64
	SourceErr  error

	// Version counts applied messages. It never decreases.
	Version uint64

	entries   map[string]entry
	order     []string
	nextSeq   uint64
	nextCycle uint64
}

// Reduce applies msg to s and returns the new state and the effects to run.
// Stale messages return s unchanged with domain.ErrStaleGeneration.
func Reduce(s State, msg Message) (State, []Effect, error) {
	next, effects, err := reduce(s, msg)
	if err != nil {
		return s, nil, err
	}
	next.Version = s.Version + 1
	return next, effects, nil
}

func reduce(s State, msg Message) (State, []Effect, error) {
	if s.Status == Unsubscribed {
		return s, nil, domain.ErrStaleGeneration
	}

	switch m := msg.(type) {
	case Subscribe:
		if m.Generation <= s.Generation {
			return s, nil, domain.ErrStaleGeneration
		}
		return State{
			Status:     Subscribing,
			Generation: m.Generation,
			entries:    map[string]entry{},
			nextCycle:  s.nextCycle,
		}, nil, nil

	case Push:
		if m.Generation != s.Generation {
			return s, nil, domain.ErrStaleGeneration
		}
		return applyPush(s, m.Complaints)

	case Derived:
		if m.Generation != s.Generation {
			return s, nil, domain.ErrStaleGeneration
		}
		e, ok := s.entries[m.ComplaintID]
		if !ok || e.cycle != m.Cycle {
			return s, nil, domain.ErrStaleGeneration
		}

		next := s.clone()
		if m.Err != nil {
			// Keep the last good alerts on screen.
			e.err = m.Err
		} else {
			e.alerts = append([]domain.Alert(nil), m.Alerts...)
			e.err = nil
			e.derived = true
		}
		next.entries[m.ComplaintID] = e
		return next, nil, nil

	case SourceFailed:
		if m.Generation != s.Generation {
			return s, nil, domain.ErrStaleGeneration
		}
		next := s.clone()
		next.Status = Error
		next.SourceErr = m.Err
		return next, nil, nil

	case Teardown:
		return State{Status: Unsubscribed, Generation: s.Generation}, nil, nil

	default:
		return s, nil, fmt.Errorf("unknown message %T", msg)
	}
}

// applyPush replaces the complaint set. New or changed complaints get a
// fresh derivation cycle; complaints absent from the push are dropped.
func applyPush(s State, complaints []domain.Complaint) (State, []Effect, error) {
	next := s.clone()
	next.Status = Synced
	next.SourceErr = nil
	next.entries = make(map[string]entry, len(complaints))
	next.order = make([]string, 0, len(complaints))

	var effects []Effect
	for _, c := range complaints {
		if _, dup := next.entries[c.ComplaintID]; dup {
			continue
		}

		e, existed := s.entries[c.ComplaintID]
		if !existed {
			e = entry{seq: next.nextSeq}
			next.nextSeq++
		}
		if !existed || !e.complaint.Same(c) {
			next.nextCycle++
			e.cycle = next.nextCycle
			e.complaint = c
			effects = append(effects, Derive{
				Generation: s.Generation,
				Cycle:      e.cycle,
				Complaint:  c,
			})
		}

		next.entries[c.ComplaintID] = e
		next.order = append(next.order, c.ComplaintID)
	}

	sort.SliceStable(next.order, func(i, j int) bool {
		a, b := next.entries[next.order[i]], next.entries[next.order[j]]
		if !a.complaint.Timestamp.Equal(b.complaint.Timestamp) {
			return a.complaint.Timestamp.After(b.complaint.Timestamp)
		}
		return a.seq < b.seq
	})

	return next, effects, nil
}

func (s State) clone() State {
	next := s
	next.entries = make(map[string]entry, len(s.entries))
	for k, v := range s.entries {
		next.entries[k] = v
	}
	next.order = append([]string(nil), s.order...)
	return next
}

// Snapshot is an immutable copy of the channel contents.
type Snapshot struct {
	Status     Status             `json:"status"`
	Generation uint64             `json:"generation"`
	Version    uint64             `json:"version"`
	Complaints []domain.Complaint `json:"complaints"`

	// Alerts follows complaint order, each complaint's alerts by rank.
	Alerts []domain.Alert `json:"alerts"`

	// Pending lists complaints whose first derivation has not finished.
	Pending []string `json:"pending"`

	// Errors holds the last failed derivation per complaint.
	Errors map[string]string `json:"errors"`

	SourceError string `json:"sourceError,omitempty"`
}

// Snapshot copies the state for readers outside the manager.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		Status:     s.Status,
		Generation: s.Generation,
		Version:    s.Version,
		Complaints: make([]domain.Complaint, 0, len(s.order)),
		Alerts:     []domain.Alert{},
		Pending:    []string{},
		Errors:     map[string]string{},
	}
	if s.SourceErr != nil {
		snap.SourceError = s.SourceErr.Error()
	}

	for _, id := range s.order {
		e := s.entries[id]
		snap.Complaints = append(snap.Complaints, e.complaint)
		snap.Alerts = append(snap.Alerts, e.alerts...)
		if !e.derived && e.err == nil {
			snap.Pending = append(snap.Pending, id)
		}
		if e.err != nil {
			snap.Errors[id] = e.err.Error()
		}
	}
	return snap
}

// Alert finds an alert by id in the snapshot.
func (s Snapshot) Alert(id string) (domain.Alert, bool) {
	for _, a := range s.Alerts {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Alert{}, false
}
