// Package dashboard combines live alerts, the severity filter, the map
// renderer and escalation into one control panel session.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/filter"
	"github.com/opensource-finance/cipher/internal/geoview"
	"github.com/opensource-finance/cipher/internal/livesync"
)

// ErrAlertNotFound is returned when forwarding an alert that is not live.
var ErrAlertNotFound = errors.New("alert not found")

// ErrNotRunning is returned once the live channel has been closed.
var ErrNotRunning = errors.New("live sync is not running")

// Forwarder escalates an alert and returns the record id.
type Forwarder interface {
	Forward(ctx context.Context, a domain.Alert) (string, error)
}

// State is the dashboard as the control panel shows it.
type State struct {
	Sync      livesync.Snapshot       `json:"sync"`
	Selection domain.FilterSelection  `json:"selection"`
	Counts    map[domain.Severity]int `json:"counts"`
	Visible   []domain.Alert          `json:"visible"`
	Mode      geoview.Mode            `json:"mode"`
	Viewport  geoview.Viewport        `json:"viewport"`
}

// Session owns the filter selection and keeps the map in step with the
// live alert set.
type Session struct {
	manager   *livesync.Manager
	renderer  *geoview.Renderer
	forwarder Forwarder
	logger    *slog.Logger

	mu        sync.RWMutex
	selection domain.FilterSelection

	// renderMu orders redraws; drawn is the snapshot version on the map.
	renderMu sync.Mutex
	drawn    uint64

	stop func()
}

// New creates a session showing every band.
func New(m *livesync.Manager, r *geoview.Renderer, f Forwarder, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		manager:   m,
		renderer:  r,
		forwarder: f,
		logger:    logger,
		selection: domain.DefaultSelection(),
	}
	s.stop = m.Subscribe(s.render)
	return s
}

// Watch changes which complaints are followed.
func (s *Session) Watch(ctx context.Context, selector string) error {
	return s.manager.Watch(ctx, selector)
}

// Refresh re-reads the complaint source once.
func (s *Session) Refresh(ctx context.Context) error {
	return s.manager.Refresh(ctx)
}

// Selector returns the active complaint selector.
func (s *Session) Selector() string {
	return s.manager.Selector()
}

// Selection returns a copy of the filter selection.
func (s *Session) Selection() domain.FilterSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection.Clone()
}

// SetFilter replaces the filter selection and redraws the map. Unknown band
// names are ignored.
func (s *Session) SetFilter(sel domain.FilterSelection) domain.FilterSelection {
	next := make(domain.FilterSelection, len(sel))
	for band, on := range sel {
		if band.Known() {
			next[band] = on
		}
	}

	s.mu.Lock()
	s.selection = next
	s.mu.Unlock()

	if snap, ok := s.manager.Snapshot(); ok {
		s.render(snap)
	}
	return next.Clone()
}

// Alerts returns the live alerts that pass the filter.
func (s *Session) Alerts() ([]domain.Alert, error) {
	snap, ok := s.manager.Snapshot()
	if !ok {
		return nil, ErrNotRunning
	}
	return s.visible(snap), nil
}

// State returns the full dashboard state.
func (s *Session) State() (State, error) {
	snap, ok := s.manager.Snapshot()
	if !ok {
		return State{}, ErrNotRunning
	}
	return State{
		Sync:      snap,
		Selection: s.Selection(),
		Counts:    filter.Counts(snap.Alerts),
		Visible:   s.visible(snap),
		Mode:      s.renderer.Mode(),
		Viewport:  s.renderer.Viewport(),
	}, nil
}

// Renderer returns the map renderer.
func (s *Session) Renderer() *geoview.Renderer {
	return s.renderer
}

// Forward escalates a visible alert by id. Alerts hidden by the filter
// cannot be forwarded.
func (s *Session) Forward(ctx context.Context, alertID string) (string, error) {
	snap, ok := s.manager.Snapshot()
	if !ok {
		return "", ErrNotRunning
	}
	for _, a := range s.visible(snap) {
		if a.ID == alertID {
			return s.forwarder.Forward(ctx, a)
		}
	}
	return "", ErrAlertNotFound
}

// Close stops following the live channel.
func (s *Session) Close() {
	if s.stop != nil {
		s.stop()
	}
}

// render draws snap unless a newer snapshot is already on the map. The
// same version is redrawn so filter changes apply.
func (s *Session) render(snap livesync.Snapshot) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	if snap.Version < s.drawn {
		return
	}
	s.drawn = snap.Version
	s.renderer.SetAlerts(s.visible(snap))
}

func (s *Session) visible(snap livesync.Snapshot) []domain.Alert {
	s.mu.RLock()
	sel := s.selection
	s.mu.RUnlock()

	return filter.Apply(snap.Alerts, sel, func(a domain.Alert) {
		s.logger.Warn("alert with unknown priority hidden",
			"alert_id", a.ID,
			"priority", string(a.Priority),
		)
	})
}
