// Package geoview renders alerts for the map: priority-colored markers or a
// risk heat surface, plus a viewport that follows the alert set.
package geoview

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Mode selects how alerts are drawn. Exactly one mode is active.
type Mode string

const (
	ModeMarkers Mode = "markers"
	ModeHeat    Mode = "heat"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeMarkers, ModeHeat:
		return m, nil
	default:
		return "", fmt.Errorf("unknown map mode %q", s)
	}
}

// NeutralColor is used for bands without a dedicated color.
const NeutralColor = "#9CA3AF"

// MarkerColors maps each band to its marker color.
var MarkerColors = map[domain.Severity]string{
	domain.SeverityVeryCritical: "#DC2626",
	domain.SeverityCritical:     "#F97316",
	domain.SeverityHigh:         "#FACC15",
	domain.SeverityMedium:       "#A3E635",
	domain.SeverityLow:          "#22C55E",
	domain.SeverityUnbanded:     NeutralColor,
}

// ColorFor returns the marker color of a band.
func ColorFor(s domain.Severity) string {
	if c, ok := MarkerColors[s]; ok {
		return c
	}
	return NeutralColor
}

// Popup is the detail shown for a marker.
type Popup struct {
	Location  string       `json:"location"`
	ATMID     domain.ATMID `json:"atmId"`
	ATMName   string       `json:"atmName"`
	RiskClass string       `json:"riskClass"`
	RiskScore float64      `json:"riskScore"`
}

// Marker is one alert pin.
type Marker struct {
	AlertID  string          `json:"alertId"`
	Position domain.Position `json:"position"`
	Priority domain.Severity `json:"priority"`
	Color    string          `json:"color"`
	Popup    Popup           `json:"popup"`
}

// View is what the map shows. Markers is set in marker mode, Heat and
// Gradient in heat mode.
//
// Bounds is the projected area on screen and stops at the Web Mercator
// limit of ±85.0511°. Fitted is the geographic box of the last auto-fit and
// holds every alert of that set, polar ones included.
type View struct {
	Mode     Mode        `json:"mode"`
	Viewport Viewport    `json:"viewport"`
	Bounds   Bounds      `json:"bounds"`
	Fitted   *Bounds     `json:"fitted,omitempty"`
	Markers  []Marker    `json:"markers,omitempty"`
	Heat     []HeatPoint `json:"heat,omitempty"`
	Gradient Gradient    `json:"gradient,omitempty"`
}

// Renderer holds map state for one dashboard.
type Renderer struct {
	mu       sync.RWMutex
	width    int
	height   int
	mode     Mode
	viewport Viewport
	alerts   []domain.Alert
	setKey   string
	fitted   *Bounds
}

// NewRenderer creates a renderer for a width x height pixel map in marker
// mode at the default viewport.
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 768
	}
	return &Renderer{
		width:    width,
		height:   height,
		mode:     ModeMarkers,
		viewport: DefaultViewport(),
	}
}

// SetAlerts replaces the displayed alert set. When the set differs from the
// previous one and is not empty, the viewport is fitted to it. An empty set
// leaves the viewport where it is. It reports whether the viewport moved.
func (r *Renderer) SetAlerts(alerts []domain.Alert) bool {
	key := setKey(alerts)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append([]domain.Alert(nil), alerts...)
	if key == r.setKey {
		return false
	}
	r.setKey = key

	if len(alerts) == 0 {
		return false
	}
	b := pad(extent(alerts))
	r.fitted = &b
	r.viewport = fit(b, r.width, r.height)
	return true
}

// SetMode switches between marker and heat rendering.
func (r *Renderer) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = m
	return nil
}

// Mode returns the active mode.
func (r *Renderer) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// ZoomIn zooms one level in, up to MaxZoom.
func (r *Renderer) ZoomIn() Viewport {
	return r.zoomBy(1)
}

// ZoomOut zooms one level out, down to MinZoom.
func (r *Renderer) ZoomOut() Viewport {
	return r.zoomBy(-1)
}

// Reset returns to the default viewport.
func (r *Renderer) Reset() Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = DefaultViewport()
	return r.viewport
}

func (r *Renderer) zoomBy(delta int) Viewport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport.Zoom = clampZoom(r.viewport.Zoom + delta)
	return r.viewport
}

// Viewport returns the current viewport.
func (r *Renderer) Viewport() Viewport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewport
}

// View renders the current alert set in the active mode.
func (r *Renderer) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v := View{
		Mode:     r.mode,
		Viewport: r.viewport,
		Bounds:   visible(r.viewport, r.width, r.height),
	}
	if r.fitted != nil {
		f := *r.fitted
		v.Fitted = &f
	}

	switch r.mode {
	case ModeHeat:
		v.Heat = heatPoints(r.alerts)
		v.Gradient = HeatGradient
	default:
		v.Markers = make([]Marker, 0, len(r.alerts))
		for _, a := range r.alerts {
			v.Markers = append(v.Markers, markerFor(a))
		}
	}
	return v
}

// Surface rasterizes the heat density over the current viewport.
func (r *Renderer) Surface(cols, rows int) (Surface, error) {
	if cols <= 0 || rows <= 0 || cols > 512 || rows > 512 {
		return Surface{}, fmt.Errorf("surface size %dx%d out of range", cols, rows)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return rasterize(heatPoints(r.alerts), r.viewport, r.width, r.height, cols, rows), nil
}

// GeoJSON encodes the current alert set as a FeatureCollection of points.
func (r *Renderer) GeoJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(r.alerts))}
	for _, a := range r.alerts {
		m := markerFor(a)
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       a.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{a.Position.Lon, a.Position.Lat}),
			Properties: map[string]any{
				"complaintId": a.ComplaintID,
				"priority":    string(a.Priority),
				"color":       m.Color,
				"location":    a.Location,
				"atmId":       string(a.ATMID),
				"atmName":     a.ATMName,
				"riskClass":   a.RiskClass,
				"riskScore":   a.RiskScore,
				"intensity":   Intensity(a.RiskScoreNorm),
			},
		})
	}
	return json.Marshal(&fc)
}

func markerFor(a domain.Alert) Marker {
	return Marker{
		AlertID:  a.ID,
		Position: a.Position,
		Priority: a.Priority,
		Color:    ColorFor(a.Priority),
		Popup: Popup{
			Location:  a.Location,
			ATMID:     a.ATMID,
			ATMName:   a.ATMName,
			RiskClass: a.RiskClass,
			RiskScore: a.RiskScore,
		},
	}
}

// setKey identifies an alert set by ids and positions, independent of order.
func setKey(alerts []domain.Alert) string {
	parts := make([]string, 0, len(alerts))
	for _, a := range alerts {
		parts = append(parts, a.ID+"@"+
			strconv.FormatFloat(a.Position.Lat, 'f', -1, 64)+","+
			strconv.FormatFloat(a.Position.Lon, 'f', -1, 64))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
