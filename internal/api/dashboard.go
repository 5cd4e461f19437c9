package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/geoview"
)

// Default heat surface size when the query does not set one.
const (
	defaultSurfaceCols = 64
	defaultSurfaceRows = 48
)

// WatchRequest is the request body for PUT /dashboard/watch.
type WatchRequest struct {
	Selector string `json:"selector"`
}

// FilterRequest is the request body for PUT /dashboard/filter. Bands left
// out are hidden.
type FilterRequest struct {
	Bands map[domain.Severity]bool `json:"bands"`
}

// ModeRequest is the request body for PUT /dashboard/map/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// ZoomRequest is the request body for POST /dashboard/map/zoom.
type ZoomRequest struct {
	Action string `json:"action"` // in, out, reset
}

// ForwardResponse is the response for POST /dashboard/alerts/{id}/forward.
type ForwardResponse struct {
	RecordID string `json:"recordId"`
	AlertID  string `json:"alertId"`
}

// DashboardState returns the live state, filter and map position.
func (h *Handler) DashboardState(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	st, err := h.session.State()
	if err != nil {
		h.fail(w, "dashboard state", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Watch replaces the complaint selector and resubscribes.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}

	var req WatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON request body"})
		return
	}

	if err := h.session.Watch(r.Context(), req.Selector); err != nil {
		h.fail(w, "watch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selector": h.session.Selector()})
}

// Refresh re-reads the complaint source once.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	if err := h.session.Refresh(r.Context()); err != nil {
		h.fail(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "refresh queued"})
}

// ListAlerts returns the alerts that pass the filter.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	alerts, err := h.session.Alerts()
	if err != nil {
		h.fail(w, "list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// SetFilter replaces the severity filter.
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}

	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON request body"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bands": h.session.SetFilter(req.Bands)})
}

// ForwardAlert escalates a live alert to the bank.
func (h *Handler) ForwardAlert(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}

	alertID := chi.URLParam(r, "id")
	recordID, err := h.session.Forward(r.Context(), alertID)
	if err != nil {
		h.fail(w, "forward alert", err)
		return
	}
	writeJSON(w, http.StatusCreated, ForwardResponse{RecordID: recordID, AlertID: alertID})
}

// MapView returns the map in the active mode.
func (h *Handler) MapView(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	writeJSON(w, http.StatusOK, h.session.Renderer().View())
}

// MapGeoJSON returns the visible alerts as a GeoJSON FeatureCollection.
func (h *Handler) MapGeoJSON(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}

	data, err := h.session.Renderer().GeoJSON()
	if err != nil {
		h.fail(w, "encode geojson", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// MapSurface returns the heat density grid. cols and rows are optional
// query parameters.
func (h *Handler) MapSurface(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}

	cols, err := intParam(r, "cols", defaultSurfaceCols)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "cols must be an integer"})
		return
	}
	rows, err := intParam(r, "rows", defaultSurfaceRows)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "rows must be an integer"})
		return
	}

	s, err := h.session.Renderer().Surface(cols, rows)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SetMapMode switches between markers and heat.
func (h *Handler) SetMapMode(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}

	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON request body"})
		return
	}
	mode, err := geoview.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	renderer := h.session.Renderer()
	if err := renderer.SetMode(mode); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(renderer.Mode())})
}

// Zoom applies a manual zoom or reset.
func (h *Handler) Zoom(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}

	var req ZoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON request body"})
		return
	}

	renderer := h.session.Renderer()
	var v geoview.Viewport
	switch req.Action {
	case "in":
		v = renderer.ZoomIn()
	case "out":
		v = renderer.ZoomOut()
	case "reset":
		v = renderer.Reset()
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "action must be one of in, out, reset"})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) requireSession(w http.ResponseWriter) bool {
	if h.session == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "dashboard not available"})
		return false
	}
	return true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
