package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/cipher/internal/dashboard"
	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/livesync"
	"github.com/opensource-finance/cipher/internal/repository"
	"github.com/opensource-finance/cipher/internal/rules"
	"github.com/opensource-finance/cipher/internal/source"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	store   *source.Store
	session *dashboard.Session
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, store *source.Store, session *dashboard.Session, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		store:   store,
		session: session,
		version: version,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Health reports service health. Backing services that fail to answer mark
// the service degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	body := map[string]string{
		"status":  status,
		"version": h.version,
	}
	if h.session != nil {
		if st, err := h.session.State(); err == nil {
			body["sync"] = st.Sync.Status.String()
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// Ready reports whether the live channel is running.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.session != nil {
		if _, err := h.session.State(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// ListComplaints returns the live complaint documents, newest first, in
// the backend's wire shape.
func (h *Handler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	docs, err := h.repo.ListComplaints(r.Context())
	if err != nil {
		h.fail(w, "list complaints", err)
		return
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, document(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// SubmitComplaint stores a new complaint document.
func (h *Handler) SubmitComplaint(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON request body"})
		return
	}

	id, err := h.store.Submit(r.Context(), fields)
	if err != nil {
		h.fail(w, "submit complaint", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"complaint_id": id})
}

// GetComplaint returns one live complaint, normalized.
func (h *Handler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	c, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get complaint", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateStatusRequest is the request body for PATCH /api/complaints/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateComplaintStatus changes a live complaint's status.
func (h *Handler) UpdateComplaintStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON request body"})
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "status is required"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.UpdateStatus(r.Context(), id, req.Status); err != nil {
		h.fail(w, "update complaint status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"complaint_id": id,
		"status":       req.Status,
	})
}

// ArchiveComplaint moves a complaint to history. Archiving twice succeeds.
func (h *Handler) ArchiveComplaint(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	id := chi.URLParam(r, "id")
	err := h.store.Archive(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "complaint archived", "complaint_id": id})
	case errors.Is(err, source.ErrAlreadyArchived):
		writeJSON(w, http.StatusOK, map[string]string{"message": "complaint already archived", "complaint_id": id})
	default:
		h.fail(w, "archive complaint", err)
	}
}

// ListHistory returns archived complaint documents.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}

	docs, err := h.store.History(r.Context())
	if err != nil {
		h.fail(w, "list history", err)
		return
	}

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		doc := document(&d.RawComplaint)
		doc["resolution_date"] = d.ResolutionDate.Format(time.RFC3339)
		doc["resolution_notes"] = d.ResolutionNotes
		out = append(out, doc)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBankAlert returns one escalated alert record.
func (h *Handler) GetBankAlert(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "repository not available"})
		return
	}

	rec, err := h.repo.GetBankAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get bank alert", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil || h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "complaint store not available"})
		return false
	}
	return true
}

// fail logs err and writes the matching error response.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(op+" failed", "error", err)
	} else {
		slog.Debug(op+" rejected", "error", err, "status", status)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var transport *domain.TransportError
	var malformed *domain.MalformedDataError

	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, dashboard.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidInput), errors.Is(err, rules.ErrInvalidSelector):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNotRunning), errors.Is(err, livesync.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// document flattens a stored complaint into the backend's wire shape.
// The envelope status wins over the submitted one.
func document(raw *domain.RawComplaint) map[string]any {
	doc := make(map[string]any, len(raw.Fields)+3)
	for k, v := range raw.Fields {
		doc[k] = v
	}
	doc["id"] = raw.ID
	if !raw.CreatedAt.IsZero() {
		doc["createdAt"] = raw.CreatedAt.Format(time.RFC3339Nano)
	}
	if raw.Status != "" {
		doc["status"] = raw.Status
	}
	return doc
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
