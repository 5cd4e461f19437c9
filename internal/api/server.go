package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/cipher/internal/dashboard"
	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/source"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates the API server. store and session may be nil, in which
// case their routes answer 503.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, store *source.Store, session *dashboard.Session, version string) *Server {
	handler := NewHandler(repo, cache, store, session, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Backing store
	router.Route("/api", func(r chi.Router) {
		r.Get("/complaints", handler.ListComplaints)
		r.Post("/complaints", handler.SubmitComplaint)
		r.Get("/complaints/{id}", handler.GetComplaint)
		r.Patch("/complaints/{id}/status", handler.UpdateComplaintStatus)
		r.Post("/complaints/{id}/archive", handler.ArchiveComplaint)
		r.Get("/history", handler.ListHistory)
		r.Get("/bank-alerts/{id}", handler.GetBankAlert)
	})

	// Control panel
	router.Route("/dashboard", func(r chi.Router) {
		r.Get("/state", handler.DashboardState)
		r.Put("/watch", handler.Watch)
		r.Post("/refresh", handler.Refresh)
		r.Get("/alerts", handler.ListAlerts)
		r.Post("/alerts/{id}/forward", handler.ForwardAlert)
		r.Put("/filter", handler.SetFilter)

		r.Get("/map", handler.MapView)
		r.Get("/map/geojson", handler.MapGeoJSON)
		r.Get("/map/surface", handler.MapSurface)
		r.Put("/map/mode", handler.SetMapMode)
		r.Post("/map/zoom", handler.Zoom)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
