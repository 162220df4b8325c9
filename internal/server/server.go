package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/totoufu/archi-input/internal/ports"
	"github.com/totoufu/archi-input/internal/usecase"
)

// Server exposes the collection over a JSON API.
type Server struct {
	repo     ports.WorkRepository
	analyzer *usecase.Analyzer
	images   ports.ImageStore
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewServer wires the API handlers. location controls which day /today
// resolves to; nil means UTC.
func NewServer(repo ports.WorkRepository, analyzer *usecase.Analyzer, images ports.ImageStore, location *time.Location, logger *slog.Logger) *Server {
	if location == nil {
		location = time.UTC
	}
	return &Server{
		repo:     repo,
		analyzer: analyzer,
		images:   images,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/works", func(r chi.Router) {
		r.Post("/", s.handleCreateWork)
		r.Get("/", s.handleListWorks)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetWork)
			r.Delete("/", s.handleDeleteWork)
			r.Post("/notes", s.handleUpdateNotes)
			r.Get("/status", s.handleWorkStatus)
			r.Post("/analyze", s.handleAnalyze)
			r.Post("/deep-dive", s.handleDeepDive)
			r.Post("/image", s.handleUploadImage)
		})
	})

	r.Get("/today", s.handleToday)
	r.Get("/report/stats", s.handleReportStats)
	r.Post("/report", s.handleReport)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
