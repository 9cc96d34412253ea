package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Get("/status", s.handleStatus)
			r.Get("/logs", s.handleLogs)
			r.Post("/test/{site}", s.handleTestSite)
		})
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Post("/cleanup", s.handleCleanup)
		r.Delete("/logs", s.handleDeleteLogs)
		r.Delete("/logs/failed", s.handleDeleteFailedLogs)
	})

	return r
}
