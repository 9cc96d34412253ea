package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"carscout/internal/config"
	"carscout/internal/coordinator"
	"carscout/internal/monitor"
	"carscout/internal/storage"

	"go.uber.org/zap"
)

// Server holds the dependencies for the HTTP surface that triggers and
// inspects scrape runs.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	coord      *coordinator.Coordinator
	monitor    *monitor.Monitor
	store      storage.Store
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, coord *coordinator.Coordinator, mon *monitor.Monitor, store storage.Store, logger *zap.Logger) *Server {
	s := &Server{
		config:  cfg,
		coord:   coord,
		monitor: mon,
		store:   store,
		logger:  logger,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }
