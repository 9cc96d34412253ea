package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"carscout/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Start(r.Context()); err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			s.respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("could not start run", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not start scrape run")
		return
	}
	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "scrape run started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.coord.Stop()
	s.respondWithJSON(w, http.StatusOK, map[string]string{"message": "stop requested"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	isRunning, inFlight, recent, err := s.coord.Status(r.Context())
	if err != nil {
		s.logger.Error("could not read status", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not read status")
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"is_running":      isRunning,
		"running_scrapes": inFlight,
		"recent_logs":     recent,
		"last_summary":    s.coord.LastSummary(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)
	if perPage > 100 {
		perPage = 100
	}

	logs, total, err := s.store.ScrapeLogsPage(r.Context(), page, perPage)
	if err != nil {
		s.logger.Error("could not list logs", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not list logs")
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"logs": logs,
		"pagination": map[string]int{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

func (s *Server) handleTestSite(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	result, err := s.coord.TestSite(r.Context(), site)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSite) {
			s.respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Warn("site test failed", zap.String("site", site), zap.Error(err))
		s.respondWithJSON(w, http.StatusOK, map[string]string{
			"site":   site,
			"status": "error",
			"error":  err.Error(),
		})
		return
	}
	s.respondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.monitor.Health(r.Context())
	if err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "health check failed")
		return
	}
	code := http.StatusOK
	if report.OverallStatus == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.respondWithJSON(w, code, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 7)
	stats, err := s.monitor.Stats(r.Context(), days)
	if err != nil {
		s.logger.Error("could not aggregate stats", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not aggregate stats")
		return
	}
	s.respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DaysOld int `json:"days_old"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	report, err := s.monitor.Cleanup(r.Context(), req.DaysOld)
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	s.respondWithJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		s.respondWithError(w, http.StatusBadRequest, "ids list is required")
		return
	}
	n, err := s.store.DeleteScrapeLogs(r.Context(), req.IDs)
	if err != nil {
		s.logger.Error("could not delete logs", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not delete logs")
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleDeleteFailedLogs(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.DeleteFailedScrapeLogs(r.Context())
	if err != nil {
		s.logger.Error("could not delete failed logs", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "could not delete failed logs")
		return
	}
	s.respondWithJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// --- Helper Functions ---

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
