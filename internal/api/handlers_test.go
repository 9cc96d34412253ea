package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carscout/internal/config"
	"carscout/internal/coordinator"
	"carscout/internal/domain"
	"carscout/internal/fetch"
	"carscout/internal/monitor"
	"carscout/internal/processor"
	"carscout/internal/sites"
	"carscout/internal/storage"

	"go.uber.org/zap"
)

// stubFetcher answers every probe with a fixed error, or a 200 page.
type stubFetcher struct {
	err error
}

func (f *stubFetcher) Fetch(context.Context, string, string) (*fetch.PageResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.PageResult{StatusCode: 200, Body: "ok"}, nil
}

func newTestServer(t *testing.T, store *storage.MemStore, fetcher fetch.Fetcher) *Server {
	t.Helper()
	logger := zap.NewNop()
	registry := sites.NewRegistry()
	proc := processor.New(store, nil, nil, logger)
	coord := coordinator.New(registry, store, proc, fetcher, nil, nil, logger,
		coordinator.Options{Workers: 1, MaxConsecutiveErrors: 3})
	mon := monitor.New(registry, store, fetcher, logger)
	return NewServer(&config.Config{ServerPort: "8080"}, coord, mon, store, logger)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var payload map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q", method, path, w.Body.String())
		}
	}
	return w, payload
}

func TestStatusEndpoint(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{})

	w, payload := doJSON(t, s.Handler(), http.MethodGet, "/api/scrape/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if payload["is_running"] != false {
		t.Errorf("is_running = %v; want false", payload["is_running"])
	}
	if _, ok := payload["recent_logs"]; !ok {
		t.Error("response missing recent_logs")
	}
}

func TestLogsPagination(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{})

	base := time.Now().UTC()
	for i := 0; i < 25; i++ {
		log := &domain.ScrapeLog{
			SiteName:  "carzone",
			Status:    domain.ScrapeCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateScrapeLog(context.Background(), log); err != nil {
			t.Fatalf("seed log: %v", err)
		}
	}

	w, payload := doJSON(t, s.Handler(), http.MethodGet, "/api/scrape/logs?page=2&per_page=20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	logs := payload["logs"].([]interface{})
	if len(logs) != 5 {
		t.Errorf("page 2 has %d logs; want 5", len(logs))
	}
	pagination := payload["pagination"].(map[string]interface{})
	if pagination["total"].(float64) != 25 {
		t.Errorf("total = %v; want 25", pagination["total"])
	}
}

func TestTestSiteUnknown(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{})

	w, payload := doJSON(t, s.Handler(), http.MethodPost, "/api/scrape/test/nosuchsite", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
	if payload["error"] == nil {
		t.Error("404 response carries no error message")
	}
}

func TestTestSiteFetchErrorInBody(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{err: fmt.Errorf("connection refused")})

	w, payload := doJSON(t, s.Handler(), http.MethodPost, "/api/scrape/test/donedeal", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 with error in body", w.Code)
	}
	if payload["status"] != "error" {
		t.Errorf("status field = %v; want error", payload["status"])
	}
}

func TestHealthUnavailableWhenUnhealthy(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{err: fmt.Errorf("connection refused")})

	w, payload := doJSON(t, s.Handler(), http.MethodGet, "/api/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d; want 503", w.Code)
	}
	if payload["overall_status"] != "unhealthy" {
		t.Errorf("overall_status = %v; want unhealthy", payload["overall_status"])
	}
}

func TestHealthOKWhenBlocked(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{err: domain.ErrBlocked})

	w, payload := doJSON(t, s.Handler(), http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 for degraded", w.Code)
	}
	if payload["overall_status"] != "degraded" {
		t.Errorf("overall_status = %v; want degraded", payload["overall_status"])
	}
}

func TestDeleteLogsRequiresIDs(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{})

	w, _ := doJSON(t, s.Handler(), http.MethodDelete, "/api/logs", `{"ids": []}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty ids: status = %d; want 400", w.Code)
	}

	w, _ = doJSON(t, s.Handler(), http.MethodDelete, "/api/logs", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d; want 400", w.Code)
	}
}

func TestDeleteLogs(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{})

	log := &domain.ScrapeLog{SiteName: "carzone", Status: domain.ScrapeFailed, StartedAt: time.Now().UTC()}
	if err := store.CreateScrapeLog(context.Background(), log); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	w, payload := doJSON(t, s.Handler(), http.MethodDelete, "/api/logs",
		fmt.Sprintf(`{"ids": [%d, 999]}`, log.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if payload["deleted"].(float64) != 1 {
		t.Errorf("deleted = %v; want 1 (unknown ids are ignored)", payload["deleted"])
	}
}

func TestDeleteFailedLogs(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{})
	ctx := context.Background()

	failed := &domain.ScrapeLog{SiteName: "carzone", Status: domain.ScrapeFailed, StartedAt: time.Now().UTC()}
	ok := &domain.ScrapeLog{SiteName: "donedeal", Status: domain.ScrapeCompleted, StartedAt: time.Now().UTC()}
	if err := store.CreateScrapeLog(ctx, failed); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateScrapeLog(ctx, ok); err != nil {
		t.Fatal(err)
	}

	w, payload := doJSON(t, s.Handler(), http.MethodDelete, "/api/logs/failed", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if payload["deleted"].(float64) != 1 {
		t.Errorf("deleted = %v; want 1", payload["deleted"])
	}
	if logs, _ := store.RecentScrapeLogs(ctx, 10); len(logs) != 1 || logs[0].Status != domain.ScrapeCompleted {
		t.Errorf("remaining logs = %v; want only the completed one", logs)
	}
}

func TestCleanupEndpoint(t *testing.T) {
	store := storage.NewMemStore()
	s := newTestServer(t, store, &stubFetcher{})

	old := &domain.ScrapeLog{
		SiteName:  "carzone",
		Status:    domain.ScrapeCompleted,
		StartedAt: time.Now().UTC().AddDate(0, 0, -60),
	}
	if err := store.CreateScrapeLog(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	w, payload := doJSON(t, s.Handler(), http.MethodPost, "/api/cleanup", `{"days_old": 30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if payload["logs_deleted"].(float64) != 1 {
		t.Errorf("logs_deleted = %v; want 1", payload["logs_deleted"])
	}
}
