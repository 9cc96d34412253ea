package monitor

import (
	"context"
	"errors"
	"math"
	"time"

	"carscout/internal/domain"
	"carscout/internal/fetch"
	"carscout/internal/sites"
	"carscout/internal/storage"

	"go.uber.org/zap"
)

// Monitor answers health, statistics and retention questions about the
// scraping system. It never paginates; health probes touch one page per site.
type Monitor struct {
	registry *sites.Registry
	store    storage.Store
	fetcher  fetch.Fetcher
	logger   *zap.Logger
	now      func() time.Time
}

func New(registry *sites.Registry, store storage.Store, fetcher fetch.Fetcher, logger *zap.Logger) *Monitor {
	return &Monitor{
		registry: registry,
		store:    store,
		fetcher:  fetcher,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SiteHealth is the probe outcome for one site.
type SiteHealth struct {
	Accessible     bool   `json:"accessible"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	StatusCode     int    `json:"status_code,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HealthReport aggregates per-site probes. OverallStatus is healthy only
// when every enabled site is accessible.
type HealthReport struct {
	Timestamp     time.Time             `json:"timestamp"`
	Sites         map[string]SiteHealth `json:"sites"`
	OverallStatus string                `json:"overall_status"`
}

// Health issues one lightweight fetch per enabled site.
func (m *Monitor) Health(ctx context.Context) (*HealthReport, error) {
	settings, err := m.store.LoadSettings(ctx)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Timestamp:     m.now(),
		Sites:         make(map[string]SiteHealth),
		OverallStatus: "healthy",
	}

	for _, name := range m.registry.Names() {
		if !settings.SiteEnabled(name) {
			continue
		}
		extractor, err := m.registry.Get(name)
		if err != nil {
			continue
		}

		res, err := m.fetcher.Fetch(ctx, extractor.ListURL(1), "")
		switch {
		case err == nil:
			report.Sites[name] = SiteHealth{
				Accessible:     true,
				ResponseTimeMs: res.Elapsed.Milliseconds(),
				StatusCode:     res.StatusCode,
			}
		case errors.Is(err, domain.ErrBlocked):
			report.Sites[name] = SiteHealth{Accessible: false, Error: err.Error()}
			if report.OverallStatus == "healthy" {
				report.OverallStatus = "degraded"
			}
		default:
			report.Sites[name] = SiteHealth{Accessible: false, Error: err.Error()}
			report.OverallStatus = "unhealthy"
			m.logger.Warn("health probe failed", zap.String("site", name), zap.Error(err))
		}
	}

	return report, nil
}

// StatsReport aggregates scraping activity over a trailing window.
type StatsReport struct {
	PeriodDays        int            `json:"period_days"`
	TotalScrapes      int            `json:"total_scrapes"`
	SuccessfulScrapes int            `json:"successful_scrapes"`
	SuccessRate       float64        `json:"success_rate"`
	TotalListings     int            `json:"total_listings"`
	RecentListings    int            `json:"recent_listings"`
	BySource          map[string]int `json:"by_source"`
	LastUpdated       time.Time      `json:"last_updated"`
}

// Stats aggregates scrape logs and listing counts over the last `days` days.
func (m *Monitor) Stats(ctx context.Context, days int) (*StatsReport, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := m.now().AddDate(0, 0, -days)

	logs, err := m.store.ScrapeLogsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	total, err := m.store.CountListings(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := m.store.CountListingsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	bySource, err := m.store.ListingsBySource(ctx)
	if err != nil {
		return nil, err
	}

	successful := 0
	for _, l := range logs {
		if l.Status == domain.ScrapeCompleted {
			successful++
		}
	}
	rate := 0.0
	if len(logs) > 0 {
		rate = math.Round(float64(successful)/float64(len(logs))*10000) / 100
	}

	return &StatsReport{
		PeriodDays:        days,
		TotalScrapes:      len(logs),
		SuccessfulScrapes: successful,
		SuccessRate:       rate,
		TotalListings:     total,
		RecentListings:    recent,
		BySource:          bySource,
		LastUpdated:       m.now(),
	}, nil
}

// CleanupReport is the outcome of one retention pass.
type CleanupReport struct {
	LogsDeleted     int       `json:"logs_deleted"`
	ListingsDeleted int       `json:"listings_deleted"`
	TotalCleaned    int       `json:"total_cleaned"`
	CutoffDate      time.Time `json:"cutoff_date"`
}

// Cleanup deletes scrape logs and inactive listings older than daysOld. The
// store performs both deletions in one transaction, so a failure leaves no
// partial state.
func (m *Monitor) Cleanup(ctx context.Context, daysOld int) (*CleanupReport, error) {
	if daysOld <= 0 {
		daysOld = 30
	}
	cutoff := m.now().AddDate(0, 0, -daysOld)

	logsDeleted, listingsDeleted, err := m.store.Cleanup(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	m.logger.Info("retention cleanup",
		zap.Int("logs_deleted", logsDeleted),
		zap.Int("listings_deleted", listingsDeleted),
		zap.Time("cutoff", cutoff))

	return &CleanupReport{
		LogsDeleted:     logsDeleted,
		ListingsDeleted: listingsDeleted,
		TotalCleaned:    logsDeleted + listingsDeleted,
		CutoffDate:      cutoff,
	}, nil
}
