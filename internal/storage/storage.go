package storage

import (
	"context"
	"time"

	"carscout/internal/domain"
)

// Store is the persistence contract the pipeline requires. Listings are
// keyed by a surrogate id with a unique constraint on (source_site, url);
// scrape logs carry a monotonic id.
type Store interface {
	// Listings.
	GetListingByURL(ctx context.Context, site, url string) (*domain.Listing, error)
	InsertListing(ctx context.Context, l *domain.Listing) error
	UpdateListing(ctx context.Context, l *domain.Listing) error
	ActiveListings(ctx context.Context) ([]domain.Listing, error)
	ListingsInPriceBand(ctx context.Context, minPrice, maxPrice int) ([]domain.Listing, error)
	MarkUnseenInactive(ctx context.Context, site string, seenURLs []string) (int, error)
	CountListings(ctx context.Context) (int, error)
	CountListingsSince(ctx context.Context, since time.Time) (int, error)
	ListingsBySource(ctx context.Context) (map[string]int, error)

	// Scrape logs.
	CreateScrapeLog(ctx context.Context, log *domain.ScrapeLog) error
	UpdateScrapeLog(ctx context.Context, log *domain.ScrapeLog) error
	RecentScrapeLogs(ctx context.Context, limit int) ([]domain.ScrapeLog, error)
	ScrapeLogsPage(ctx context.Context, page, perPage int) ([]domain.ScrapeLog, int, error)
	ScrapeLogsSince(ctx context.Context, since time.Time) ([]domain.ScrapeLog, error)
	DeleteScrapeLogs(ctx context.Context, ids []int64) (int, error)
	DeleteFailedScrapeLogs(ctx context.Context) (int, error)

	// Settings, consumed read-only by the pipeline.
	LoadSettings(ctx context.Context) (*domain.Settings, error)

	// Cleanup removes scrape logs older than cutoff and inactive listings
	// not seen since cutoff, atomically.
	Cleanup(ctx context.Context, cutoff time.Time) (logsDeleted, listingsDeleted int, err error)

	Ping(ctx context.Context) error
}
