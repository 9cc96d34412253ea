package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"carscout/internal/domain"
)

// MemStore is an in-memory Store used by tests and by local development
// without a database. All methods are safe for concurrent use.
type MemStore struct {
	mu       sync.Mutex
	nextID   int64
	nextLog  int64
	listings map[int64]*domain.Listing
	logs     map[int64]*domain.ScrapeLog
	settings domain.Settings
}

func NewMemStore() *MemStore {
	return &MemStore{
		nextID:   1,
		nextLog:  1,
		listings: make(map[int64]*domain.Listing),
		logs:     make(map[int64]*domain.ScrapeLog),
		settings: domain.Settings{
			EnabledSites:      []string{"carzone", "donedeal", "adverts"},
			MaxPagesPerSite:   10,
			MinDealScore:      50,
			ApprovedLocations: []string{"Leinster"},
			Weights:           domain.DefaultWeights(),
		},
	}
}

// SetSettings replaces the stored settings. Test helper.
func (s *MemStore) SetSettings(st domain.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) GetListingByURL(_ context.Context, site, url string) (*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listings {
		if l.SourceSite == site && l.URL == url {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemStore) InsertListing(_ context.Context, l *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Honour the unique (source_site, url) constraint with upsert semantics.
	for id, existing := range s.listings {
		if existing.SourceSite == l.SourceSite && existing.URL == l.URL {
			cp := *l
			cp.ID = id
			s.listings[id] = &cp
			l.ID = id
			return nil
		}
	}
	cp := *l
	cp.ID = s.nextID
	s.nextID++
	s.listings[cp.ID] = &cp
	l.ID = cp.ID
	return nil
}

func (s *MemStore) UpdateListing(_ context.Context, l *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *l
	s.listings[l.ID] = &cp
	return nil
}

func (s *MemStore) ActiveListings(context.Context) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.IsActive {
			out = append(out, *l)
		}
	}
	sortListings(out)
	return out, nil
}

func (s *MemStore) ListingsInPriceBand(_ context.Context, minPrice, maxPrice int) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.IsActive && l.Price != nil && *l.Price >= minPrice && *l.Price <= maxPrice {
			out = append(out, *l)
		}
	}
	sortListings(out)
	return out, nil
}

// sortListings orders by first_seen then id, the deterministic candidate
// order the fuzzy-duplicate tie-break depends on.
func sortListings(ls []domain.Listing) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].FirstSeen.Equal(ls[j].FirstSeen) {
			return ls[i].FirstSeen.Before(ls[j].FirstSeen)
		}
		return ls[i].ID < ls[j].ID
	})
}

func (s *MemStore) MarkUnseenInactive(_ context.Context, site string, seenURLs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(seenURLs))
	for _, u := range seenURLs {
		seen[u] = struct{}{}
	}
	removed := 0
	for _, l := range s.listings {
		if l.SourceSite != site || !l.IsActive {
			continue
		}
		if _, ok := seen[l.URL]; !ok {
			l.IsActive = false
			removed++
		}
	}
	return removed, nil
}

func (s *MemStore) CountListings(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings), nil
}

func (s *MemStore) CountListingsSince(_ context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.listings {
		if !l.FirstSeen.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) ListingsBySource(context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, l := range s.listings {
		out[l.SourceSite]++
	}
	return out, nil
}

func (s *MemStore) CreateScrapeLog(_ context.Context, log *domain.ScrapeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *log
	cp.ID = s.nextLog
	s.nextLog++
	s.logs[cp.ID] = &cp
	log.ID = cp.ID
	return nil
}

func (s *MemStore) UpdateScrapeLog(_ context.Context, log *domain.ScrapeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[log.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *log
	s.logs[log.ID] = &cp
	return nil
}

func (s *MemStore) sortedLogs() []domain.ScrapeLog {
	out := make([]domain.ScrapeLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemStore) RecentScrapeLogs(_ context.Context, limit int) ([]domain.ScrapeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.sortedLogs()
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *MemStore) ScrapeLogsPage(_ context.Context, page, perPage int) ([]domain.ScrapeLog, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.sortedLogs()
	total := len(logs)
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return logs[start:end], total, nil
}

func (s *MemStore) ScrapeLogsSince(_ context.Context, since time.Time) ([]domain.ScrapeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScrapeLog
	for _, l := range s.sortedLogs() {
		if !l.StartedAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemStore) DeleteScrapeLogs(_ context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.logs[id]; ok {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DeleteFailedScrapeLogs(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, l := range s.logs {
		if l.Status == domain.ScrapeFailed {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) LoadSettings(context.Context) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.settings
	return &cp, nil
}

func (s *MemStore) Cleanup(_ context.Context, cutoff time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logsDeleted := 0
	for id, l := range s.logs {
		if l.StartedAt.Before(cutoff) {
			delete(s.logs, id)
			logsDeleted++
		}
	}
	listingsDeleted := 0
	for id, l := range s.listings {
		if !l.IsActive && l.LastSeen.Before(cutoff) {
			delete(s.listings, id)
			listingsDeleted++
		}
	}
	return logsDeleted, listingsDeleted, nil
}
