package processor

import (
	"context"
	"strings"
	"testing"
	"time"

	"carscout/internal/domain"
	"carscout/internal/storage"

	"go.uber.org/zap"
)

func newTestProcessor(store storage.Store, cache SeenCache) *Processor {
	p := New(store, cache, nil, zap.NewNop())
	p.now = func() time.Time { return scoreNow }
	return p
}

func testSettings() *domain.Settings {
	return &domain.Settings{
		EnabledSites:      []string{"carzone"},
		MaxPagesPerSite:   10,
		ApprovedLocations: []string{"Leinster"},
		Weights:           domain.DefaultWeights(),
	}
}

func rawListing(url string, price int) domain.RawListing {
	return domain.RawListing{
		SourceSite: "carzone",
		URL:        url,
		Title:      "Toyota Corolla 2019 1.6 Petrol",
		Price:      intp(price),
		Location:   "Dublin, Leinster",
		Make:       "Toyota",
		Model:      "Corolla",
		Year:       intp(2019),
		Mileage:    intp(45000),
		FuelType:   "Petrol",
		SeenAt:     scoreNow,
	}
}

func TestProcessBatchValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.RawListing)
	}{
		{"price below floor", func(r *domain.RawListing) { r.Price = intp(100) }},
		{"price above ceiling", func(r *domain.RawListing) { r.Price = intp(250000) }},
		{"price missing", func(r *domain.RawListing) { r.Price = nil }},
		{"title too short", func(r *domain.RawListing) { r.Title = "Corolla" }},
		{"relative url", func(r *domain.RawListing) { r.URL = "/used-cars/1" }},
		{"bad scheme", func(r *domain.RawListing) { r.URL = "ftp://example.com/car" }},
		{"year too old", func(r *domain.RawListing) { r.Year = intp(1985) }},
		{"year in future", func(r *domain.RawListing) { r.Year = intp(scoreNow.Year() + 2) }},
		{"mileage too high", func(r *domain.RawListing) { r.Mileage = intp(600000) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemStore()
			p := newTestProcessor(store, nil)

			raw := rawListing("https://www.carzone.ie/used-cars/1", 15000)
			tt.mutate(&raw)

			stats, err := p.ProcessBatch(context.Background(), []domain.RawListing{raw}, testSettings())
			if err != nil {
				t.Fatalf("ProcessBatch: %v", err)
			}
			if stats.Rejected != 1 || stats.New != 0 {
				t.Errorf("stats = %+v; want 1 rejected, 0 new", stats)
			}
			if n, _ := store.CountListings(context.Background()); n != 0 {
				t.Errorf("rejected listing reached storage (%d rows)", n)
			}
		})
	}
}

func TestProcessBatchBlacklist(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)

	settings := testSettings()
	settings.Blacklist = []string{"crashed"}

	raw := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	raw.Title = "Toyota Corolla 2019 crashed repairable"

	stats, err := p.ProcessBatch(context.Background(), []domain.RawListing{raw}, settings)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if stats.Rejected != 1 {
		t.Errorf("blacklisted title not rejected: %+v", stats)
	}
}

func TestProcessBatchInsertsNew(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)

	raw := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	stats, err := p.ProcessBatch(context.Background(), []domain.RawListing{raw}, testSettings())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if stats.New != 1 {
		t.Fatalf("stats = %+v; want 1 new", stats)
	}

	stored, err := store.GetListingByURL(context.Background(), "carzone", raw.URL)
	if err != nil {
		t.Fatalf("listing not stored: %v", err)
	}
	if stored.DealScore < 0 || stored.DealScore > 100 {
		t.Errorf("deal score %f outside [0, 100]", stored.DealScore)
	}
	if !stored.IsActive {
		t.Error("new listing should be active")
	}
	if !stored.FirstSeen.Equal(scoreNow) || !stored.LastSeen.Equal(scoreNow) {
		t.Errorf("timestamps not set: first=%v last=%v", stored.FirstSeen, stored.LastSeen)
	}
}

func TestProcessBatchUpdatesAndDetectsPriceDrop(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)
	ctx := context.Background()

	first := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	if _, err := p.ProcessBatch(ctx, []domain.RawListing{first, rawListing("https://www.carzone.ie/used-cars/other", 9000)}, testSettings()); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	dropped := rawListing("https://www.carzone.ie/used-cars/1", 14000)
	stats, err := p.ProcessBatch(ctx, []domain.RawListing{dropped}, testSettings())
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if stats.Updated != 1 || stats.New != 0 {
		t.Fatalf("stats = %+v; want 1 updated", stats)
	}

	stored, _ := store.GetListingByURL(ctx, "carzone", dropped.URL)
	if !stored.PriceDropped {
		t.Error("price drop not detected")
	}
	if stored.PriceDropAmount != 1000 {
		t.Errorf("price drop amount = %d; want 1000", stored.PriceDropAmount)
	}
	if stored.PreviousPrice == nil || *stored.PreviousPrice != 15000 {
		t.Errorf("previous price = %v; want 15000", stored.PreviousPrice)
	}
	if stored.Price == nil || *stored.Price != 14000 {
		t.Errorf("price = %v; want 14000", stored.Price)
	}
}

func TestProcessBatchFuzzyDeduplicates(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)
	ctx := context.Background()

	a := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	a.Title = "2019 Toyota Corolla 1.6 Petrol"
	b := rawListing("https://www.carzone.ie/used-cars/2", 15000)
	b.Title = "2019 Toyota Corolla 1.6 Petrol "

	stats, err := p.ProcessBatch(ctx, []domain.RawListing{a, b}, testSettings())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if stats.New != 1 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v; want 1 new, 1 duplicate", stats)
	}
	if n, _ := store.CountListings(ctx); n != 1 {
		t.Errorf("stored %d listings; want 1", n)
	}
}

func TestProcessBatchFuzzyRespectsPriceBand(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)
	ctx := context.Background()

	a := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	// Same title but far outside the ±10% price band: a different car.
	b := rawListing("https://www.carzone.ie/used-cars/2", 9000)
	b.Title = a.Title

	stats, err := p.ProcessBatch(ctx, []domain.RawListing{a, b}, testSettings())
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if stats.New != 2 || stats.Duplicates != 0 {
		t.Errorf("stats = %+v; want 2 new, 0 duplicates", stats)
	}
}

func TestProcessBatchInvalidWeightsKeepsStoredScore(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)
	ctx := context.Background()

	raw := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	if _, err := p.ProcessBatch(ctx, []domain.RawListing{raw}, testSettings()); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	before, _ := store.GetListingByURL(ctx, "carzone", raw.URL)

	bad := testSettings()
	bad.Weights.PriceVsMarket = 90 // sum now 165

	stats, err := p.ProcessBatch(ctx, []domain.RawListing{rawListing(raw.URL, 14000)}, bad)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(stats.Warnings) == 0 {
		t.Error("expected a config warning for invalid weights")
	}
	if !strings.Contains(stats.Warnings[0], "sum to 100") {
		t.Errorf("warning %q does not mention the weight invariant", stats.Warnings[0])
	}

	after, _ := store.GetListingByURL(ctx, "carzone", raw.URL)
	if after.DealScore != before.DealScore {
		t.Errorf("score changed under invalid weights: %f -> %f", before.DealScore, after.DealScore)
	}
	if stats.Updated != 1 {
		t.Errorf("the update itself should still happen: %+v", stats)
	}
}

func TestFinishSiteMarksUnseenInactive(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)
	ctx := context.Background()

	keep := rawListing("https://www.carzone.ie/used-cars/keep", 15000)
	gone := rawListing("https://www.carzone.ie/used-cars/gone", 9000)
	if _, err := p.ProcessBatch(ctx, []domain.RawListing{keep, gone}, testSettings()); err != nil {
		t.Fatalf("seed batch: %v", err)
	}

	removed, err := p.FinishSite(ctx, "carzone", []string{keep.URL})
	if err != nil {
		t.Fatalf("FinishSite: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d; want 1", removed)
	}

	l, _ := store.GetListingByURL(ctx, "carzone", gone.URL)
	if l.IsActive {
		t.Error("unseen listing still active")
	}
	l, _ = store.GetListingByURL(ctx, "carzone", keep.URL)
	if !l.IsActive {
		t.Error("seen listing flipped inactive")
	}
}

func TestFinishSiteEmptyRunRemovesAll(t *testing.T) {
	store := storage.NewMemStore()
	p := newTestProcessor(store, nil)
	ctx := context.Background()

	a := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	b := rawListing("https://www.carzone.ie/used-cars/2", 9000)
	b.Title = "Ford Focus 2017 1.5 Diesel"
	if _, err := p.ProcessBatch(ctx, []domain.RawListing{a, b}, testSettings()); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	other := &domain.Listing{
		SourceSite: "donedeal",
		URL:        "https://www.donedeal.ie/cars/3",
		Title:      "Opel Astra 2016 1.4 Petrol",
		Price:      intp(8500),
		IsActive:   true,
		FirstSeen:  scoreNow,
		LastSeen:   scoreNow,
	}
	if err := store.InsertListing(ctx, other); err != nil {
		t.Fatalf("seed other site: %v", err)
	}

	// A completed pass that saw nothing flips the whole site.
	removed, err := p.FinishSite(ctx, "carzone", nil)
	if err != nil {
		t.Fatalf("FinishSite: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d; want 2", removed)
	}
	for _, url := range []string{a.URL, b.URL} {
		l, _ := store.GetListingByURL(ctx, "carzone", url)
		if l.IsActive {
			t.Errorf("%s still active after an empty run", url)
		}
	}
	l, _ := store.GetListingByURL(ctx, "donedeal", other.URL)
	if !l.IsActive {
		t.Error("other site's listing was flipped")
	}
}

type fakeCache struct {
	entries map[string]int64
	marked  int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string]int64)} }

func (f *fakeCache) Lookup(_ context.Context, site, url string) (int64, bool) {
	id, ok := f.entries[site+"|"+url]
	return id, ok
}

func (f *fakeCache) MarkSeen(_ context.Context, site, url string, id int64) error {
	f.entries[site+"|"+url] = id
	f.marked++
	return nil
}

func TestProcessBatchCachesFuzzyDuplicates(t *testing.T) {
	store := storage.NewMemStore()
	cache := newFakeCache()
	p := newTestProcessor(store, cache)
	ctx := context.Background()

	a := rawListing("https://www.carzone.ie/used-cars/1", 15000)
	b := rawListing("https://www.carzone.ie/used-cars/2", 15000)

	if _, err := p.ProcessBatch(ctx, []domain.RawListing{a, b}, testSettings()); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if cache.marked != 1 {
		t.Fatalf("cache writes = %d; want 1", cache.marked)
	}

	// The second run resolves the known duplicate from the cache.
	stats, err := p.ProcessBatch(ctx, []domain.RawListing{b}, testSettings())
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if stats.Duplicates != 1 {
		t.Errorf("stats = %+v; want 1 duplicate from cache", stats)
	}
}
