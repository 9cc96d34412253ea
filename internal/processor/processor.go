package processor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"carscout/internal/domain"
	"carscout/internal/monitoring"
	"carscout/internal/storage"

	"go.uber.org/zap"
)

const (
	minPrice   = 500
	maxPrice   = 200000
	minYear    = 1990
	maxMileage = 500000
	// priceBandRatio widens the fuzzy-duplicate candidate window around the
	// listing's own price.
	priceBandRatio = 0.10
)

// SeenCache is the optional fast-path lookup for URLs already classified as
// fuzzy duplicates of an existing listing.
type SeenCache interface {
	Lookup(ctx context.Context, site, url string) (int64, bool)
	MarkSeen(ctx context.Context, site, url string, id int64) error
}

// Stats is the outcome of processing one site's batch.
type Stats struct {
	Found      int
	New        int
	Updated    int
	Duplicates int
	Rejected   int
	Removed    int
	Warnings   []string
}

// Processor cleans raw listings, deduplicates them against storage and the
// current batch, computes deal scores and upserts the results.
type Processor struct {
	store     storage.Store
	cache     SeenCache
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	threshold float64
	now       func() time.Time
}

func New(store storage.Store, cache SeenCache, metrics *monitoring.Metrics, logger *zap.Logger) *Processor {
	return &Processor{
		store:     store,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		threshold: DefaultSimilarityThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch runs the full pipeline over one site's raw listings. Per-
// listing failures are counted, never propagated; the returned error is
// reserved for storage being unreachable.
func (p *Processor) ProcessBatch(ctx context.Context, raws []domain.RawListing, settings *domain.Settings) (*Stats, error) {
	stats := &Stats{Found: len(raws)}
	if len(raws) == 0 {
		return stats, nil
	}

	weightsOK := settings.Weights.Valid()
	if !weightsOK {
		// Fail closed: existing scores are left untouched and new rows get
		// a zero score rather than one computed from a guessed fix.
		warn := fmt.Sprintf("%v (sum=%d); scores not recomputed", domain.ErrInvalidWeights, settings.Weights.Sum())
		stats.Warnings = append(stats.Warnings, warn)
		p.metrics.IncErrors("config")
		p.logger.Warn("invalid scoring weights", zap.Int("sum", settings.Weights.Sum()))
	}

	corpus, err := p.store.ActiveListings(ctx)
	if err != nil {
		return stats, fmt.Errorf("load active listings: %w", err)
	}
	mc := newMarketContext(corpus, p.now())

	for _, raw := range raws {
		if err := p.validate(raw, settings); err != nil {
			stats.Rejected++
			p.metrics.IncErrors("validation")
			p.logger.Debug("listing rejected", zap.String("url", raw.URL), zap.Error(err))
			continue
		}

		existing, err := p.store.GetListingByURL(ctx, raw.SourceSite, raw.URL)
		switch {
		case err == nil:
			if uerr := p.update(ctx, existing, raw, mc, settings, weightsOK); uerr != nil {
				stats.Rejected++
				p.metrics.IncErrors("storage")
				p.logger.Warn("update failed", zap.String("url", raw.URL), zap.Error(uerr))
				continue
			}
			stats.Updated++
			p.metrics.IncProcessed("updated", 1)

		case err == domain.ErrNotFound:
			dupID, isDup, derr := p.findFuzzyDuplicate(ctx, raw)
			if derr != nil {
				return stats, derr
			}
			if isDup {
				stats.Duplicates++
				p.metrics.IncProcessed("duplicate", 1)
				p.logger.Debug("fuzzy duplicate skipped",
					zap.String("url", raw.URL), zap.Int64("duplicate_of", dupID))
				continue
			}
			if ierr := p.insert(ctx, raw, mc, settings, weightsOK); ierr != nil {
				stats.Rejected++
				p.metrics.IncErrors("storage")
				p.logger.Warn("insert failed", zap.String("url", raw.URL), zap.Error(ierr))
				continue
			}
			stats.New++
			p.metrics.IncProcessed("new", 1)
			// Fresh inserts join the corpus so later batch entries can
			// match them by price band and rarity.
			if raw.Make != "" && raw.Model != "" {
				mc.freq[modelKey(raw.Make, raw.Model)]++
			}

		default:
			return stats, fmt.Errorf("lookup listing: %w", err)
		}
	}

	return stats, nil
}

// FinishSite flips listings of a site that were active but absent from the
// current run to inactive and returns the removed count.
func (p *Processor) FinishSite(ctx context.Context, site string, seenURLs []string) (int, error) {
	removed, err := p.store.MarkUnseenInactive(ctx, site, seenURLs)
	if err != nil {
		return 0, fmt.Errorf("removal accounting for %s: %w", site, err)
	}
	p.metrics.IncProcessed("removed", removed)
	return removed, nil
}

func (p *Processor) validate(raw domain.RawListing, settings *domain.Settings) error {
	title := strings.TrimSpace(raw.Title)
	if len(title) < 10 {
		return fmt.Errorf("title too short: %q", title)
	}
	u, err := url.Parse(raw.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url not absolute http(s): %q", raw.URL)
	}
	if raw.Price == nil {
		return fmt.Errorf("price missing")
	}
	if *raw.Price < minPrice || *raw.Price > maxPrice {
		return fmt.Errorf("price %d outside [%d, %d]", *raw.Price, minPrice, maxPrice)
	}
	if raw.Year != nil {
		maxYear := p.now().Year() + 1
		if *raw.Year < minYear || *raw.Year > maxYear {
			return fmt.Errorf("year %d outside [%d, %d]", *raw.Year, minYear, maxYear)
		}
	}
	if raw.Mileage != nil && (*raw.Mileage < 0 || *raw.Mileage > maxMileage) {
		return fmt.Errorf("mileage %d outside [0, %d]", *raw.Mileage, maxMileage)
	}
	lowerTitle := strings.ToLower(title)
	for _, kw := range settings.Blacklist {
		if kw != "" && strings.Contains(lowerTitle, strings.ToLower(kw)) {
			return fmt.Errorf("title matches blacklisted keyword %q", kw)
		}
	}
	return nil
}

// findFuzzyDuplicate scans active listings in the same price band for a
// normalized title similarity at or above the threshold. Candidates are
// ordered by first_seen then id, so when several tie the earliest-seen
// listing wins deterministically.
func (p *Processor) findFuzzyDuplicate(ctx context.Context, raw domain.RawListing) (int64, bool, error) {
	if p.cache != nil {
		if id, ok := p.cache.Lookup(ctx, raw.SourceSite, raw.URL); ok {
			return id, true, nil
		}
	}

	band := int(float64(*raw.Price) * priceBandRatio)
	candidates, err := p.store.ListingsInPriceBand(ctx, *raw.Price-band, *raw.Price+band)
	if err != nil {
		return 0, false, fmt.Errorf("load duplicate candidates: %w", err)
	}

	for _, cand := range candidates {
		if TitleSimilarity(raw.Title, cand.Title) >= p.threshold {
			if p.cache != nil {
				if cerr := p.cache.MarkSeen(ctx, raw.SourceSite, raw.URL, cand.ID); cerr != nil {
					p.logger.Warn("seen cache write failed", zap.Error(cerr))
				}
			}
			return cand.ID, true, nil
		}
	}
	return 0, false, nil
}

func (p *Processor) insert(ctx context.Context, raw domain.RawListing, mc *marketContext, settings *domain.Settings, weightsOK bool) error {
	now := p.now()
	l := &domain.Listing{
		SourceSite:   raw.SourceSite,
		URL:          raw.URL,
		Title:        strings.TrimSpace(raw.Title),
		Price:        raw.Price,
		Location:     raw.Location,
		Make:         raw.Make,
		Model:        raw.Model,
		Year:         raw.Year,
		Mileage:      raw.Mileage,
		FuelType:     raw.FuelType,
		Transmission: raw.Transmission,
		ImageURL:     raw.ImageURL,
		IsActive:     true,
		FirstSeen:    now,
		LastSeen:     now,
	}
	if weightsOK {
		l.DealScore = dealScore(scoreInputFor(l), mc, settings.Weights, settings.ApprovedLocations)
	}
	return p.store.InsertListing(ctx, l)
}

func (p *Processor) update(ctx context.Context, existing *domain.Listing, raw domain.RawListing, mc *marketContext, settings *domain.Settings, weightsOK bool) error {
	if existing.Price != nil && raw.Price != nil && *raw.Price < *existing.Price {
		existing.PriceDropped = true
		existing.PriceDropAmount = *existing.Price - *raw.Price
	}
	existing.PreviousPrice = existing.Price
	existing.Price = raw.Price
	existing.Title = strings.TrimSpace(raw.Title)
	existing.Location = raw.Location
	existing.Make = raw.Make
	existing.Model = raw.Model
	existing.Year = raw.Year
	existing.Mileage = raw.Mileage
	existing.FuelType = raw.FuelType
	existing.Transmission = raw.Transmission
	if raw.ImageURL != "" {
		existing.ImageURL = raw.ImageURL
	}
	existing.IsActive = true
	existing.LastSeen = p.now()

	// The score is always recomputed in full on every touch; partial
	// updates would drift. With invalid weights the stored score stands.
	if weightsOK {
		existing.DealScore = dealScore(scoreInputFor(existing), mc, settings.Weights, settings.ApprovedLocations)
	}
	return p.store.UpdateListing(ctx, existing)
}

func scoreInputFor(l *domain.Listing) scoreInput {
	return scoreInput{
		Price:        l.Price,
		Make:         l.Make,
		Model:        l.Model,
		Year:         l.Year,
		Mileage:      l.Mileage,
		FuelType:     l.FuelType,
		Location:     l.Location,
		PriceDropped: l.PriceDropped,
		FirstSeen:    l.FirstSeen,
	}
}
