package domain

import "time"

// RunStatus is the lifecycle of a whole multi-site run.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// ScrapeStatus is the lifecycle of one site's sub-job within a run.
type ScrapeStatus string

const (
	ScrapePending   ScrapeStatus = "pending"
	ScrapeRunning   ScrapeStatus = "running"
	ScrapeCompleted ScrapeStatus = "completed"
	ScrapeFailed    ScrapeStatus = "failed"
	ScrapeBlocked   ScrapeStatus = "blocked"
	ScrapeStopped   ScrapeStatus = "stopped"
)

// RawListing is a single record as extracted from one site page, before any
// cleaning, deduplication or scoring. Optional numeric fields are pointers so
// that "absent" never collapses into zero.
type RawListing struct {
	SourceSite   string
	URL          string
	Title        string
	Price        *int // EUR
	Location     string
	Make         string
	Model        string
	Year         *int
	Mileage      *int // km
	FuelType     string
	Transmission string
	ImageURL     string
	SeenAt       time.Time
}

// Listing is the persistent, normalized record owned by storage and mutated
// only by the processor.
type Listing struct {
	ID              int64
	SourceSite      string
	URL             string
	Title           string
	Price           *int
	PreviousPrice   *int
	Location        string
	Make            string
	Model           string
	Year            *int
	Mileage         *int
	FuelType        string
	Transmission    string
	ImageURL        string
	DealScore       float64
	PriceDropped    bool
	PriceDropAmount int
	DuplicateOfID   *int64
	IsActive        bool
	FirstSeen       time.Time
	LastSeen        time.Time
}

// ScrapeLog is the audit record of one site's participation in one run.
// It is created running and transitions to exactly one terminal state.
type ScrapeLog struct {
	ID              int64        `json:"id"`
	SiteName        string       `json:"site_name"`
	Status          ScrapeStatus `json:"status"`
	StartedAt       time.Time    `json:"started_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	PagesScraped    int          `json:"pages_scraped"`
	ListingsFound   int          `json:"listings_found"`
	ListingsNew     int          `json:"listings_new"`
	ListingsUpdated int          `json:"listings_updated"`
	ListingsRemoved int          `json:"listings_removed"`
	IsBlocked       bool         `json:"is_blocked"`
	Errors          []string     `json:"errors"`
}

// RunSummary aggregates the finalized logs of one run.
type RunSummary struct {
	Status          RunStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	SitesScraped    int        `json:"sites_scraped"`
	SitesBlocked    int        `json:"sites_blocked"`
	ListingsFound   int        `json:"listings_found"`
	ListingsNew     int        `json:"listings_new"`
	ListingsUpdated int        `json:"listings_updated"`
	ListingsRemoved int        `json:"listings_removed"`
}

// ScoringWeights are the seven user-tunable percentages. They must sum to 100;
// the processor refuses to score with an invalid set.
type ScoringWeights struct {
	PriceVsMarket    int `json:"weight_price_vs_market"`
	MileageVsYear    int `json:"weight_mileage_vs_year"`
	CO2TaxBand       int `json:"weight_co2_tax_band"`
	PopularityRarity int `json:"weight_popularity_rarity"`
	PriceDropped     int `json:"weight_price_dropped"`
	LocationMatch    int `json:"weight_location_match"`
	ListingFreshness int `json:"weight_listing_freshness"`
}

// Sum returns the total of all seven weights.
func (w ScoringWeights) Sum() int {
	return w.PriceVsMarket + w.MileageVsYear + w.CO2TaxBand +
		w.PopularityRarity + w.PriceDropped + w.LocationMatch + w.ListingFreshness
}

// Valid reports whether the weights sum to exactly 100.
func (w ScoringWeights) Valid() bool { return w.Sum() == 100 }

// DefaultWeights mirrors the default user profile.
func DefaultWeights() ScoringWeights {
	return ScoringWeights{
		PriceVsMarket:    25,
		MileageVsYear:    20,
		CO2TaxBand:       15,
		PopularityRarity: 15,
		PriceDropped:     10,
		LocationMatch:    10,
		ListingFreshness: 5,
	}
}

// Settings is the read-only slice of user configuration the pipeline consumes.
// The CRUD surface that maintains it lives outside this service.
type Settings struct {
	EnabledSites      []string
	MaxPagesPerSite   int
	MinDealScore      float64
	ApprovedLocations []string
	Blacklist         []string
	Weights           ScoringWeights
}

// SiteEnabled reports whether a site name appears in EnabledSites.
func (s Settings) SiteEnabled(name string) bool {
	for _, e := range s.EnabledSites {
		if e == name {
			return true
		}
	}
	return false
}
