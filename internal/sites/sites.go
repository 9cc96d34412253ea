package sites

import (
	"sort"
	"sync"

	"carscout/internal/domain"
	"carscout/internal/fetch"
)

// Extractor turns one fetched page of a source site into raw listings.
// Implementations must tolerate individual malformed listing elements:
// a bad element is skipped and reported through the error count, never
// by failing the whole page.
type Extractor interface {
	// Name is the registry key and the source_site value on listings.
	Name() string
	// ListURL returns the URL of the given 1-based results page.
	ListURL(page int) string
	// RenderJS reports whether the site needs a browser-backed fetch.
	RenderJS() bool
	// Extract parses a page into raw listings, whether another page
	// follows, and the count of skipped malformed elements.
	Extract(page *fetch.PageResult) (listings []domain.RawListing, hasNext bool, skipped int)
}

// Registry maps site names to extractors. New sites are added by
// implementing Extractor and registering it, not by inheritance.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry returns a registry preloaded with all built-in sites.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(NewCarzone())
	r.Register(NewDoneDeal())
	r.Register(NewAdverts())
	return r
}

// Register adds or replaces an extractor under its own name.
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[e.Name()] = e
}

// Get returns the extractor for a site name.
func (r *Registry) Get(name string) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[name]
	if !ok {
		return nil, domain.ErrUnknownSite
	}
	return e, nil
}

// Names returns all registered site names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.extractors))
	for n := range r.extractors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
