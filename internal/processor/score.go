package processor

import (
	"sort"
	"strings"
	"time"

	"carscout/internal/domain"
)

// expectedKmPerYear is the assumed average annual mileage for a used car.
const expectedKmPerYear = 15000

// marketContext is the per-batch snapshot of the active corpus the scorer
// compares against: price distributions per make/model and make/model
// frequencies for the rarity subscore.
type marketContext struct {
	prices map[string][]pricePoint
	freq   map[string]int
	now    time.Time
}

type pricePoint struct {
	price int
	year  *int
}

func modelKey(make, model string) string {
	return strings.ToLower(make) + "|" + strings.ToLower(model)
}

// newMarketContext builds the scoring context from the active corpus.
func newMarketContext(corpus []domain.Listing, now time.Time) *marketContext {
	mc := &marketContext{
		prices: make(map[string][]pricePoint),
		freq:   make(map[string]int),
		now:    now,
	}
	for _, l := range corpus {
		if l.Make == "" || l.Model == "" {
			continue
		}
		key := modelKey(l.Make, l.Model)
		mc.freq[key]++
		if l.Price != nil {
			mc.prices[key] = append(mc.prices[key], pricePoint{price: *l.Price, year: l.Year})
		}
	}
	return mc
}

// scoreInput is everything one listing contributes to its own score.
type scoreInput struct {
	Price        *int
	Make         string
	Model        string
	Year         *int
	Mileage      *int
	FuelType     string
	Location     string
	PriceDropped bool
	FirstSeen    time.Time
}

// dealScore computes the weighted composite score in [0, 100]. Each subscore
// is clamped to [0, 100] before weighting. The caller validates the weights;
// this function assumes they sum to 100.
func dealScore(in scoreInput, mc *marketContext, w domain.ScoringWeights, approvedLocations []string) float64 {
	total := 0.0
	total += float64(w.PriceVsMarket) / 100 * priceVsMarketScore(in, mc)
	total += float64(w.MileageVsYear) / 100 * mileageVsYearScore(in, mc.now)
	total += float64(w.CO2TaxBand) / 100 * co2TaxScore(in.FuelType)
	total += float64(w.PopularityRarity) / 100 * rarityScore(in, mc)
	total += float64(w.PriceDropped) / 100 * priceDroppedScore(in.PriceDropped)
	total += float64(w.LocationMatch) / 100 * locationScore(in.Location, approvedLocations)
	total += float64(w.ListingFreshness) / 100 * freshnessScore(in.FirstSeen, mc.now)
	return clamp(total)
}

// priceVsMarketScore places the price within the distribution of same
// make/model listings of a similar year. Cheaper than the median scores
// above 50, dearer below. Neutral 50 without data.
func priceVsMarketScore(in scoreInput, mc *marketContext) float64 {
	if in.Price == nil || in.Make == "" || in.Model == "" {
		return 50
	}
	var prices []int
	for _, p := range mc.prices[modelKey(in.Make, in.Model)] {
		if in.Year != nil && p.year != nil && abs(*in.Year-*p.year) > 2 {
			continue
		}
		prices = append(prices, p.price)
	}
	if len(prices) == 0 {
		return 50
	}
	med := median(prices)
	if med == 0 {
		return 50
	}
	return clamp(50 + (med-float64(*in.Price))/med*100)
}

// mileageVsYearScore rewards mileage below the expected total for the car's
// age. Zero mileage scores 100, the expected figure 50, twice it 0.
func mileageVsYearScore(in scoreInput, now time.Time) float64 {
	if in.Mileage == nil || in.Year == nil {
		return 50
	}
	age := now.Year() - *in.Year
	if age < 1 {
		age = 1
	}
	expected := float64(age * expectedKmPerYear)
	return clamp((1 - float64(*in.Mileage)/(2*expected)) * 100)
}

// co2TaxScore maps the fuel type onto the inferred motor-tax band.
func co2TaxScore(fuelType string) float64 {
	switch strings.ToLower(fuelType) {
	case "electric":
		return 100
	case "hybrid":
		return 80
	case "diesel":
		return 50
	case "petrol":
		return 40
	default:
		return 30
	}
}

// rarityScore is the inverse frequency of the make/model in the corpus; a
// one-off scores 100, a model listed four times 25.
func rarityScore(in scoreInput, mc *marketContext) float64 {
	if in.Make == "" || in.Model == "" {
		return 50
	}
	n := mc.freq[modelKey(in.Make, in.Model)]
	if n <= 0 {
		return 100
	}
	return clamp(100 / float64(n))
}

func priceDroppedScore(dropped bool) float64 {
	if dropped {
		return 100
	}
	return 0
}

func locationScore(location string, approved []string) float64 {
	loc := strings.ToLower(location)
	for _, a := range approved {
		if a != "" && strings.Contains(loc, strings.ToLower(a)) {
			return 100
		}
	}
	return 0
}

// freshnessScore decays linearly to zero over 30 days since first_seen.
func freshnessScore(firstSeen time.Time, now time.Time) float64 {
	days := now.Sub(firstSeen).Hours() / 24
	return clamp((1 - days/30) * 100)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func median(xs []int) float64 {
	sorted := append([]int(nil), xs...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
