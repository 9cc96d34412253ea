package sites

import (
	"encoding/json"
	"fmt"
	"time"

	"carscout/internal/domain"
	"carscout/internal/fetch"
)

const advertsBase = "https://www.adverts.ie"

// Adverts extracts listings from the adverts.ie JSON search endpoint.
type Adverts struct{}

func NewAdverts() *Adverts { return &Adverts{} }

func (a *Adverts) Name() string   { return "adverts" }
func (a *Adverts) RenderJS() bool { return false }

func (a *Adverts) ListURL(page int) string {
	return fmt.Sprintf("%s/api/search/cars?page=%d", advertsBase, page)
}

type advertsPage struct {
	Results []advertsResult `json:"results"`
	Paging  struct {
		HasNext bool `json:"has_next"`
	} `json:"paging"`
}

type advertsResult struct {
	Title    string `json:"title"`
	Path     string `json:"path"`
	Price    string `json:"price"`
	County   string `json:"county"`
	Mileage  string `json:"mileage"`
	Fuel     string `json:"fuel_type"`
	Gearbox  string `json:"transmission"`
	ImageURL string `json:"image_url"`
}

func (a *Adverts) Extract(page *fetch.PageResult) ([]domain.RawListing, bool, int) {
	var body advertsPage
	if err := json.Unmarshal([]byte(page.Body), &body); err != nil {
		return nil, false, 1
	}

	var listings []domain.RawListing
	skipped := 0
	now := time.Now().UTC()

	for _, r := range body.Results {
		if r.Title == "" || r.Path == "" {
			skipped++
			continue
		}
		mk, model, year := ParseTitle(r.Title)
		fuel := r.Fuel
		if fuel == "" {
			fuel = DetectFuel(r.Title)
		}
		gearbox := r.Gearbox
		if gearbox == "" {
			gearbox = DetectTransmission(r.Title)
		}
		listings = append(listings, domain.RawListing{
			SourceSite:   a.Name(),
			URL:          absoluteURL(advertsBase, r.Path),
			Title:        r.Title,
			Price:        ParsePrice(r.Price),
			Location:     r.County,
			Make:         mk,
			Model:        model,
			Year:         year,
			Mileage:      ParseMileage(r.Mileage),
			FuelType:     fuel,
			Transmission: gearbox,
			ImageURL:     r.ImageURL,
			SeenAt:       now,
		})
	}

	return listings, body.Paging.HasNext, skipped
}
