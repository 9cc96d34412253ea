package sites

import (
	"fmt"
	"strings"
	"time"

	"carscout/internal/domain"
	"carscout/internal/fetch"

	"github.com/PuerkitoBio/goquery"
)

const donedealBase = "https://www.donedeal.ie"

// DoneDeal extracts used-car listings from donedeal.ie card pages.
type DoneDeal struct{}

func NewDoneDeal() *DoneDeal { return &DoneDeal{} }

func (d *DoneDeal) Name() string   { return "donedeal" }
func (d *DoneDeal) RenderJS() bool { return false }

func (d *DoneDeal) ListURL(page int) string {
	return fmt.Sprintf("%s/cars?page=%d", donedealBase, page)
}

func (d *DoneDeal) Extract(page *fetch.PageResult) ([]domain.RawListing, bool, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, false, 1
	}

	var listings []domain.RawListing
	skipped := 0
	now := time.Now().UTC()

	doc.Find("div.card").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3.card__title").First().Text())
		href, _ := s.Find("a").First().Attr("href")
		if title == "" || href == "" {
			skipped++
			return
		}

		desc := strings.TrimSpace(s.Find("p.card__description").First().Text())
		mk, model, year := ParseTitle(title)
		img, _ := s.Find("img").First().Attr("src")

		listings = append(listings, domain.RawListing{
			SourceSite:   d.Name(),
			URL:          absoluteURL(donedealBase, href),
			Title:        title,
			Price:        ParsePrice(s.Find("span.card__price").First().Text()),
			Location:     strings.TrimSpace(s.Find("span.card__location").First().Text()),
			Make:         mk,
			Model:        model,
			Year:         year,
			Mileage:      ParseMileage(title + " " + desc),
			FuelType:     DetectFuel(title + " " + desc),
			Transmission: DetectTransmission(title + " " + desc),
			ImageURL:     img,
			SeenAt:       now,
		})
	})

	hasNext := len(listings) > 0 && doc.Find("a[rel='next'], .pagination__next a").Length() > 0
	return listings, hasNext, skipped
}
