package sites

import (
	"fmt"
	"strings"
	"time"

	"carscout/internal/domain"
	"carscout/internal/fetch"

	"github.com/PuerkitoBio/goquery"
)

const carzoneBase = "https://www.carzone.ie"

// Carzone extracts used-car listings from carzone.ie result pages. The site
// renders its result grid with JavaScript, so it is fetched through the
// browser client.
type Carzone struct{}

func NewCarzone() *Carzone { return &Carzone{} }

func (c *Carzone) Name() string   { return "carzone" }
func (c *Carzone) RenderJS() bool { return true }

func (c *Carzone) ListURL(page int) string {
	return fmt.Sprintf("%s/used-cars?page=%d", carzoneBase, page)
}

func (c *Carzone) Extract(page *fetch.PageResult) ([]domain.RawListing, bool, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, false, 1
	}

	var listings []domain.RawListing
	skipped := 0
	now := time.Now().UTC()

	doc.Find("div.listing-item").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3.listing-title").First().Text())
		href, _ := s.Find("a").First().Attr("href")
		if title == "" || href == "" {
			skipped++
			return
		}

		price := ParsePrice(s.Find("span.price").First().Text())
		desc := strings.TrimSpace(s.Find("p.description").First().Text())
		mk, model, year := ParseTitle(title)
		img, _ := s.Find("img").First().Attr("src")

		listings = append(listings, domain.RawListing{
			SourceSite:   c.Name(),
			URL:          absoluteURL(carzoneBase, href),
			Title:        title,
			Price:        price,
			Location:     strings.TrimSpace(s.Find("span.location").First().Text()),
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

	hasNext := len(listings) > 0 && doc.Find("a[rel='next'], .pagination .next a").Length() > 0
	return listings, hasNext, skipped
}

// absoluteURL resolves a site-relative href against the site base.
func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}
