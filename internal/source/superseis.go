package source

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/normalize"
)

// SuperseisAdapter scrapes superseis.com.py. Product tiles carry the price in
// a data attribute; the visible text is polluted with promo copy that has to
// be stripped before name matching.
type SuperseisAdapter struct {
	def   catalog.SourceDefinition
	fetch *fetcher
}

func (a *SuperseisAdapter) Name() string { return a.def.ID }

// promoPrefixes start promotional lines appended to product names.
var promoPrefixes = []string{"Añadí", "Anadi", "Preparate", "Llevá", "Lleva"}

func (a *SuperseisAdapter) FetchRawPrices(ctx context.Context, query string) ([]model.RawPriceRecord, error) {
	doc, err := a.fetch.document(ctx, searchURL(a.def, query))
	if err != nil {
		return nil, err
	}

	var records []model.RawPriceRecord
	doc.Find("[data-product-id]").Each(func(_ int, s *goquery.Selection) {
		name := cleanPromoText(itemName(s, []string{".product-title", ".product-name", "h2 a", "a.name"}))
		if name == "" {
			return
		}

		// "ahorras Gs X" entries are discount banners, not listings.
		if strings.Contains(normalize.Fold(s.Text()), "ahorras") {
			return
		}

		var price int64
		if attr, ok := s.Attr("data-product-price"); ok {
			price = normalize.ParsePrice(attr)
		}
		if price <= 0 {
			price = priceFromSelectors(s, []string{".price", ".product-price", ".amount"})
		}
		if price <= 0 {
			return
		}

		price, unit := normalizeListing(name, price)
		records = append(records, model.RawPriceRecord{
			RawName: name,
			Price:   price,
			Unit:    unit,
			URL:     itemURL(s, a.def.BaseURL),
		})
	})

	return FilterFresh(records), nil
}

// cleanPromoText drops promo lines ("Añadí 3 y pagá 2...") that the site
// appends inside the title element.
func cleanPromoText(name string) string {
	for _, line := range strings.Split(name, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		promo := false
		for _, p := range promoPrefixes {
			if strings.HasPrefix(line, p) {
				promo = true
				break
			}
		}
		if !promo {
			return line
		}
	}
	return ""
}
