package source

import (
	"context"

	"github.com/PuerkitoBio/goquery"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/model"
)

// GenericAdapter handles sites without a dedicated adapter by probing the
// container classes most storefronts use. Precision is lower than the
// site-specific adapters; the freshness filter and product matcher discard
// the noise.
type GenericAdapter struct {
	def   catalog.SourceDefinition
	fetch *fetcher
}

func (a *GenericAdapter) Name() string { return a.def.ID }

var genericItemSelectors = []string{"div.product-item", "div.product", "div.item", "li.product", "article.product"}

var genericPriceSelectors = []string{".price", ".product-price", ".amount", ".precio"}

func (a *GenericAdapter) FetchRawPrices(ctx context.Context, query string) ([]model.RawPriceRecord, error) {
	doc, err := a.fetch.document(ctx, searchURL(a.def, query))
	if err != nil {
		return nil, err
	}

	var records []model.RawPriceRecord
	selectFirst(doc, genericItemSelectors).Each(func(_ int, s *goquery.Selection) {
		name := itemName(s, []string{".product-title", ".product-name", ".title", "h2", "h3"})
		if name == "" {
			return
		}

		price := priceFromSelectors(s, genericPriceSelectors)
		if price <= 0 {
			price = gsLineScan(s.Text())
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
