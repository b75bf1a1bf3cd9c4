package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/model"
)

// CasaRicaAdapter scrapes casarica.com.py, a WooCommerce storefront.
// Besides search it can walk a category listing across paginated pages.
type CasaRicaAdapter struct {
	def   catalog.SourceDefinition
	fetch *fetcher
}

func (a *CasaRicaAdapter) Name() string { return a.def.ID }

func (a *CasaRicaAdapter) FetchRawPrices(ctx context.Context, query string) ([]model.RawPriceRecord, error) {
	// Category identifiers from the catalog walk the category listing;
	// anything else is a search term.
	for _, cat := range a.def.Categories {
		if cat == query {
			return a.FetchCategory(ctx, query)
		}
	}

	doc, err := a.fetch.document(ctx, searchURL(a.def, query))
	if err != nil {
		return nil, err
	}
	return FilterFresh(a.parseListing(doc)), nil
}

// FetchCategory walks a paginated category listing. Pagination stops at the
// first empty page or the page cap.
func (a *CasaRicaAdapter) FetchCategory(ctx context.Context, category string) ([]model.RawPriceRecord, error) {
	var records []model.RawPriceRecord

	for page := 1; page <= a.fetch.opts.MaxPages; page++ {
		pageURL := fmt.Sprintf("%s/categoria/%s/page/%d/", strings.TrimRight(a.def.BaseURL, "/"), category, page)
		doc, err := a.fetch.document(ctx, pageURL)
		if err != nil {
			// Sites 404 past the last page; what we already collected stands.
			if page > 1 {
				break
			}
			return nil, err
		}

		pageRecords := a.parseListing(doc)
		if len(pageRecords) == 0 {
			break
		}
		records = append(records, pageRecords...)
	}

	return FilterFresh(records), nil
}

func (a *CasaRicaAdapter) parseListing(doc *goquery.Document) []model.RawPriceRecord {
	var records []model.RawPriceRecord
	doc.Find("div.product").Each(func(_ int, s *goquery.Selection) {
		name := itemName(s, []string{"h2.ecommercepro-loop-product__title", "h2.woocommerce-loop-product__title", "h2"})
		if name == "" {
			return
		}

		price := priceFromSelectors(s, []string{"span.price span.amount", "span.price", "span.amount"})
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
	return records
}
