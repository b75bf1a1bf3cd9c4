package source

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/normalize"
)

// StockAdapter scrapes stock.com.py, a nopCommerce storefront. Markup has
// shifted between releases, so both item and price lookups walk a fallback
// selector chain.
type StockAdapter struct {
	def   catalog.SourceDefinition
	fetch *fetcher
}

func (a *StockAdapter) Name() string { return a.def.ID }

// itemSelectors in preference order; the first selector with hits wins.
var stockItemSelectors = []string{"div.item-box", "div.product-item", "[data-productid]"}

var stockPriceSelectors = []string{".prices .actual-price", ".actual-price", ".prices", ".price"}

func (a *StockAdapter) FetchRawPrices(ctx context.Context, query string) ([]model.RawPriceRecord, error) {
	doc, err := a.fetch.document(ctx, searchURL(a.def, query))
	if err != nil {
		return nil, err
	}

	var records []model.RawPriceRecord
	items := selectFirst(doc, stockItemSelectors)
	items.Each(func(_ int, s *goquery.Selection) {
		name := itemName(s, []string{".product-title a", "h2.product-title", "h2 a", ".product-name"})
		if name == "" {
			return
		}

		price := priceFromSelectors(s, stockPriceSelectors)
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

// --- shared selector helpers ---

// selectFirst returns the matches of the first selector that hits.
func selectFirst(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if s := doc.Find(sel); s.Length() > 0 {
			return s
		}
	}
	return doc.Find(selectors[len(selectors)-1])
}

func itemName(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if name := strings.TrimSpace(s.Find(sel).First().Text()); name != "" {
			return name
		}
	}
	if title, ok := s.Attr("title"); ok {
		return strings.TrimSpace(title)
	}
	return ""
}

func priceFromSelectors(s *goquery.Selection, selectors []string) int64 {
	for _, sel := range selectors {
		if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
			if p := normalize.ParsePrice(text); p > 0 {
				return p
			}
		}
	}
	return 0
}

var gsLineRe = regexp.MustCompile(`(?i)(?:gs\.?|₲)\s*([\d.,]*\d)`)

// gsLineScan scans free text for a "Gs 12.500" style amount, the last-resort
// price lookup when no price element matches.
func gsLineScan(text string) int64 {
	m := gsLineRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0
	}
	return normalize.ParsePrice(m[1])
}

func itemURL(s *goquery.Selection, baseURL string) string {
	href, ok := s.Find("a").First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(href, "/")
}
