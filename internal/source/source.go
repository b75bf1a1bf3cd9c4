// Package source implements the price collection adapters, one per target
// site plus a vision-based adapter for photographed price bulletins. Adapters
// are read-only: they fetch, parse and return raw records, never persisting
// anything themselves.
package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/normalize"
	"github.com/hidrobio/price-monitor/internal/resilience"
	"github.com/hidrobio/price-monitor/pkg/anthropic"
)

// Adapter fetches raw price listings for a search term or category.
type Adapter interface {
	Name() string
	FetchRawPrices(ctx context.Context, query string) ([]model.RawPriceRecord, error)
}

// Options configures adapter HTTP behavior.
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	RetryAttempts int
	MaxPages      int // category pagination cap
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 2
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 5
	}
	return o
}

// New constructs the adapter for a source definition. The vision kind needs
// an Anthropic client; site kinds do not.
func New(def catalog.SourceDefinition, opts Options, client anthropic.Client, visionModel string) (Adapter, error) {
	opts = opts.withDefaults()
	switch def.Kind {
	case "stock":
		return &StockAdapter{def: def, fetch: newFetcher(def.ID, opts)}, nil
	case "superseis":
		return &SuperseisAdapter{def: def, fetch: newFetcher(def.ID, opts)}, nil
	case "casarica":
		return &CasaRicaAdapter{def: def, fetch: newFetcher(def.ID, opts)}, nil
	case "generic":
		return &GenericAdapter{def: def, fetch: newFetcher(def.ID, opts)}, nil
	case "vision":
		if client == nil {
			return nil, eris.Errorf("source: vision adapter %s requires an anthropic client", def.ID)
		}
		return &VisionAdapter{def: def, client: client, model: visionModel}, nil
	default:
		return nil, eris.Errorf("source: unknown adapter kind %q", def.Kind)
	}
}

// Search invokes an adapter under the never-throws contract: any error is
// logged and converted into an empty result so one broken source cannot
// abort the batch.
func Search(ctx context.Context, a Adapter, query string) []model.RawPriceRecord {
	records, err := a.FetchRawPrices(ctx, query)
	if err != nil {
		zap.L().Warn("source fetch failed, treating as empty",
			zap.String("source", a.Name()),
			zap.String("query", query),
			zap.Error(err))
		return nil
	}
	return records
}

// fetcher is the shared HTTP fetch path for the site adapters. One fetcher
// per source: the circuit breaker state must not leak across sources, and a
// site that keeps failing stops being hammered for the rest of its window.
type fetcher struct {
	sourceID string
	client   *http.Client
	opts     Options
	cb       *resilience.CircuitBreaker
}

func newFetcher(sourceID string, opts Options) *fetcher {
	cbCfg := resilience.DefaultCircuitBreakerConfig()
	cbCfg.ShouldTrip = func(error) bool { return true }
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("source circuit state change",
			zap.String("source", sourceID),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	return &fetcher{
		sourceID: sourceID,
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		cb:       resilience.NewCircuitBreaker(cbCfg),
	}
}

// document GETs a URL with browser-like headers and parses the body.
// Transient failures are retried with backoff inside a single breaker
// attempt.
func (f *fetcher) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	return resilience.ExecuteVal(ctx, f.cb, func(ctx context.Context) (*goquery.Document, error) {
		var doc *goquery.Document

		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.MaxAttempts = f.opts.RetryAttempts
		retryCfg.InitialBackoff = time.Second
		retryCfg.OnRetry = resilience.RetryLogger(f.sourceID, "fetch")

		err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return eris.Wrapf(err, "source: build request %s", pageURL)
			}
			req.Header.Set("User-Agent", f.opts.UserAgent)
			req.Header.Set("Accept", "text/html,application/xhtml+xml")
			req.Header.Set("Accept-Language", "es-PY,es;q=0.9")

			resp, err := f.client.Do(req)
			if err != nil {
				return eris.Wrapf(err, "source: get %s", pageURL)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				statusErr := eris.Errorf("source: get %s: status %d", pageURL, resp.StatusCode)
				if resilience.IsTransientHTTPStatus(resp.StatusCode) {
					return resilience.NewTransientError(statusErr, resp.StatusCode)
				}
				return statusErr
			}

			doc, err = goquery.NewDocumentFromReader(resp.Body)
			return eris.Wrapf(err, "source: parse %s", pageURL)
		})
		return doc, err
	})
}

// normalizeListing converts a shelf listing to a per-base-unit price. When
// the name carries no package phrase the price is assumed per-kg already,
// except for unlabeled "bandeja" listings, which go through the tray-weight
// heuristic.
func normalizeListing(name string, price int64) (int64, string) {
	p, unit := normalize.NormalizeUnit(price, name)
	if unit == name {
		if tp, ok := normalize.NormalizeTrayListing(name, p); ok {
			return tp, "kg"
		}
		unit = "kg"
	}
	return p, unit
}

// searchURL builds the site search URL for a query. Definitions carry a
// printf-style pattern with one %s placeholder.
func searchURL(def catalog.SourceDefinition, query string) string {
	if strings.Contains(def.SearchURL, "%s") {
		return fmt.Sprintf(def.SearchURL, url.QueryEscape(query))
	}
	return def.SearchURL + url.QueryEscape(query)
}
