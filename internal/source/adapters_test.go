package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/resilience"
)

const stockFixture = `
<html><body>
<div class="item-box">
  <h2 class="product-title"><a href="/tomate-ensalada">Tomate Ensalada</a></h2>
  <div class="prices"><span class="actual-price">₲ 17.950</span></div>
</div>
<div class="item-box">
  <h2 class="product-title"><a href="/salsa-de-tomate">Salsa de Tomate 340g</a></h2>
  <div class="prices"><span class="actual-price">Gs. 8.500</span></div>
</div>
<div class="item-box">
  <h2 class="product-title"><a href="/locote-rojo">Locote Rojo</a></h2>
  Precio especial Gs 22.500 por kilo
</div>
</body></html>`

func stockDef(url string) catalog.SourceDefinition {
	return catalog.SourceDefinition{
		ID: "stock", Kind: "stock", BaseURL: url, SearchURL: url + "/buscar?q=%s",
	}
}

func TestStockAdapter_ParsesAndFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, stockFixture)
	}))
	defer srv.Close()

	a, err := New(stockDef(srv.URL), Options{}, nil, "")
	require.NoError(t, err)

	records, err := a.FetchRawPrices(context.Background(), "tomate")
	require.NoError(t, err)

	// Salsa de Tomate is processed and dropped by the freshness filter.
	require.Len(t, records, 2)
	assert.Equal(t, "Tomate Ensalada", records[0].RawName)
	assert.Equal(t, int64(17950), records[0].Price)
	assert.Equal(t, srv.URL+"/tomate-ensalada", records[0].URL)
	// Locote Rojo price comes from the Gs text fallback.
	assert.Equal(t, int64(22500), records[1].Price)
}

const superseisFixture = `
<html><body>
<div data-product-id="11" data-product-price="7.200">
  <span class="product-title">Cebolla de Cabeza
Añadí 3 y pagá 2</span>
</div>
<div data-product-id="12">
  <span class="product-title">Zanahoria</span>
  <span class="price">Gs. 5.900</span>
</div>
<div data-product-id="13" data-product-price="1.000">
  <span class="product-title">ahorras Gs 1.000</span>
</div>
</body></html>`

func TestSuperseisAdapter_AttrPriceAndPromoCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, superseisFixture)
	}))
	defer srv.Close()

	def := catalog.SourceDefinition{ID: "superseis", Kind: "superseis", BaseURL: srv.URL, SearchURL: srv.URL + "/?s=%s"}
	a, err := New(def, Options{}, nil, "")
	require.NoError(t, err)

	records, err := a.FetchRawPrices(context.Background(), "cebolla")
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "Cebolla de Cabeza", records[0].RawName)
	assert.Equal(t, int64(7200), records[0].Price)
	assert.Equal(t, "Zanahoria", records[1].RawName)
	assert.Equal(t, int64(5900), records[1].Price)
}

func casaricaPage(names ...string) string {
	page := "<html><body>"
	for i, n := range names {
		page += fmt.Sprintf(`<div class="product">
			<h2 class="ecommercepro-loop-product__title">%s</h2>
			<span class="price"><span class="amount">₲ %d.000</span></span>
		</div>`, n, 10+i)
	}
	return page + "</body></html>"
}

func TestCasaRicaAdapter_CategoryPagination(t *testing.T) {
	var pagesServed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed = append(pagesServed, r.URL.Path)
		switch r.URL.Path {
		case "/categoria/verduras/page/1/":
			fmt.Fprint(w, casaricaPage("Tomate", "Locote Verde"))
		case "/categoria/verduras/page/2/":
			fmt.Fprint(w, casaricaPage("Pepino"))
		default:
			fmt.Fprint(w, casaricaPage()) // empty page ends the walk
		}
	}))
	defer srv.Close()

	def := catalog.SourceDefinition{
		ID: "casarica", Kind: "casarica", BaseURL: srv.URL,
		SearchURL:  srv.URL + "/?s=%s",
		Categories: []string{"verduras"},
	}
	a, err := New(def, Options{MaxPages: 5}, nil, "")
	require.NoError(t, err)

	records, err := a.FetchRawPrices(context.Background(), "verduras")
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "Tomate", records[0].RawName)
	assert.Equal(t, int64(10000), records[0].Price)
	assert.Equal(t, "Pepino", records[2].RawName)
	assert.Len(t, pagesServed, 3) // stopped on the first empty page
}

func TestGenericAdapter_TextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="product-item"><h3>Remolacha</h3> Gs 6.500 el kilo</div>
		</body></html>`)
	}))
	defer srv.Close()

	def := catalog.SourceDefinition{ID: "agro", Kind: "generic", BaseURL: srv.URL, SearchURL: srv.URL + "/buscar/%s"}
	a, err := New(def, Options{}, nil, "")
	require.NoError(t, err)

	records, err := a.FetchRawPrices(context.Background(), "remolacha")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Remolacha", records[0].RawName)
	assert.Equal(t, int64(6500), records[0].Price)
}

func TestSearch_NeverThrows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	a, err := New(stockDef(srv.URL), Options{}, nil, "")
	require.NoError(t, err)

	records := Search(context.Background(), a, "tomate")
	assert.Empty(t, records)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(catalog.SourceDefinition{ID: "x", Kind: "ftp"}, Options{}, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown adapter kind")
}

func TestNew_VisionRequiresClient(t *testing.T) {
	_, err := New(catalog.SourceDefinition{ID: "mayorista", Kind: "vision"}, Options{}, nil, "")
	require.Error(t, err)
}

func TestFetcher_CircuitOpensOnRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	a, err := New(stockDef(srv.URL), Options{RetryAttempts: 1}, nil, "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := a.FetchRawPrices(context.Background(), "tomate")
		require.Error(t, err)
	}
	before := hits.Load()

	_, err = a.FetchRawPrices(context.Background(), "tomate")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, hits.Load(), "open circuit must not reach the site")
}

func TestNormalizeListing_TrayHeuristic(t *testing.T) {
	// Unlabeled tray goes through the price-range weight estimate.
	price, unit := normalizeListing("Tomate en bandeja", 6000)
	assert.Equal(t, int64(20000), price)
	assert.Equal(t, "kg", unit)

	// A labeled weight wins over the heuristic.
	price, unit = normalizeListing("Tomate bandeja 500 g", 6000)
	assert.Equal(t, int64(12000), price)
	assert.Equal(t, "kg", unit)

	// Unknown family passes through as per-kg.
	price, unit = normalizeListing("Frutilla bandeja", 6000)
	assert.Equal(t, int64(6000), price)
	assert.Equal(t, "kg", unit)
}
