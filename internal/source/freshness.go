package source

import (
	"strings"

	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/normalize"
)

// processedTerms marks listings that are canned, bottled or otherwise
// processed rather than fresh produce.
var processedTerms = []string{
	"extracto", "pure", "puré", "salsa", "pelado", "enlatado", "conserva",
	"lata", "botella", "tetra", "sachet", "sobre", "sardina", "atun", "atún",
	"ketchup", "pasta", "pulpa",
}

// maxFreshNameLen: names longer than this are presumed multi-ingredient
// prepared products.
const maxFreshNameLen = 80

// IsFresh reports whether a raw listing name looks like fresh produce.
func IsFresh(rawName string) bool {
	if len([]rune(rawName)) > maxFreshNameLen {
		return false
	}
	folded := normalize.Fold(rawName)
	for _, term := range processedTerms {
		if strings.Contains(folded, normalize.Fold(term)) {
			return false
		}
	}
	return true
}

// FilterFresh drops processed and implausible records: non-fresh names and
// non-positive prices.
func FilterFresh(records []model.RawPriceRecord) []model.RawPriceRecord {
	out := records[:0:0]
	for _, r := range records {
		if r.Price <= 0 {
			continue
		}
		if !IsFresh(r.RawName) {
			continue
		}
		out = append(out, r)
	}
	return out
}
