package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	packageKgRe  = regexp.MustCompile(`(?:caja|bolsa|bulto|carton|pack)\s*(?:de\s*)?(\d+)\s*(?:kg|kilos?)\b`)
	gramsRe      = regexp.MustCompile(`(\d+)\s*(?:g|grs?|gramos)\b`)
	multiUnitRe  = regexp.MustCompile(`x\s*(\d+)\b`)
	perKiloHints = []string{"por kg", "por kilo", "x kg", "/kg", "kg x", "1 kg", "1kg"}
)

// NormalizeUnit converts a listed price to a per-base-unit basis using known
// package-size phrases in the unit text. A labeled 20kg carton divides the
// price by 20; an "x 12" pack divides by 12; gram weights scale up to per-kg.
// Unrecognized text passes through unchanged and is assumed already base-unit.
func NormalizeUnit(price int64, unitText string) (int64, string) {
	if price <= 0 {
		return price, unitText
	}
	folded := Fold(unitText)
	if folded == "" {
		return price, "kg"
	}

	for _, hint := range perKiloHints {
		if strings.Contains(folded, hint) {
			return price, "kg"
		}
	}

	if m := packageKgRe.FindStringSubmatch(folded); m != nil {
		if kg, err := strconv.ParseInt(m[1], 10, 64); err == nil && kg > 0 {
			return price / kg, "kg"
		}
	}

	if m := gramsRe.FindStringSubmatch(folded); m != nil {
		if g, err := strconv.ParseInt(m[1], 10, 64); err == nil && g > 0 {
			return price * 1000 / g, "kg"
		}
	}

	if m := multiUnitRe.FindStringSubmatch(folded); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > 1 {
			return price / n, "unidad"
		}
	}

	return price, unitText
}

// trayBand is one row of the tray-weight heuristic table.
type trayBand struct {
	maxPrice int64
	grams    int64
}

// trayWeights estimates tray weight from price when the listing says only
// "bandeja" with no labeled weight. Keyed by product family; thresholds come
// from observed shelf pricing and should be revised here, not in the banding
// math.
var trayWeights = map[string][]trayBand{
	"tomate": {{maxPrice: 9000, grams: 300}, {maxPrice: 1 << 40, grams: 500}},
	"locote": {{maxPrice: 12000, grams: 300}, {maxPrice: 1 << 40, grams: 500}},
}

// EstimateTrayGrams guesses the weight of an unlabeled tray for a product
// family. Returns 0 when no heuristic exists for the family.
func EstimateTrayGrams(family string, price int64) int64 {
	bands, ok := trayWeights[Fold(family)]
	if !ok {
		return 0
	}
	for _, b := range bands {
		if price <= b.maxPrice {
			return b.grams
		}
	}
	return 0
}

// NormalizeTray converts an unlabeled tray price to per-kg using the
// price-range heuristic. Returns the input unchanged when no estimate exists.
func NormalizeTray(price int64, family string) (int64, bool) {
	g := EstimateTrayGrams(family, price)
	if g == 0 {
		return price, false
	}
	return price * 1000 / g, true
}

var trayRe = regexp.MustCompile(`\bbandejas?\b`)

// NormalizeTrayListing applies the tray heuristic to a listing whose name
// says "bandeja" but carries no labeled weight, inferring the product family
// from the name. Listings with a gram figure should go through NormalizeUnit
// instead.
func NormalizeTrayListing(name string, price int64) (int64, bool) {
	folded := Fold(name)
	if !trayRe.MatchString(folded) {
		return price, false
	}
	for family := range trayWeights {
		if strings.Contains(folded, family) {
			return NormalizeTray(price, family)
		}
	}
	return price, false
}
