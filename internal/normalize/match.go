package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hidrobio/price-monitor/internal/model"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases text and strips diacritics so "Locote ROJÓ" and
// "locote rojo" compare equal.
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// colorTerms maps Spanish color-word variants onto a canonical color. Color
// words are matched strictly: within a product family, a raw name carrying
// one color never matches an alias carrying another.
var colorTerms = map[string]string{
	"rojo": "rojo", "roja": "rojo", "rojos": "rojo", "rojas": "rojo",
	"amarillo": "amarillo", "amarilla": "amarillo", "amarillos": "amarillo", "amarillas": "amarillo",
	"verde": "verde", "verdes": "verde",
	"naranja": "naranja",
	"morado":  "morado", "morada": "morado",
	"blanco": "blanco", "blanca": "blanco",
	"negro": "negro", "negra": "negro",
}

func colorsIn(folded string) map[string]bool {
	colors := make(map[string]bool)
	for _, w := range strings.Fields(folded) {
		if c, ok := colorTerms[w]; ok {
			colors[c] = true
		}
	}
	return colors
}

// MatchProduct resolves a raw scraped name to a canonical product id.
//
// For a multi-word alias every word must appear in the raw name, so a
// "pimiento amarillo" listing never lands on the "locote rojo" product. When
// the alias names a color, the raw name must not carry a conflicting color.
// Single-word aliases match on plain containment.
func MatchProduct(rawName string, products []model.ProductDefinition) (string, bool) {
	raw := Fold(rawName)
	if raw == "" {
		return "", false
	}
	rawColors := colorsIn(raw)

	for _, p := range products {
		for _, alias := range p.Aliases {
			a := Fold(alias)
			if a == "" {
				continue
			}

			words := strings.Fields(a)
			allPresent := true
			for _, w := range words {
				if !strings.Contains(raw, w) {
					allPresent = false
					break
				}
			}
			if !allPresent {
				continue
			}

			if aliasColors := colorsIn(a); len(aliasColors) > 0 {
				conflict := false
				for c := range rawColors {
					if !aliasColors[c] {
						conflict = true
						break
					}
				}
				if conflict {
					continue
				}
			}

			return p.ID, true
		}
	}
	return "", false
}
