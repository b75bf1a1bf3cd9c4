// Package normalize maps raw scraped listings onto canonical products and a
// common per-kilogram or per-unit price basis. Everything here is pure; bad
// input degrades to "no price" or "no match", never to an error.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`\d[\d.,]*`)

// ParsePrice extracts an integer Guaraní amount from free text.
//
// Paraguayan convention: the period is a thousands separator and prices carry
// no usable decimals, so "₲ 17.950" is 17950. When both separators appear
// ("Gs. 7.200,00") the comma marks decimals, which are dropped. Returns 0
// when no digits can be recovered; callers must treat 0 as "no price".
func ParsePrice(text string) int64 {
	if text == "" {
		return 0
	}

	cleaned := strings.NewReplacer(
		"Gs.", "", "Gs", "", "₲", "", "G$", "",
		"/kg", "", "/un", "", "/u", "",
	).Replace(text)
	cleaned = strings.TrimSpace(cleaned)

	m := numberRe.FindString(cleaned)
	if m == "" {
		return 0
	}

	hasDot := strings.Contains(m, ".")
	hasComma := strings.Contains(m, ",")

	switch {
	case hasDot && hasComma:
		// 1.234,56: dot thousands, comma decimal.
		m = strings.ReplaceAll(m, ".", "")
		m = strings.ReplaceAll(m, ",", ".")
	case hasDot:
		// 17.950 is thousands; 17.95 is a decimal and stays.
		parts := strings.Split(m, ".")
		if len(parts[len(parts)-1]) == 3 {
			m = strings.ReplaceAll(m, ".", "")
		}
	case hasComma:
		m = strings.ReplaceAll(m, ",", "")
	}

	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
