package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hidrobio/price-monitor/internal/model"
)

func TestIsFresh(t *testing.T) {
	assert.True(t, IsFresh("Tomate Ensalada"))
	assert.True(t, IsFresh("Locote Rojo x kg"))

	assert.False(t, IsFresh("Extracto de Tomate 340g"))
	assert.False(t, IsFresh("Puré de tomate"))
	assert.False(t, IsFresh("Atún en lata"))
	assert.False(t, IsFresh("Salsa lista para pizza"))
	// accent-insensitive: "atun" matches "Atún"
	assert.False(t, IsFresh("ATUN DESMENUZADO"))
}

func TestIsFresh_LengthHeuristic(t *testing.T) {
	longName := "Tomate " + strings.Repeat("con aderezo especial ", 5)
	assert.False(t, IsFresh(longName))
}

func TestFilterFresh(t *testing.T) {
	in := []model.RawPriceRecord{
		{RawName: "Tomate", Price: 12000},
		{RawName: "Salsa de tomate", Price: 8000},
		{RawName: "Cebolla", Price: 0},
		{RawName: "Zanahoria", Price: 5900},
	}
	out := FilterFresh(in)
	assert.Len(t, out, 2)
	assert.Equal(t, "Tomate", out[0].RawName)
	assert.Equal(t, "Zanahoria", out[1].RawName)
}
