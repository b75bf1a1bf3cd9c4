package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/normalize"
	"github.com/hidrobio/price-monitor/pkg/anthropic"
)

// VisionAdapter extracts a price table from a photographed bulletin (the
// wholesale market publishes prices as an image). The model returns a JSON
// array; unparseable output degrades to an empty result like any other
// adapter failure.
type VisionAdapter struct {
	def    catalog.SourceDefinition
	client anthropic.Client
	model  string
}

func (a *VisionAdapter) Name() string { return a.def.ID }

const visionPrompt = `La imagen es un boletín de precios mayoristas de frutas y verduras
de Paraguay. Extraé todos los productos con su precio en guaraníes.

Respondé únicamente con un array JSON, sin texto adicional:
[{"name": "nombre del producto tal como aparece", "price": 12500, "unit": "kg"}]

El precio debe ser un número entero en guaraníes. Si un producto aparece con
precio por caja o bolsa, incluí esa frase en "unit" (por ejemplo "caja 20kg").`

func (a *VisionAdapter) FetchRawPrices(ctx context.Context, query string) ([]model.RawPriceRecord, error) {
	data, err := os.ReadFile(a.def.ImagePath)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read bulletin image %s", a.def.ImagePath)
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 4096,
		Messages: []anthropic.Message{
			{
				Role:    "user",
				Content: visionPrompt,
				Images: []anthropic.ImageBlock{{
					MediaType: mediaTypeFor(a.def.ImagePath),
					Data:      base64.StdEncoding.EncodeToString(data),
				}},
			},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "source: vision extraction")
	}
	resp.Usage.LogCost(a.model, "vision")

	var extracted []struct {
		Name  string `json:"name"`
		Price int64  `json:"price"`
		Unit  string `json:"unit"`
	}
	if err := json.Unmarshal([]byte(cleanJSONArray(visionText(resp))), &extracted); err != nil {
		zap.L().Warn("vision adapter returned unparseable JSON, treating as empty",
			zap.String("source", a.def.ID), zap.Error(err))
		return nil, nil
	}

	records := make([]model.RawPriceRecord, 0, len(extracted))
	for _, e := range extracted {
		if e.Name == "" || e.Price <= 0 {
			continue
		}
		unitText := e.Unit
		if unitText == "" {
			unitText = e.Name
		}
		price, unit := normalize.NormalizeUnit(e.Price, unitText)
		records = append(records, model.RawPriceRecord{
			RawName: e.Name,
			Price:   price,
			Unit:    unit,
		})
	}
	return FilterFresh(records), nil
}

func visionText(resp *anthropic.MessageResponse) string {
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// cleanJSONArray strips markdown fences and extracts the outer JSON array.
func cleanJSONArray(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func mediaTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
