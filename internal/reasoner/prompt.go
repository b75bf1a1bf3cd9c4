package reasoner

import (
	"fmt"
	"strings"

	"github.com/hidrobio/price-monitor/internal/banding"
	"github.com/hidrobio/price-monitor/internal/model"
)

const systemPrompt = `Sos un analista de precios mayoristas y minoristas de productos
hortícolas frescos en Paraguay. Recibís datos de mercado del día (precios relevados en
supermercados de Asunción, en guaraníes) junto con los costos de producción, pisos de
venta y bandas por segmento de cliente de un productor local.

Tu tarea: ajustar las recomendaciones de precio calculadas cuando el contexto del mercado
lo justifique, y redactar un resumen ejecutivo breve. Reglas estrictas:
- Nunca recomiendes un precio por debajo del piso absoluto del producto.
- Mantené el orden entre segmentos: un segmento de mayor rango nunca puede quedar más
  barato que uno de menor rango.
- Si no hay motivo para ajustar, devolvé el precio calculado sin cambios.
- Respondé únicamente con JSON válido según el esquema indicado, sin texto adicional.`

// buildSystemPrompt appends the operator-supplied business context to the
// fixed analyst role.
func buildSystemPrompt(businessContext string) string {
	if businessContext = strings.TrimSpace(businessContext); businessContext == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nContexto del negocio:\n" + businessContext
}

// buildUserMessage renders the market data and policy constants, followed by
// the response schema the model must emit.
func buildUserMessage(in Input) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Fecha del relevamiento: %s\n\n", in.Date)

	sb.WriteString("Segmentos de cliente (de mayor a menor rango):\n")
	for _, s := range in.Segments {
		fmt.Fprintf(&sb, "- %s (%s): banda %.0f%%-%.0f%% de la mediana, objetivo %.0f%%, margen mínimo %.0f%%\n",
			s.ID, s.Name, s.MinPct*100, s.MaxPct*100, s.TargetPct*100, s.MinMargin*100)
	}
	sb.WriteString("\n")

	for _, p := range in.Products {
		fmt.Fprintf(&sb, "Producto: %s (%s)\n", p.Product.CanonicalName, p.Product.ID)
		fmt.Fprintf(&sb, "  Costo de producción: %d Gs/%s, piso absoluto: %d Gs\n",
			p.Product.ProductionCost, p.Product.Unit, p.Product.AbsoluteFloor)

		if p.Snapshot == nil {
			sb.WriteString("  Sin datos de mercado hoy.\n\n")
			continue
		}
		fmt.Fprintf(&sb, "  Mercado hoy: mediana %d, min %d, max %d (%d observaciones)\n",
			p.Snapshot.Median, p.Snapshot.Min, p.Snapshot.Max, p.Snapshot.ObservationCount)
		if p.Snapshot.WeekChangePct != nil {
			fmt.Fprintf(&sb, "  Variación semanal de la mediana: %+.1f%%\n", *p.Snapshot.WeekChangePct*100)
		}
		if p.Trend.Direction != "" && p.Trend.Direction != model.TrendInsufficient {
			fmt.Fprintf(&sb, "  Tendencia: %s (%+.1f%%)\n", p.Trend.Direction, p.Trend.ChangePct)
		}

		sb.WriteString("  Precios calculados por segmento:\n")
		for _, rec := range p.Computed {
			seg := findSegment(in.Segments, rec.SegmentID)
			floor := banding.Floor(p.Product, seg)
			marker := ""
			if rec.Floored {
				marker = " (ajustado al piso)"
			}
			fmt.Fprintf(&sb, "    %s: %d Gs%s, piso %d Gs\n", rec.SegmentID, rec.Price, marker, floor)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`Respondé con JSON exactamente en este formato:
{
  "executive_summary": "resumen del estado del mercado en 2-3 frases",
  "weekly_recommendation": "recomendación comercial para la semana",
  "general_alerts": ["observaciones relevantes, lista vacía si no hay"],
  "products": [
    {
      "product_id": "id",
      "segments": [
        {"segment_id": "id", "price": 12345, "rationale": "motivo breve del ajuste"}
      ]
    }
  ]
}`)

	return sb.String()
}

func findSegment(segments []model.SegmentPolicy, id string) model.SegmentPolicy {
	for _, s := range segments {
		if s.ID == id {
			return s
		}
	}
	return model.SegmentPolicy{}
}
