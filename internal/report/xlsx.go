package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/hidrobio/price-monitor/internal/model"
)

// WriteXLSX renders the report workbook: an alerts sheet first when any
// alert fired, then one summary sheet with per-product prices and
// recommendations.
func WriteXLSX(report *model.RunReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "report: create output dir")
	}

	f := xlsx.NewFile()

	if len(report.Alerts) > 0 {
		if err := addAlertSheet(f, report.Alerts); err != nil {
			return "", err
		}
	}
	if err := addSummarySheet(f, report); err != nil {
		return "", err
	}

	path := filepath.Join(outputDir, "reporte-precios-"+report.Date+".xlsx")
	if err := f.Save(path); err != nil {
		return "", eris.Wrap(err, "report: save xlsx")
	}
	return path, nil
}

func addAlertSheet(f *xlsx.File, alerts []model.Alert) error {
	sheet, err := f.AddSheet("Alertas")
	if err != nil {
		return eris.Wrap(err, "report: add alert sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Fecha", "Tipo", "Producto", "Fuente", "Severidad", "Detalle"} {
		header.AddCell().SetString(h)
	}

	for _, a := range alerts {
		row := sheet.AddRow()
		row.AddCell().SetString(a.Date)
		row.AddCell().SetString(string(a.Kind))
		row.AddCell().SetString(a.ProductID)
		row.AddCell().SetString(a.SourceID)
		row.AddCell().SetString(a.Severity)
		row.AddCell().SetString(a.Message)
	}
	return nil
}

func addSummarySheet(f *xlsx.File, report *model.RunReport) error {
	sheet, err := f.AddSheet("Precios " + report.Date)
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	if report.ExecutiveSummary != "" {
		sheet.AddRow().AddCell().SetString(report.ExecutiveSummary)
		sheet.AddRow()
	}

	for _, p := range report.Products {
		title := sheet.AddRow()
		title.AddCell().SetString(p.Name)

		if p.NoData {
			sheet.AddRow().AddCell().SetString("Sin datos de mercado hoy")
			sheet.AddRow()
			continue
		}

		if p.Snapshot != nil {
			stats := sheet.AddRow()
			stats.AddCell().SetString(fmt.Sprintf("Mediana: %d Gs", p.Snapshot.Median))
			stats.AddCell().SetString(fmt.Sprintf("Min: %d", p.Snapshot.Min))
			stats.AddCell().SetString(fmt.Sprintf("Max: %d", p.Snapshot.Max))
			stats.AddCell().SetString(fmt.Sprintf("Fuentes: %d", p.Snapshot.ObservationCount))
			if p.Snapshot.WeekChangePct != nil {
				stats.AddCell().SetString(fmt.Sprintf("Var. semanal: %+.1f%%", *p.Snapshot.WeekChangePct*100))
			}
		}

		if len(p.Prices) > 0 {
			header := sheet.AddRow()
			for _, h := range []string{"Fuente", "Producto relevado", "Precio (Gs)"} {
				header.AddCell().SetString(h)
			}
			for _, sp := range p.Prices {
				row := sheet.AddRow()
				row.AddCell().SetString(sp.SourceID)
				row.AddCell().SetString(sp.RawName)
				row.AddCell().SetInt64(sp.Price)
			}
		}

		if len(p.Recommendations) > 0 {
			header := sheet.AddRow()
			for _, h := range []string{"Segmento", "Precio recomendado (Gs)", "Margen %", "Justificación"} {
				header.AddCell().SetString(h)
			}
			for _, rec := range p.Recommendations {
				row := sheet.AddRow()
				row.AddCell().SetString(rec.SegmentID)
				row.AddCell().SetInt64(rec.Price)
				row.AddCell().SetString(fmt.Sprintf("%.0f%%", rec.MarginPct*100))
				row.AddCell().SetString(rec.Rationale)
			}
		}

		sheet.AddRow()
	}

	if report.WeeklyRecommendation != "" {
		sheet.AddRow().AddCell().SetString("Recomendación semanal: " + report.WeeklyRecommendation)
	}
	return nil
}
