// Package report renders analysis results as styled xlsx workbooks.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
)

const (
	SheetRecommendations = "Recommendations"
	SheetSummary         = "Summary"

	headerFillColor = "366092"
)

var recommendationHeaders = []string{
	"Article", "Product Desc", "OM", "Transfer Site", "Receive Site", "Transfer Qty", "Notes",
}

var recommendationWidths = []float64{15, 30, 10, 15, 15, 12, 40}

// Filename returns the download name for a report generated at t,
// e.g. return_recommendations_20250915.xlsx.
func Filename(t time.Time) string {
	return fmt.Sprintf("return_recommendations_%s.xlsx", t.Format("20060102"))
}

// Write renders the full two-sheet report for result into w.
func Write(w io.Writer, result *analysis.Result) error {
	f, err := Build(result)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// Build assembles the report workbook: a styled recommendation table and
// a summary sheet with the KPI block and rollup tables. The caller owns
// the returned file and must Close it.
func Build(result *analysis.Result) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetRecommendations); err != nil {
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, fmt.Errorf("creating summary sheet: %w", err)
	}

	styles, err := newStyleSet(f)
	if err != nil {
		return nil, err
	}

	if err := writeRecommendations(f, styles, result); err != nil {
		return nil, err
	}
	if err := writeSummary(f, styles, result); err != nil {
		return nil, err
	}

	return f, nil
}

// styleSet caches the style IDs shared by both sheets.
type styleSet struct {
	header   int
	bordered int
	title    int
	subtitle int
	label    int
}

func newStyleSet(f *excelize.File) (*styleSet, error) {
	border := []excelize.Border{
		{Type: "left", Style: 1, Color: "000000"},
		{Type: "right", Style: 1, Color: "000000"},
		{Type: "top", Style: 1, Color: "000000"},
		{Type: "bottom", Style: 1, Color: "000000"},
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFillColor}},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	bordered, err := f.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		return nil, fmt.Errorf("creating border style: %w", err)
	}

	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return nil, fmt.Errorf("creating title style: %w", err)
	}

	subtitle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return nil, fmt.Errorf("creating subtitle style: %w", err)
	}

	label, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating label style: %w", err)
	}

	return &styleSet{header: header, bordered: bordered, title: title, subtitle: subtitle, label: label}, nil
}

func writeRecommendations(f *excelize.File, styles *styleSet, result *analysis.Result) error {
	for i, h := range recommendationHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("resolving header cell: %w", err)
		}
		if err := f.SetCellValue(SheetRecommendations, cell, h); err != nil {
			return fmt.Errorf("writing header %q: %w", h, err)
		}
		if err := f.SetCellStyle(SheetRecommendations, cell, cell, styles.header); err != nil {
			return fmt.Errorf("styling header %q: %w", h, err)
		}

		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("resolving column name: %w", err)
		}
		if err := f.SetColWidth(SheetRecommendations, col, col, recommendationWidths[i]); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	for i, r := range result.Recommendations {
		row := []any{r.Article, r.ProductDesc, r.OM, r.TransferSite, r.ReceiveSite, r.TransferQty, r.Notes}
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("resolving row cell: %w", err)
		}
		if err := f.SetSheetRow(SheetRecommendations, start, &row); err != nil {
			return fmt.Errorf("writing recommendation row %d: %w", i+1, err)
		}
		end, err := excelize.CoordinatesToCellName(len(row), i+2)
		if err != nil {
			return fmt.Errorf("resolving row end cell: %w", err)
		}
		if err := f.SetCellStyle(SheetRecommendations, start, end, styles.bordered); err != nil {
			return fmt.Errorf("styling recommendation row %d: %w", i+1, err)
		}
	}

	return nil
}

func writeSummary(f *excelize.File, styles *styleSet, result *analysis.Result) error {
	w := &summaryWriter{f: f, styles: styles, row: 1}

	w.styledCell("A", "KPI Summary", styles.title)
	w.row++
	w.styledCell("A", "Analysis type: "+result.Mode.Description(), styles.label)
	w.row += 2

	w.styledCell("A", "Total recommendations:", styles.label)
	w.cell("B", result.Summary.RecommendationCount)
	w.row++
	w.styledCell("A", "Total return quantity:", styles.label)
	w.cell("B", result.Summary.TotalTransferQty)
	w.row += 3

	if result.Summary.RecommendationCount > 0 {
		w.table("By Article", []string{"Article", "Total Qty", "OM Count"}, len(result.Summary.ByArticle), func(i int) []any {
			s := result.Summary.ByArticle[i]
			return []any{s.Article, s.TransferQty, s.OMCount}
		})
		w.table("By OM", []string{"OM", "Total Qty", "Article Count"}, len(result.Summary.ByOM), func(i int) []any {
			s := result.Summary.ByOM[i]
			return []any{s.OM, s.TransferQty, s.ArticleCount}
		})
		w.table("By Type", []string{"Type", "Recommendations", "Total Qty"}, len(result.Summary.ByType), func(i int) []any {
			s := result.Summary.ByType[i]
			return []any{s.Key, s.Count, s.TransferQty}
		})
		w.table("By Priority", []string{"Priority", "Recommendations", "Total Qty"}, len(result.Summary.ByPriority), func(i int) []any {
			s := result.Summary.ByPriority[i]
			return []any{s.Key, s.Count, s.TransferQty}
		})
	}

	if w.err != nil {
		return w.err
	}
	if err := f.SetColWidth(SheetSummary, "A", "C", 20); err != nil {
		return fmt.Errorf("setting summary column widths: %w", err)
	}
	return nil
}

// summaryWriter tracks the current row and the first write error while
// laying out the summary sheet top to bottom.
type summaryWriter struct {
	f      *excelize.File
	styles *styleSet
	row    int
	err    error
}

func (w *summaryWriter) cell(col string, value any) {
	if w.err != nil {
		return
	}
	w.err = w.f.SetCellValue(SheetSummary, fmt.Sprintf("%s%d", col, w.row), value)
}

func (w *summaryWriter) styledCell(col string, value any, style int) {
	w.cell(col, value)
	if w.err != nil {
		return
	}
	ref := fmt.Sprintf("%s%d", col, w.row)
	w.err = w.f.SetCellStyle(SheetSummary, ref, ref, style)
}

func (w *summaryWriter) table(title string, headers []string, n int, rowAt func(int) []any) {
	if w.err != nil {
		return
	}

	w.styledCell("A", title, w.styles.subtitle)
	w.row += 2

	cols := []string{"A", "B", "C"}
	for i, h := range headers {
		w.styledCell(cols[i], h, w.styles.header)
	}
	w.row++

	for i := 0; i < n; i++ {
		for j, v := range rowAt(i) {
			w.cell(cols[j], v)
		}
		w.row++
	}
	w.row += 2
}
