package inventory

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers expected in the first row of the snapshot workbook.
const (
	ColArticle         = "Article"
	ColDescription     = "Article Description"
	ColOM              = "OM"
	ColRPType          = "RP Type"
	ColSite            = "Site"
	ColNetStock        = "SaSa Net Stock"
	ColPendingReceived = "Pending Received"
	ColSafetyStock     = "Safety Stock"
	ColLastMonthSold   = "Last Month Sold Qty"
	ColMTDSold         = "MTD Sold Qty"
)

// requiredColumns must all be present; ColDescription is optional.
var requiredColumns = []string{
	ColArticle, ColOM, ColRPType, ColSite,
	ColNetStock, ColPendingReceived, ColSafetyStock,
	ColLastMonthSold, ColMTDSold,
}

// ErrNoData is returned when the workbook has no sheet or no rows below
// the header.
var ErrNoData = errors.New("workbook contains no data rows")

// MissingColumnsError reports required headers absent from the workbook.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("workbook is missing required columns: %s", strings.Join(e.Columns, ", "))
}

// ReadWorkbook parses the first sheet of an xlsx snapshot into Records,
// applying the normalisation rules: article canonicalisation, trimmed
// strings, non-negative integers, and sales figures clamped to salesCap
// with a per-record note. Rows with an empty article number are skipped.
func ReadWorkbook(r io.Reader, salesCap int) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoData
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, ErrNoData
	}

	cols, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return row[idx]
		}

		rec := Record{
			Article:         NormalizeArticle(cell(ColArticle)),
			Description:     safeString(cell(ColDescription)),
			OM:              safeString(cell(ColOM)),
			RPType:          safeString(cell(ColRPType)),
			Site:            safeString(cell(ColSite)),
			NetStock:        safeInt(cell(ColNetStock)),
			PendingReceived: safeInt(cell(ColPendingReceived)),
			SafetyStock:     safeInt(cell(ColSafetyStock)),
			LastMonthSold:   safeInt(cell(ColLastMonthSold)),
			MTDSold:         safeInt(cell(ColMTDSold)),
		}
		if rec.Article == "" {
			continue
		}

		var notes []string
		if salesCap > 0 {
			if rec.LastMonthSold > salesCap {
				rec.LastMonthSold = salesCap
				notes = append(notes, fmt.Sprintf("%s out of range", ColLastMonthSold))
			}
			if rec.MTDSold > salesCap {
				rec.MTDSold = salesCap
				notes = append(notes, fmt.Sprintf("%s out of range", ColMTDSold))
			}
		}
		rec.Notes = strings.Join(notes, "; ")

		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoData
	}
	return records, nil
}

// mapHeader resolves header names to column indices and verifies all
// required columns are present.
func mapHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}
	return cols, nil
}
