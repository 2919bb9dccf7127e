// Package inventory models the inventory/sales snapshot rows the analysis
// engine consumes and reads them from xlsx workbooks.
package inventory

import (
	"math"
	"strconv"
	"strings"
)

// Record is one site/article row of the inventory snapshot.
type Record struct {
	Article         string `json:"article"`
	Description     string `json:"description"`
	OM              string `json:"om"`
	RPType          string `json:"rpType"`
	Site            string `json:"site"`
	NetStock        int    `json:"netStock"`
	PendingReceived int    `json:"pendingReceived"`
	SafetyStock     int    `json:"safetyStock"`
	LastMonthSold   int    `json:"lastMonthSold"`
	MTDSold         int    `json:"mtdSold"`

	// Notes records normalisation corrections applied to this row
	// (e.g. a sales figure clamped to the cap).
	Notes string `json:"notes,omitempty"`
}

// EffectiveSold is the sales figure the return rules evaluate: last
// month's quantity when available, otherwise the month-to-date quantity.
func (r Record) EffectiveSold() int {
	if r.LastMonthSold > 0 {
		return r.LastMonthSold
	}
	return r.MTDSold
}

// NormalizeArticle canonicalises an article number cell. Spreadsheet
// round-trips frequently turn article codes into floats ("1.06545309001e+11"
// is already lost, but "106545309001.0" is recoverable); the fractional
// part is stripped and pure digit strings are zero-padded to 12 characters.
// Anything else passes through trimmed.
func NormalizeArticle(value string) string {
	s := strings.TrimSpace(value)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if s != "" && isDigits(s) && len(s) <= 12 {
		return strings.Repeat("0", 12-len(s)) + s
	}
	return s
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// safeInt converts a cell to a non-negative integer. Empty, unparsable,
// negative, and non-finite values all collapse to 0. ParseFloat accepts
// "NaN"/"Inf" and arbitrarily large exponents, and converting those to
// int is undefined, so they are rejected before the conversion.
func safeInt(value string) int {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt
	}
	return int(f)
}

// safeString trims a cell; nothing else.
func safeString(value string) string {
	return strings.TrimSpace(value)
}
