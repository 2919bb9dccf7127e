package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects which return rules an analysis run evaluates.
type Mode string

const (
	// ModeBoth evaluates ND and RF rules.
	ModeBoth Mode = "both"
	// ModeNDOnly evaluates only the ND full-stock return rule.
	ModeNDOnly Mode = "nd_only"
	// ModeRFOnly evaluates only the RF overstock return rule.
	ModeRFOnly Mode = "rf_only"
)

// ErrUnknownMode is wrapped by ParseMode for unrecognised mode strings.
var ErrUnknownMode = errors.New("unknown analysis mode")

// ParseMode validates a mode string. The empty string means ModeBoth.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeBoth, nil
	case ModeBoth, ModeNDOnly, ModeRFOnly:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) includesND() bool { return m == ModeBoth || m == ModeNDOnly }
func (m Mode) includesRF() bool { return m == ModeBoth || m == ModeRFOnly }

// Description returns the human-readable label used in reports.
func (m Mode) Description() string {
	switch m {
	case ModeNDOnly:
		return "ND returns only"
	case ModeRFOnly:
		return "RF overstock returns only"
	default:
		return "Combined ND + RF returns"
	}
}

// Recommendation priorities and types.
const (
	PriorityND = 1
	PriorityRF = 2

	TypeND = "ND"
	TypeRF = "RF"
)

// Recommendation is one proposed stock transfer from a site back to the
// receive warehouse.
type Recommendation struct {
	Article      string `json:"article"`
	ProductDesc  string `json:"productDesc"`
	OM           string `json:"om"`
	TransferSite string `json:"transferSite"`
	ReceiveSite  string `json:"receiveSite"`
	TransferQty  int    `json:"transferQty"`
	Notes        string `json:"notes"`
	Priority     int    `json:"priority"`
	Type         string `json:"type"`
}

// ArticleStat aggregates recommendations for one article.
type ArticleStat struct {
	Article     string `json:"article"`
	TransferQty int    `json:"transferQty"`
	OMCount     int    `json:"omCount"`
}

// OMStat aggregates recommendations for one operations manager.
type OMStat struct {
	OM           string `json:"om"`
	TransferQty  int    `json:"transferQty"`
	ArticleCount int    `json:"articleCount"`
}

// GroupStat aggregates recommendations by type or priority.
type GroupStat struct {
	Key         string `json:"key"`
	Count       int    `json:"count"`
	TransferQty int    `json:"transferQty"`
}

// Summary is the rollup block of a Result.
type Summary struct {
	RecommendationCount int           `json:"recommendationCount"`
	TotalTransferQty    int           `json:"totalTransferQty"`
	NDCount             int           `json:"ndCount"`
	RFCount             int           `json:"rfCount"`
	ByArticle           []ArticleStat `json:"byArticle"`
	ByOM                []OMStat      `json:"byOM"`
	ByType              []GroupStat   `json:"byType"`
	ByPriority          []GroupStat   `json:"byPriority"`
}

// Check is one quality-gate outcome attached to a Result.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Result is the full outcome of one analysis run.
type Result struct {
	Mode            Mode             `json:"mode"`
	GeneratedAt     time.Time        `json:"generatedAt"`
	RecordCount     int              `json:"recordCount"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         Summary          `json:"summary"`
	Checks          []Check          `json:"checks"`
}
