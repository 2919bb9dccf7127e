// Package analysis implements the ND/RF return recommendation rules.
package analysis

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/rickyyue315/winmaxreturn/internal/config"
	"github.com/rickyyue315/winmaxreturn/internal/inventory"
)

// Engine evaluates the return rules against an inventory snapshot.
type Engine struct {
	cfg config.AnalysisConfig
}

// New constructs an Engine with the given rule constants.
func New(cfg config.AnalysisConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Run evaluates the selected rules against records and returns the
// recommendations, summary rollups, and quality checks. Records are
// evaluated in input order; a record matches at most one rule (ND takes
// precedence over RF).
func (e *Engine) Run(ctx context.Context, records []inventory.Record, mode Mode) (*Result, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeBoth
	}

	ctx, span := otel.Tracer("winmaxreturn").Start(ctx, "analysis.run")
	defer span.End()

	thresholds, err := e.articleThresholds(ctx, records)
	if err != nil {
		return nil, err
	}

	recs := make([]Recommendation, 0)
	for _, rec := range records {
		switch {
		case rec.RPType == TypeND && rec.NetStock > 0 && mode.includesND():
			recs = append(recs, e.ndRecommendation(rec))
		case rec.RPType == TypeRF && mode.includesRF():
			if r, ok := e.rfRecommendation(rec, thresholds[rec.Article]); ok {
				recs = append(recs, r)
			}
		}
	}

	result := &Result{
		Mode:            mode,
		GeneratedAt:     time.Now().UTC(),
		RecordCount:     len(records),
		Recommendations: recs,
		Summary:         summarize(recs),
		Checks:          qualityChecks(recs, records),
	}

	span.SetAttributes(
		attribute.Int("analysis.records", len(records)),
		attribute.Int("analysis.recommendations", len(recs)),
		attribute.String("analysis.mode", string(mode)),
	)

	return result, nil
}

// ndRecommendation builds the priority-1 full-stock return for an ND record.
func (e *Engine) ndRecommendation(rec inventory.Record) Recommendation {
	return Recommendation{
		Article:      rec.Article,
		ProductDesc:  rec.Description,
		OM:           rec.OM,
		TransferSite: rec.Site,
		ReceiveSite:  e.cfg.ReceiveSite,
		TransferQty:  rec.NetStock,
		Notes:        joinNotes("ND full-stock return (priority 1)", rec.Notes),
		Priority:     PriorityND,
		Type:         TypeND,
	}
}

// rfRecommendation builds the priority-2 overstock return for an RF record,
// or reports ok=false when the record does not qualify. The rules:
// available stock (net + pending) must exceed safety stock, the site must
// not be a top seller for the article, the transfer must leave at least
// SafetyFloorPct of safety stock behind, and the final quantity must be at
// least MinTransferQty without exceeding net stock.
func (e *Engine) rfRecommendation(rec inventory.Record, threshold float64) (Recommendation, bool) {
	available := rec.NetStock + rec.PendingReceived
	if available <= rec.SafetyStock {
		return Recommendation{}, false
	}
	if float64(rec.EffectiveSold()) >= threshold {
		return Recommendation{}, false
	}

	potential := available - rec.SafetyStock
	minRemaining := int(float64(rec.SafetyStock) * e.cfg.SafetyFloorPct)
	if minRemaining < 0 {
		minRemaining = 0
	}
	maxTransfer := available - minRemaining

	qty := potential
	if maxTransfer < qty {
		qty = maxTransfer
	}
	if qty < e.cfg.MinTransferQty || qty > rec.NetStock {
		return Recommendation{}, false
	}

	return Recommendation{
		Article:      rec.Article,
		ProductDesc:  rec.Description,
		OM:           rec.OM,
		TransferSite: rec.Site,
		ReceiveSite:  e.cfg.ReceiveSite,
		TransferQty:  qty,
		Notes:        joinNotes("RF overstock return (priority 2)", rec.Notes),
		Priority:     PriorityRF,
		Type:         TypeRF,
	}, true
}

// articleThresholds computes, per article, the sales quantity above which
// a site counts as a top seller. Articles are independent, so the
// computation fans out across an errgroup bounded by GOMAXPROCS.
func (e *Engine) articleThresholds(ctx context.Context, records []inventory.Record) (map[string]float64, error) {
	grouped := make(map[string][]float64)
	for _, rec := range records {
		grouped[rec.Article] = append(grouped[rec.Article], float64(rec.EffectiveSold()))
	}

	thresholds := make(map[string]float64, len(grouped))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for article, sold := range grouped {
		article, sold := article, sold
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			th := percentile(sold, e.cfg.TopSellerPctile)
			mu.Lock()
			thresholds[article] = th
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("computing article thresholds: %w", err)
	}
	return thresholds, nil
}

// percentile returns the p-th percentile (0–100) of vals using linear
// interpolation between closest ranks. An empty slice yields +Inf so that
// no sale quantity can reach the threshold.
func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return math.Inf(1)
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// summarize builds the rollup block. Grouped stats are sorted by
// descending transfer quantity, ties broken by key, so report tables are
// deterministic.
func summarize(recs []Recommendation) Summary {
	s := Summary{
		RecommendationCount: len(recs),
		ByArticle:           []ArticleStat{},
		ByOM:                []OMStat{},
		ByType:              []GroupStat{},
		ByPriority:          []GroupStat{},
	}

	byArticle := make(map[string]*ArticleStat)
	articleOMs := make(map[string]map[string]struct{})
	byOM := make(map[string]*OMStat)
	omArticles := make(map[string]map[string]struct{})
	byType := make(map[string]*GroupStat)
	byPriority := make(map[string]*GroupStat)

	for _, r := range recs {
		s.TotalTransferQty += r.TransferQty
		switch r.Type {
		case TypeND:
			s.NDCount++
		case TypeRF:
			s.RFCount++
		}

		as, ok := byArticle[r.Article]
		if !ok {
			as = &ArticleStat{Article: r.Article}
			byArticle[r.Article] = as
			articleOMs[r.Article] = make(map[string]struct{})
		}
		as.TransferQty += r.TransferQty
		articleOMs[r.Article][r.OM] = struct{}{}

		oms, ok := byOM[r.OM]
		if !ok {
			oms = &OMStat{OM: r.OM}
			byOM[r.OM] = oms
			omArticles[r.OM] = make(map[string]struct{})
		}
		oms.TransferQty += r.TransferQty
		omArticles[r.OM][r.Article] = struct{}{}

		addGroup(byType, r.Type, r.TransferQty)
		addGroup(byPriority, fmt.Sprintf("Priority %d", r.Priority), r.TransferQty)
	}

	for article, as := range byArticle {
		as.OMCount = len(articleOMs[article])
		s.ByArticle = append(s.ByArticle, *as)
	}
	sort.Slice(s.ByArticle, func(i, j int) bool {
		if s.ByArticle[i].TransferQty != s.ByArticle[j].TransferQty {
			return s.ByArticle[i].TransferQty > s.ByArticle[j].TransferQty
		}
		return s.ByArticle[i].Article < s.ByArticle[j].Article
	})

	for om, oms := range byOM {
		oms.ArticleCount = len(omArticles[om])
		s.ByOM = append(s.ByOM, *oms)
	}
	sort.Slice(s.ByOM, func(i, j int) bool {
		if s.ByOM[i].TransferQty != s.ByOM[j].TransferQty {
			return s.ByOM[i].TransferQty > s.ByOM[j].TransferQty
		}
		return s.ByOM[i].OM < s.ByOM[j].OM
	})

	s.ByType = sortedGroups(byType)
	s.ByPriority = sortedGroups(byPriority)

	return s
}

func addGroup(m map[string]*GroupStat, key string, qty int) {
	g, ok := m[key]
	if !ok {
		g = &GroupStat{Key: key}
		m[key] = g
	}
	g.Count++
	g.TransferQty += qty
}

func sortedGroups(m map[string]*GroupStat) []GroupStat {
	out := make([]GroupStat, 0, len(m))
	for _, g := range m {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func joinNotes(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
