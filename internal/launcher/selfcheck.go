package launcher

import (
	"context"
	"fmt"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/inventory"
)

// selfCheckRecords is the synthetic snapshot the self-check analyses:
// one ND site with stock, a top-selling RF site per article, and one RF
// site that qualifies for an overstock return.
func selfCheckRecords() []inventory.Record {
	return []inventory.Record{
		{Article: "106545309001", Description: "Self Check Product 1", OM: "Candy", RPType: "ND", Site: "H001", NetStock: 10, SafetyStock: 5},
		{Article: "106545309001", Description: "Self Check Product 1", OM: "Candy", RPType: "RF", Site: "H002", NetStock: 15, PendingReceived: 3, SafetyStock: 8, LastMonthSold: 2, MTDSold: 1},
		{Article: "106545309002", Description: "Self Check Product 2", OM: "Hippo", RPType: "RF", Site: "H003", NetStock: 8, PendingReceived: 2, SafetyStock: 4, LastMonthSold: 1, MTDSold: 1},
		{Article: "106545309002", Description: "Self Check Product 2", OM: "Hippo", RPType: "RF", Site: "H004", NetStock: 20, PendingReceived: 5, SafetyStock: 10, LastMonthSold: 8, MTDSold: 4},
	}
}

// SelfCheck exercises the core analysis invariants against the built-in
// fixture and returns one check per invariant. It never panics and
// never returns an empty slice.
func SelfCheck(ctx context.Context, engine *analysis.Engine, receiveSite string) []analysis.Check {
	checks := []analysis.Check{effectiveSoldCheck()}

	records := selfCheckRecords()

	both, err := engine.Run(ctx, records, analysis.ModeBoth)
	if err != nil {
		return append(checks, analysis.Check{
			Name:   "analysis run",
			Detail: fmt.Sprintf("combined run failed: %v", err),
		})
	}
	checks = append(checks, analysis.Check{Name: "analysis run", OK: true})

	checks = append(checks,
		ndRuleCheck(both),
		receiveSiteCheck(both, receiveSite),
		qualityGateCheck(both),
	)

	checks = append(checks, modeFilterCheck(ctx, engine, records, both))
	return checks
}

func effectiveSoldCheck() analysis.Check {
	cases := []struct {
		rec  inventory.Record
		want int
	}{
		{inventory.Record{LastMonthSold: 5, MTDSold: 3}, 5},
		{inventory.Record{LastMonthSold: 0, MTDSold: 8}, 8},
		{inventory.Record{}, 0},
	}
	for _, c := range cases {
		if got := c.rec.EffectiveSold(); got != c.want {
			return analysis.Check{
				Name:   "effective sold selection",
				Detail: fmt.Sprintf("last=%d mtd=%d: got %d, want %d", c.rec.LastMonthSold, c.rec.MTDSold, got, c.want),
			}
		}
	}
	return analysis.Check{Name: "effective sold selection", OK: true}
}

func ndRuleCheck(result *analysis.Result) analysis.Check {
	for _, r := range result.Recommendations {
		if r.Type == analysis.TypeND && r.TransferSite == "H001" && r.TransferQty == 10 {
			return analysis.Check{Name: "nd full-stock return", OK: true}
		}
	}
	return analysis.Check{
		Name:   "nd full-stock return",
		Detail: "expected a priority-1 return of the full net stock from H001",
	}
}

func receiveSiteCheck(result *analysis.Result, receiveSite string) analysis.Check {
	for _, r := range result.Recommendations {
		if r.ReceiveSite != receiveSite {
			return analysis.Check{
				Name:   "receive site routing",
				Detail: fmt.Sprintf("recommendation for %s routes to %q, want %q", r.TransferSite, r.ReceiveSite, receiveSite),
			}
		}
	}
	return analysis.Check{Name: "receive site routing", OK: true}
}

func qualityGateCheck(result *analysis.Result) analysis.Check {
	for _, c := range result.Checks {
		if !c.OK {
			return analysis.Check{
				Name:   "quality gates",
				Detail: fmt.Sprintf("check %q failed: %s", c.Name, c.Detail),
			}
		}
	}
	return analysis.Check{Name: "quality gates", OK: true}
}

func modeFilterCheck(ctx context.Context, engine *analysis.Engine, records []inventory.Record, both *analysis.Result) analysis.Check {
	ndOnly, err := engine.Run(ctx, records, analysis.ModeNDOnly)
	if err != nil {
		return analysis.Check{Name: "mode filtering", Detail: fmt.Sprintf("nd_only run failed: %v", err)}
	}
	rfOnly, err := engine.Run(ctx, records, analysis.ModeRFOnly)
	if err != nil {
		return analysis.Check{Name: "mode filtering", Detail: fmt.Sprintf("rf_only run failed: %v", err)}
	}

	for _, r := range ndOnly.Recommendations {
		if r.Type != analysis.TypeND {
			return analysis.Check{Name: "mode filtering", Detail: "nd_only produced a non-ND recommendation"}
		}
	}
	for _, r := range rfOnly.Recommendations {
		if r.Type != analysis.TypeRF {
			return analysis.Check{Name: "mode filtering", Detail: "rf_only produced a non-RF recommendation"}
		}
	}

	if len(ndOnly.Recommendations)+len(rfOnly.Recommendations) != len(both.Recommendations) {
		return analysis.Check{
			Name: "mode filtering",
			Detail: fmt.Sprintf("nd_only (%d) + rf_only (%d) != both (%d)",
				len(ndOnly.Recommendations), len(rfOnly.Recommendations), len(both.Recommendations)),
		}
	}
	return analysis.Check{Name: "mode filtering", OK: true}
}
