package analysis

import (
	"fmt"

	"github.com/rickyyue315/winmaxreturn/internal/inventory"
)

// Quality check names, referenced by tests and the selftest command.
const (
	CheckSourceConsistency = "article/OM consistency"
	CheckPositiveQty       = "positive transfer quantities"
	CheckWithinStock       = "transfer within net stock"
	CheckArticleFormat     = "article format"
	CheckNoRecommendations = "no recommendations generated"
)

type siteKey struct {
	article string
	site    string
}

// qualityChecks validates the generated recommendations against the
// source snapshot. Every check runs; a failed check carries a detail
// naming the first offending recommendation.
func qualityChecks(recs []Recommendation, source []inventory.Record) []Check {
	if len(recs) == 0 {
		return []Check{{Name: CheckNoRecommendations, OK: true}}
	}

	index := make(map[siteKey]inventory.Record, len(source))
	for _, rec := range source {
		index[siteKey{rec.Article, rec.Site}] = rec
	}

	checks := make([]Check, 0, 4)

	consistency := Check{Name: CheckSourceConsistency, OK: true}
	for _, r := range recs {
		src, ok := index[siteKey{r.Article, r.TransferSite}]
		if !ok || src.OM != r.OM {
			consistency.OK = false
			consistency.Detail = fmt.Sprintf("article %s at site %s does not match OM %q in the source data", r.Article, r.TransferSite, r.OM)
			break
		}
	}
	checks = append(checks, consistency)

	positive := Check{Name: CheckPositiveQty, OK: true}
	for _, r := range recs {
		if r.TransferQty <= 0 {
			positive.OK = false
			positive.Detail = fmt.Sprintf("article %s at site %s has transfer qty %d", r.Article, r.TransferSite, r.TransferQty)
			break
		}
	}
	checks = append(checks, positive)

	within := Check{Name: CheckWithinStock, OK: true}
	for _, r := range recs {
		src, ok := index[siteKey{r.Article, r.TransferSite}]
		if ok && r.TransferQty > src.NetStock {
			within.OK = false
			within.Detail = fmt.Sprintf("article %s at site %s transfers %d but net stock is %d", r.Article, r.TransferSite, r.TransferQty, src.NetStock)
			break
		}
	}
	checks = append(checks, within)

	format := Check{Name: CheckArticleFormat, OK: true}
	for _, r := range recs {
		if len(r.Article) > 12 {
			format.OK = false
			format.Detail = fmt.Sprintf("article %q exceeds 12 characters", r.Article)
			break
		}
	}
	checks = append(checks, format)

	return checks
}
