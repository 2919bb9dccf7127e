package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickyyue315/winmaxreturn/internal/inventory"
)

func checkByName(t *testing.T, checks []Check, name string) Check {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return Check{}
}

func TestQualityChecks_AllPass(t *testing.T) {
	t.Parallel()

	source := []inventory.Record{
		{Article: "106545309001", OM: "Candy", Site: "H001", NetStock: 10},
	}
	recs := []Recommendation{
		{Article: "106545309001", OM: "Candy", TransferSite: "H001", TransferQty: 5},
	}

	checks := qualityChecks(recs, source)
	require.Len(t, checks, 4)
	for _, c := range checks {
		assert.True(t, c.OK, "check %q should pass", c.Name)
	}
}

func TestQualityChecks_EmptyRecommendations(t *testing.T) {
	t.Parallel()

	checks := qualityChecks(nil, nil)
	require.Len(t, checks, 1)
	assert.Equal(t, CheckNoRecommendations, checks[0].Name)
	assert.True(t, checks[0].OK)
}

func TestQualityChecks_OMMismatch(t *testing.T) {
	t.Parallel()

	source := []inventory.Record{
		{Article: "106545309001", OM: "Candy", Site: "H001", NetStock: 10},
	}
	recs := []Recommendation{
		{Article: "106545309001", OM: "Hippo", TransferSite: "H001", TransferQty: 5},
	}

	c := checkByName(t, qualityChecks(recs, source), CheckSourceConsistency)
	assert.False(t, c.OK)
	assert.Contains(t, c.Detail, "Hippo")
}

func TestQualityChecks_TransferExceedsStock(t *testing.T) {
	t.Parallel()

	source := []inventory.Record{
		{Article: "106545309001", OM: "Candy", Site: "H001", NetStock: 3},
	}
	recs := []Recommendation{
		{Article: "106545309001", OM: "Candy", TransferSite: "H001", TransferQty: 5},
	}

	c := checkByName(t, qualityChecks(recs, source), CheckWithinStock)
	assert.False(t, c.OK)
}

func TestQualityChecks_NonPositiveQty(t *testing.T) {
	t.Parallel()

	source := []inventory.Record{
		{Article: "106545309001", OM: "Candy", Site: "H001", NetStock: 10},
	}
	recs := []Recommendation{
		{Article: "106545309001", OM: "Candy", TransferSite: "H001", TransferQty: 0},
	}

	c := checkByName(t, qualityChecks(recs, source), CheckPositiveQty)
	assert.False(t, c.OK)
}

func TestQualityChecks_ArticleTooLong(t *testing.T) {
	t.Parallel()

	source := []inventory.Record{
		{Article: "1234567890123", OM: "Candy", Site: "H001", NetStock: 10},
	}
	recs := []Recommendation{
		{Article: "1234567890123", OM: "Candy", TransferSite: "H001", TransferQty: 5},
	}

	c := checkByName(t, qualityChecks(recs, source), CheckArticleFormat)
	assert.False(t, c.OK)
}
