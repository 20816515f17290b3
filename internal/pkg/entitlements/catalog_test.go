package entitlements

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/clock"
)

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
		ok   bool
	}{
		{in: "free", want: PlanFree, ok: true},
		{in: " PRO ", want: PlanPro, ok: true},
		{in: "Ultra", want: PlanUltra, ok: true},
		{in: "premium", want: PlanFree, ok: false},
	}
	for _, tt := range tests {
		got, ok := NormalizePlan(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("NormalizePlan(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	free, ok := c.Plan(PlanFree)
	require.True(t, ok)
	assert.Equal(t, Quota{Limit: 10, Period: clock.PeriodDay}, free.Quotas[FeatureAIChat])
	_, inPlan := free.Quota(FeatureAIImage)
	assert.False(t, inPlan)

	assert.Equal(t, 3, c.TrialDays())
	pro, _ := c.Plan(PlanPro)
	assert.Equal(t, 90, pro.BillingPeriodDays)

	for i := 1; i < len(AllPlans); i++ {
		assert.Less(t, c.Rank(AllPlans[i-1]), c.Rank(AllPlans[i]))
	}

	plans := c.Plans()
	require.Len(t, plans, len(AllPlans))
	assert.Equal(t, PlanFree, plans[0].ID)
	assert.Equal(t, PlanUltra, plans[len(plans)-1].ID)
}

func TestCatalogLookupByCodeAndPrice(t *testing.T) {
	c := DefaultCatalog()

	def, ok := c.ByCode("PRO")
	require.True(t, ok)
	assert.Equal(t, PlanPro, def.ID)

	def, ok = c.ByPrice(9900)
	require.True(t, ok)
	assert.Equal(t, PlanBasic, def.ID)

	_, ok = c.ByPrice(1)
	assert.False(t, ok)
	_, ok = c.ByCode("gold")
	assert.False(t, ok)
}

func TestNewCatalogValidation(t *testing.T) {
	plans := DefaultPlans()
	plans[2].PriceMinor = 0
	_, err := NewCatalog(plans)
	assert.Error(t, err)

	plans = DefaultPlans()
	plans[0].Quotas["teleport"] = Quota{Limit: 1, Period: clock.PeriodDay}
	_, err = NewCatalog(plans)
	assert.Error(t, err)

	plans = DefaultPlans()
	plans[0].Quotas[FeatureAIChat] = Quota{Limit: 1, Period: "week"}
	_, err = NewCatalog(plans)
	assert.Error(t, err)

	_, err = NewCatalog(DefaultPlans()[:4])
	assert.Error(t, err)
}

func TestLoadCatalogFromYAML(t *testing.T) {
	c, err := LoadCatalog(filepath.Join("..", "..", "..", "configs", "plans.yaml"))
	require.NoError(t, err)

	def, ok := c.ByCode("smartx_pro")
	require.True(t, ok)
	assert.Equal(t, PlanPro, def.ID)
	assert.Equal(t, int64(24900), def.PriceMinor)
	assert.True(t, def.Quotas[FeatureDownloader].Unlimited())

	free, _ := c.Plan(PlanFree)
	assert.Equal(t, int64(10), free.Quotas[FeatureAIChat].Limit)
}

func TestLoadCatalogRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  - id: gold\n"), 0o600))

	_, err := LoadCatalog(path)
	assert.Error(t, err)
}

func TestCatalogNormalizesFeatureKeys(t *testing.T) {
	plans := DefaultPlans()
	q := plans[0].Quotas[FeatureAIChat]
	delete(plans[0].Quotas, FeatureAIChat)
	plans[0].Quotas[" AI_Chat"] = q

	c, err := NewCatalog(plans)
	require.NoError(t, err)
	free, _ := c.Plan(PlanFree)
	got, ok := free.Quota(FeatureAIChat)
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Limit)

	plans = DefaultPlans()
	plans[0].Quotas["AI_CHAT"] = Quota{Limit: 99, Period: clock.PeriodDay}
	_, err = NewCatalog(plans)
	assert.ErrorContains(t, err, "defined twice")
}

func TestLoadCatalogNormalizesYAMLKeys(t *testing.T) {
	base, err := os.ReadFile(filepath.Join("..", "..", "..", "configs", "plans.yaml"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "plans.yaml")
	raw := strings.Replace(string(base), "      ai_chat: { limit: 10, period: day }", "      AI_Chat: { limit: 10, period: day }", 1)
	require.NotEqual(t, string(base), raw)
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	free, _ := c.Plan(PlanFree)
	got, ok := free.Quota(FeatureAIChat)
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Limit)
}
