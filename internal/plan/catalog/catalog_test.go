package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultTable(t *testing.T) {
	h := NewStatic(DefaultTable())

	starter := h.Resolve(domain.TierStarter)
	assert.Equal(t, int64(500), starter.Limits.AssistantMonthly)
	assert.Equal(t, int64(1), starter.Limits.MaxSites)
	assert.True(t, starter.Features[domain.FeatureChatbot])
	assert.False(t, starter.Features[domain.FeatureCompetitorWatch])

	pro := h.Resolve(domain.TierProfessional)
	assert.Equal(t, int64(5), pro.Limits.MaxSites)
	for _, name := range domain.FeatureNames {
		assert.True(t, pro.Features[name], name)
	}

	require.NoError(t, validate(DefaultTable()))
}

func TestResolveUnknownTierFallsBackToFree(t *testing.T) {
	h := NewStatic(DefaultTable())

	p := h.Resolve(domain.Tier("enterprise"))
	assert.Equal(t, domain.TierFree, p.Tier)
	assert.Equal(t, int64(50), p.Limits.AssistantMonthly)
}

func TestPrice(t *testing.T) {
	h := NewStatic(DefaultTable())

	price, err := h.Price(domain.TierProfessional, domain.BillingCycleYearly)
	require.NoError(t, err)
	assert.Equal(t, domain.Price{Amount: 79000, Currency: "usd"}, price)

	_, err = h.Price(domain.TierFree, domain.BillingCycleMonthly)
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)

	_, err = h.Price(domain.TierStarter, domain.BillingCycle("weekly"))
	assert.ErrorIs(t, err, domain.ErrInvalidBillingCycle)
}

func TestNewLoadsOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`plans:
  starter:
    limits:
      assistant_monthly: 750
      content_monthly: 100
      chatbot_monthly: 1000
      insights_monthly: 50
      max_sites: 2
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans.yml"), content, 0o600))

	h, err := New(Params{Cfg: config.Config{PlanConfigPath: dir}, Log: zap.NewNop()})
	require.NoError(t, err)

	starter := h.Resolve(domain.TierStarter)
	assert.Equal(t, int64(750), starter.Limits.AssistantMonthly)
	assert.Equal(t, int64(2), starter.Limits.MaxSites)
	assert.True(t, starter.Features[domain.FeatureContentStudio])
	assert.Equal(t, int64(2900), starter.Prices[domain.BillingCycleMonthly].Amount)

	assert.Equal(t, int64(2000), h.Resolve(domain.TierProfessional).Limits.AssistantMonthly)
}

func TestNewRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`plans:
  free:
    limits:
      assistant_monthly: 10
      max_sites: 0
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans.yml"), content, 0o600))

	_, err := New(Params{Cfg: config.Config{PlanConfigPath: dir}, Log: zap.NewNop()})
	assert.Error(t, err)
}
