package catalog

import "github.com/smallbiznis/licensor/internal/plan/domain"

// Table is the full plan catalog keyed by tier.
type Table struct {
	Plans map[domain.Tier]domain.Plan `mapstructure:"plans"`
}

func DefaultTable() Table {
	return Table{Plans: map[domain.Tier]domain.Plan{
		domain.TierFree: {
			Tier: domain.TierFree,
			Limits: domain.Limits{
				AssistantMonthly: 50,
				ContentMonthly:   10,
				ChatbotMonthly:   100,
				InsightsMonthly:  5,
				MaxSites:         1,
			},
			Features: features(domain.FeatureAssistant, domain.FeatureInsights),
		},
		domain.TierStarter: {
			Tier: domain.TierStarter,
			Limits: domain.Limits{
				AssistantMonthly: 500,
				ContentMonthly:   100,
				ChatbotMonthly:   1000,
				InsightsMonthly:  50,
				MaxSites:         1,
			},
			Features: features(
				domain.FeatureAssistant,
				domain.FeatureChatbot,
				domain.FeatureInsights,
				domain.FeatureContentStudio,
				domain.FeatureAIMemory,
			),
			Prices: map[domain.BillingCycle]domain.Price{
				domain.BillingCycleMonthly: {Amount: 2900, Currency: "usd"},
				domain.BillingCycleYearly:  {Amount: 29000, Currency: "usd"},
			},
		},
		domain.TierProfessional: {
			Tier: domain.TierProfessional,
			Limits: domain.Limits{
				AssistantMonthly: 2000,
				ContentMonthly:   500,
				ChatbotMonthly:   5000,
				InsightsMonthly:  200,
				MaxSites:         5,
			},
			Features: features(domain.FeatureNames...),
			Prices: map[domain.BillingCycle]domain.Price{
				domain.BillingCycleMonthly: {Amount: 7900, Currency: "usd"},
				domain.BillingCycleYearly:  {Amount: 79000, Currency: "usd"},
			},
		},
	}}
}

func features(enabled ...string) map[string]bool {
	out := make(map[string]bool, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		out[name] = false
	}
	for _, name := range enabled {
		out[name] = true
	}
	return out
}
