package domain

import (
	"strings"
)

// Tier is the subscription plan an account is on.
type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
)

// Tiers lists every known tier in ascending order.
var Tiers = []Tier{TierFree, TierStarter, TierProfessional}

func ParseTier(raw string) (Tier, bool) {
	tier := Tier(strings.ToLower(strings.TrimSpace(raw)))
	return tier, tier.Valid()
}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierProfessional:
		return true
	default:
		return false
	}
}

// Paid reports whether the tier can be bought through checkout.
func (t Tier) Paid() bool {
	return t == TierStarter || t == TierProfessional
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func ParseBillingCycle(raw string) (BillingCycle, bool) {
	cycle := BillingCycle(strings.ToLower(strings.TrimSpace(raw)))
	switch cycle {
	case BillingCycleMonthly, BillingCycleYearly:
		return cycle, true
	default:
		return "", false
	}
}

// PeriodDays is the access period bought by one payment.
func (c BillingCycle) PeriodDays() int {
	if c == BillingCycleYearly {
		return 365
	}
	return 30
}

// ActionKind is a billable plugin action.
type ActionKind string

const (
	ActionAssistant       ActionKind = "assistant_action"
	ActionContent         ActionKind = "content_generation"
	ActionChatbot         ActionKind = "chatbot_message"
	ActionInsightsRefresh ActionKind = "insights_refresh"
)

var ActionKinds = []ActionKind{ActionAssistant, ActionContent, ActionChatbot, ActionInsightsRefresh}

func ParseActionKind(raw string) (ActionKind, bool) {
	kind := ActionKind(strings.TrimSpace(raw))
	_, ok := kind.Counter()
	return kind, ok
}

// Counter returns the usage_records column holding this kind.
func (k ActionKind) Counter() (string, bool) {
	switch k {
	case ActionAssistant:
		return "assistant_actions", true
	case ActionContent:
		return "content_generations", true
	case ActionChatbot:
		return "chatbot_messages", true
	case ActionInsightsRefresh:
		return "insights_refreshes", true
	default:
		return "", false
	}
}

// LimitKey returns the catalog limit name for this kind.
func (k ActionKind) LimitKey() string {
	switch k {
	case ActionAssistant:
		return "assistant_monthly"
	case ActionContent:
		return "content_monthly"
	case ActionChatbot:
		return "chatbot_monthly"
	case ActionInsightsRefresh:
		return "insights_monthly"
	default:
		return ""
	}
}

// Label is the human form used in messages, e.g. "chatbot message".
func (k ActionKind) Label() string {
	return strings.ReplaceAll(string(k), "_", " ")
}

// Limits are the monthly caps and the concurrent site cap of a plan.
type Limits struct {
	AssistantMonthly int64 `mapstructure:"assistant_monthly" json:"assistant_monthly"`
	ContentMonthly   int64 `mapstructure:"content_monthly" json:"content_monthly"`
	ChatbotMonthly   int64 `mapstructure:"chatbot_monthly" json:"chatbot_monthly"`
	InsightsMonthly  int64 `mapstructure:"insights_monthly" json:"insights_monthly"`
	MaxSites         int64 `mapstructure:"max_sites" json:"max_sites"`
}

func (l Limits) For(kind ActionKind) int64 {
	switch kind {
	case ActionAssistant:
		return l.AssistantMonthly
	case ActionContent:
		return l.ContentMonthly
	case ActionChatbot:
		return l.ChatbotMonthly
	case ActionInsightsRefresh:
		return l.InsightsMonthly
	default:
		return 0
	}
}

// Weighted is the limit counterpart of a usage record's weighted total.
func (l Limits) Weighted() int64 {
	return WeightedTotal(l.AssistantMonthly, l.ContentMonthly, l.ChatbotMonthly, l.InsightsMonthly)
}

// WeightedTotal blends the four counters into one number.
func WeightedTotal(assistant, content, chatbot, insights int64) int64 {
	return assistant + chatbot + content*4 + insights*10
}

// Percentage returns used/limit as a whole percentage capped at 100.
func Percentage(used, limit int64) int {
	if limit <= 0 || used <= 0 {
		return 0
	}
	pct := used * 100 / limit
	if pct > 100 {
		return 100
	}
	return int(pct)
}

const (
	FeatureAssistant          = "assistant"
	FeatureChatbot            = "chatbot"
	FeatureInsights           = "insights"
	FeatureContentStudio      = "content_studio"
	FeatureInventoryAutopilot = "inventory_autopilot"
	FeatureCompetitorWatch    = "competitor_watch"
	FeatureAIMemory           = "ai_memory"
)

var FeatureNames = []string{
	FeatureAssistant,
	FeatureChatbot,
	FeatureInsights,
	FeatureContentStudio,
	FeatureInventoryAutopilot,
	FeatureCompetitorWatch,
	FeatureAIMemory,
}

// Price is an amount in minor currency units.
type Price struct {
	Amount   int64  `mapstructure:"amount" json:"amount"`
	Currency string `mapstructure:"currency" json:"currency"`
}

type Plan struct {
	Tier     Tier                   `mapstructure:"-" json:"plan"`
	Limits   Limits                 `mapstructure:"limits" json:"limits"`
	Features map[string]bool        `mapstructure:"features" json:"features"`
	Prices   map[BillingCycle]Price `mapstructure:"prices" json:"-"`
}

// FeatureSet returns a complete flag map with every known feature present.
func (p Plan) FeatureSet() map[string]bool {
	out := make(map[string]bool, len(FeatureNames))
	for _, name := range FeatureNames {
		out[name] = p.Features[name]
	}
	return out
}
