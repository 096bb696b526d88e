package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
)

const MonthKeyLayout = "2006-01"

// MonthKey returns the UTC calendar month t falls in, e.g. "2025-03".
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// UsageRecord holds one site's counters for one calendar month.
type UsageRecord struct {
	ID                 snowflake.ID `json:"id"`
	AccountID          snowflake.ID `json:"account_id"`
	SiteID             string       `json:"site_id"`
	Month              string       `json:"month"`
	AssistantActions   int64        `json:"assistant_actions"`
	ContentGenerations int64        `json:"content_generations"`
	ChatbotMessages    int64        `json:"chatbot_messages"`
	InsightsRefreshes  int64        `json:"insights_refreshes"`
	// WeightedTotal is generated by the database; never written.
	WeightedTotal int64     `json:"weighted_total"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (r UsageRecord) Count(kind plandomain.ActionKind) int64 {
	switch kind {
	case plandomain.ActionAssistant:
		return r.AssistantActions
	case plandomain.ActionContent:
		return r.ContentGenerations
	case plandomain.ActionChatbot:
		return r.ChatbotMessages
	case plandomain.ActionInsightsRefresh:
		return r.InsightsRefreshes
	default:
		return 0
	}
}

// Weighted recomputes the blended total from the raw counters.
func (r UsageRecord) Weighted() int64 {
	return plandomain.WeightedTotal(r.AssistantActions, r.ContentGenerations, r.ChatbotMessages, r.InsightsRefreshes)
}

// Counters is a month's usage, either for one site or summed across sites.
type Counters struct {
	AssistantActions   int64 `json:"assistant_actions"`
	ContentGenerations int64 `json:"content_generations"`
	ChatbotMessages    int64 `json:"chatbot_messages"`
	InsightsRefreshes  int64 `json:"insights_refreshes"`
	WeightedTotal      int64 `json:"weighted_total"`
}

func (c *Counters) add(r UsageRecord) {
	c.AssistantActions += r.AssistantActions
	c.ContentGenerations += r.ContentGenerations
	c.ChatbotMessages += r.ChatbotMessages
	c.InsightsRefreshes += r.InsightsRefreshes
	c.WeightedTotal = plandomain.WeightedTotal(c.AssistantActions, c.ContentGenerations, c.ChatbotMessages, c.InsightsRefreshes)
}

// Sum rolls records up into one set of counters.
func Sum(records []UsageRecord) Counters {
	var c Counters
	for _, r := range records {
		c.add(r)
	}
	return c
}

// Snapshot is the usage block returned with a successful validation.
type Snapshot struct {
	Month string `json:"month"`
	Counters
	PercentageUsed int `json:"percentage_used"`
}

// Overview is the dashboard view across all of an account's sites.
type Overview struct {
	Month          string            `json:"month"`
	Usage          Counters          `json:"usage"`
	Limits         plandomain.Limits `json:"limits"`
	PercentageUsed int               `json:"percentage_used"`
}

type MonthUsage struct {
	Month string `json:"month"`
	Counters
}
