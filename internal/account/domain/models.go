package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
)

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusTrialing  SubscriptionStatus = "trialing"
)

func ParseSubscriptionStatus(raw string) (SubscriptionStatus, bool) {
	status := SubscriptionStatus(raw)
	switch status {
	case StatusActive, StatusCancelled, StatusPastDue, StatusTrialing:
		return status, true
	default:
		return "", false
	}
}

type Account struct {
	ID                 snowflake.ID             `json:"id"`
	Email              string                   `json:"email"`
	Name               string                   `json:"name"`
	LicenseKey         string                   `json:"license_key"`
	Plan               plandomain.Tier          `json:"plan"`
	SubscriptionStatus SubscriptionStatus       `json:"subscription_status"`
	SubscriptionEndsAt *time.Time               `json:"subscription_ends_at"`
	BillingCycle       *plandomain.BillingCycle `json:"billing_cycle"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// Expired reports whether a cancelled subscription has run past its paid
// period. Other statuses never expire here.
func (a Account) Expired(now time.Time) bool {
	if a.SubscriptionStatus != StatusCancelled || a.SubscriptionEndsAt == nil {
		return false
	}
	return a.SubscriptionEndsAt.Before(now)
}

// SubscriptionUpdate is the field-scoped write applied on payment.
type SubscriptionUpdate struct {
	Plan         plandomain.Tier
	BillingCycle plandomain.BillingCycle
	Status       SubscriptionStatus
	EndsAt       time.Time
}

// ProfileUpdate holds optional profile changes; nil fields are untouched.
type ProfileUpdate struct {
	Name  *string
	Email *string
}
