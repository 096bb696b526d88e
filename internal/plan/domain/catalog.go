package domain

import "errors"

// Catalog resolves plan tiers to limits, features and prices.
type Catalog interface {
	// Resolve never fails: an unknown tier resolves to the free plan.
	Resolve(tier Tier) Plan
	Price(tier Tier, cycle BillingCycle) (Price, error)
}

var (
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrInvalidBillingCycle = errors.New("invalid_billing_cycle")
)
