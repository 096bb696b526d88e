package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
)

type PaymentStatus string

// Status only moves forward: initiated -> paid -> completed, or to failed.
const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentTransaction struct {
	ID            snowflake.ID            `json:"id"`
	SessionID     string                  `json:"session_id"`
	AccountID     snowflake.ID            `json:"account_id"`
	Plan          plandomain.Tier         `json:"plan"`
	BillingCycle  plandomain.BillingCycle `json:"billing_cycle"`
	Amount        int64                   `json:"amount"`
	Currency      string                  `json:"currency"`
	PaymentStatus PaymentStatus           `json:"payment_status"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	CompletedAt   *time.Time              `json:"completed_at"`
}

type PurchaseNotification struct {
	ID           snowflake.ID            `json:"id"`
	SessionID    *string                 `json:"-"`
	UserName     string                  `json:"user_name"`
	Plan         plandomain.Tier         `json:"plan"`
	BillingCycle plandomain.BillingCycle `json:"billing_cycle"`
	Country      *string                 `json:"country"`
	IsReal       bool                    `json:"is_real"`
	CreatedAt    time.Time               `json:"created_at"`
}

// DisplayName is derived on read: "Jane D. from Germany".
func (n PurchaseNotification) DisplayName() string {
	if n.Country != nil && strings.TrimSpace(*n.Country) != "" {
		return n.UserName + " from " + strings.TrimSpace(*n.Country)
	}
	return n.UserName
}

// AnonymizeName turns "Jane Doe" into "Jane D."; blank names become
// "Customer".
func AnonymizeName(full string) string {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "Customer"
	case 1:
		return parts[0]
	}
	last := []rune(parts[len(parts)-1])
	return parts[0] + " " + string(unicode.ToUpper(last[0])) + "."
}

// PaymentEvent is what a provider adapter observed about a checkout. Webhook
// pushes and status polls produce the same shape.
type PaymentEvent struct {
	TransactionID string
	AccountID     snowflake.ID
	Plan          plandomain.Tier
	BillingCycle  plandomain.BillingCycle
	Status        PaymentStatus
	Amount        int64
	Currency      string
	Country       *string
	Source        string
}

const (
	SourceWebhook   = "webhook"
	SourcePoll      = "poll"
	SourceReconcile = "reconcile"
)

type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeRejected       Outcome = "rejected"
)

// Rejection reasons.
const (
	ReasonPaymentPending    = "payment_pending"
	ReasonPaymentFailed     = "payment_failed"
	ReasonInvalidPlan       = "invalid_plan"
	ReasonAccountMismatch   = "account_mismatch"
	ReasonTransactionFailed = "transaction_failed"
	ReasonAccountNotFound   = "account_not_found"
)

type Result struct {
	Outcome Outcome    `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`
	EndsAt  *time.Time `json:"ends_at,omitempty"`
}

type SubscriptionView struct {
	Plan             plandomain.Tier          `json:"plan"`
	Status           string                   `json:"status"`
	BillingCycle     *plandomain.BillingCycle `json:"billing_cycle"`
	CurrentPeriodEnd *time.Time               `json:"current_period_end"`
}

type CancelResult struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	EndsAt  *time.Time `json:"ends_at,omitempty"`
}

type CheckoutRequest struct {
	AccountID    snowflake.ID
	Plan         plandomain.Tier
	BillingCycle plandomain.BillingCycle
	OriginURL    string
}

type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

type CheckoutStatus struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}

type NotificationView struct {
	DisplayName  string                  `json:"display_name"`
	Plan         plandomain.Tier         `json:"plan"`
	BillingCycle plandomain.BillingCycle `json:"billing_cycle"`
	TimeAgo      string                  `json:"time_ago"`
	SecondsAgo   int64                   `json:"seconds_ago"`
	CreatedAt    time.Time               `json:"created_at"`
}
