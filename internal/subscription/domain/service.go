package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Gateway is the payment provider seen from the reconciler.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest, amount int64, currency string) (CheckoutSession, error)
	CheckoutStatus(ctx context.Context, sessionID string) (CheckoutStatus, PaymentEvent, error)
}

type Service interface {
	ApplyPaymentEvent(ctx context.Context, event PaymentEvent) (Result, error)
	PollCheckout(ctx context.Context, accountID snowflake.ID, sessionID string) (CheckoutStatus, error)
	// ReconcileOpen polls the provider for open transactions aged between
	// minAge and maxAge and reports how many were activated.
	ReconcileOpen(ctx context.Context, minAge, maxAge time.Duration, limit int) (int, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	Cancel(ctx context.Context, accountID snowflake.ID) (CancelResult, error)
	Subscription(ctx context.Context, accountID snowflake.ID) (SubscriptionView, error)
	RecentNotifications(ctx context.Context, limit int) ([]NotificationView, error)
}

var (
	ErrInvalidTransaction = errors.New("invalid_transaction_id")
	ErrTransactionMissing = errors.New("transaction_not_found")
	ErrPaymentsDisabled   = errors.New("payments_not_configured")
	ErrInvalidOriginURL   = errors.New("invalid_origin_url")
)
