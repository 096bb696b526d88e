package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/config"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/smallbiznis/licensor/internal/subscription/domain"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrWebhookDisabled  = errors.New("webhook_secret_not_configured")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrEventIgnored     = errors.New("event_ignored")
)

// Webhook verifies Stripe deliveries and maps checkout events onto
// PaymentEvents.
type Webhook struct {
	secret string
}

func NewWebhook(cfg config.Config) *Webhook {
	return &Webhook{secret: strings.TrimSpace(cfg.Stripe.WebhookSecret)}
}

func (w *Webhook) Enabled() bool {
	return w != nil && w.secret != ""
}

// Parse checks the Stripe-Signature header and decodes the event. Event
// types that carry no payment outcome return ErrEventIgnored.
func (w *Webhook) Parse(payload []byte, signature string) (domain.PaymentEvent, error) {
	if !w.Enabled() {
		return domain.PaymentEvent{}, ErrWebhookDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status domain.PaymentStatus
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = domain.PaymentPaid
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		status = domain.PaymentFailed
	default:
		return domain.PaymentEvent{}, ErrEventIgnored
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("decode checkout.session: %w", err)
	}
	// completed fires before delayed methods settle
	if status == domain.PaymentPaid && session.PaymentStatus == string(stripelib.CheckoutSessionPaymentStatusUnpaid) {
		status = domain.PaymentInitiated
	}

	out := session.toEvent(status)
	out.Source = domain.SourceWebhook
	return out, nil
}

// checkoutSession is the subset of a checkout.session object we read.
type checkoutSession struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Address struct {
			Country string `json:"country"`
		} `json:"address"`
	} `json:"customer_details"`
}

func (s checkoutSession) toEvent(status domain.PaymentStatus) domain.PaymentEvent {
	return eventFromMetadata(s.ID, status, s.AmountTotal, s.Currency, s.CustomerDetails.Address.Country, s.Metadata)
}

func eventFromMetadata(sessionID string, status domain.PaymentStatus, amount int64, currency, country string, metadata map[string]string) domain.PaymentEvent {
	event := domain.PaymentEvent{
		TransactionID: sessionID,
		Status:        status,
		Amount:        amount,
		Currency:      strings.ToLower(currency),
	}
	if tier, ok := plandomain.ParseTier(metadata["plan"]); ok {
		event.Plan = tier
	}
	if cycle, ok := plandomain.ParseBillingCycle(metadata["billing_cycle"]); ok {
		event.BillingCycle = cycle
	}
	event.AccountID = metadataAccountID(metadata)
	if c := strings.TrimSpace(country); c != "" {
		event.Country = &c
	}
	return event
}

func metadataAccountID(metadata map[string]string) snowflake.ID {
	for _, key := range []string{"account_id", "user_id"} {
		if raw := strings.TrimSpace(metadata[key]); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				return snowflake.ID(id)
			}
		}
	}
	return 0
}
