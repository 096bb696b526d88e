package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/subscription/domain"
	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"go.uber.org/zap"
)

// Gateway talks to Stripe Checkout.
type Gateway struct {
	log                   *zap.Logger
	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	getCheckoutSession    func(id string, params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
}

// NewGateway returns nil when no Stripe key is configured; checkout routes
// then answer payments_not_configured.
func NewGateway(cfg config.Config, log *zap.Logger) domain.Gateway {
	if !cfg.Stripe.Enabled() {
		return nil
	}
	stripelib.Key = strings.TrimSpace(cfg.Stripe.SecretKey)
	return &Gateway{
		log:                   log.Named("stripe.gateway"),
		createCheckoutSession: stripesession.New,
		getCheckoutSession:    stripesession.Get,
	}
}

func (g *Gateway) CreateCheckout(ctx context.Context, req domain.CheckoutRequest, amount int64, currency string) (domain.CheckoutSession, error) {
	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModePayment)),
		SuccessURL: stripelib.String(req.OriginURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripelib.String(req.OriginURL + "/checkout/cancel"),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				PriceData: &stripelib.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripelib.String(currency),
					UnitAmount: stripelib.Int64(amount),
					ProductData: &stripelib.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripelib.String(fmt.Sprintf("WooASM %s (%s)", req.Plan, req.BillingCycle)),
					},
				},
				Quantity: stripelib.Int64(1),
			},
		},
		Metadata: map[string]string{
			"account_id":    req.AccountID.String(),
			"plan":          string(req.Plan),
			"billing_cycle": string(req.BillingCycle),
		},
	}
	params.Context = ctx

	session, err := g.createCheckoutSession(params)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	g.log.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("plan", string(req.Plan)),
	)
	return domain.CheckoutSession{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// CheckoutStatus reads a session and translates it into the same event
// shape the webhook produces.
func (g *Gateway) CheckoutStatus(ctx context.Context, sessionID string) (domain.CheckoutStatus, domain.PaymentEvent, error) {
	params := &stripelib.CheckoutSessionParams{}
	params.Context = ctx
	session, err := g.getCheckoutSession(sessionID, params)
	if err != nil {
		return domain.CheckoutStatus{}, domain.PaymentEvent{}, err
	}

	status := domain.CheckoutStatus{
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
	}

	payment := domain.PaymentInitiated
	switch {
	case session.PaymentStatus == stripelib.CheckoutSessionPaymentStatusPaid:
		payment = domain.PaymentPaid
	case session.Status == stripelib.CheckoutSessionStatusExpired:
		payment = domain.PaymentFailed
	}

	var country string
	if session.CustomerDetails != nil && session.CustomerDetails.Address != nil {
		country = session.CustomerDetails.Address.Country
	}
	event := eventFromMetadata(session.ID, payment, session.AmountTotal, string(session.Currency), country, session.Metadata)
	return status, event, nil
}
