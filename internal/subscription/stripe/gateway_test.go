package stripe

import (
	"context"
	"testing"

	"github.com/smallbiznis/licensor/internal/config"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/smallbiznis/licensor/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

func TestNewGatewayDisabledWithoutKey(t *testing.T) {
	assert.Nil(t, NewGateway(config.Config{}, zap.NewNop()))
}

func TestCreateCheckoutSendsMetadata(t *testing.T) {
	var captured *stripelib.CheckoutSessionParams
	g := &Gateway{
		log: zap.NewNop(),
		createCheckoutSession: func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
			captured = params
			return &stripelib.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.test/cs_new"}, nil
		},
	}

	session, err := g.CreateCheckout(context.Background(), domain.CheckoutRequest{
		AccountID:    99,
		Plan:         plandomain.TierProfessional,
		BillingCycle: plandomain.BillingCycleYearly,
		OriginURL:    "https://app.wooasm.test",
	}, 79000, "usd")
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.SessionID)

	require.NotNil(t, captured)
	assert.Equal(t, "99", captured.Metadata["account_id"])
	assert.Equal(t, "professional", captured.Metadata["plan"])
	assert.Equal(t, "yearly", captured.Metadata["billing_cycle"])
	assert.Equal(t, "https://app.wooasm.test/checkout/cancel", *captured.CancelURL)
	require.Len(t, captured.LineItems, 1)
	assert.Equal(t, int64(79000), *captured.LineItems[0].PriceData.UnitAmount)
}

func TestCheckoutStatusTranslatesPaidSession(t *testing.T) {
	g := &Gateway{
		log: zap.NewNop(),
		getCheckoutSession: func(id string, params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
			return &stripelib.CheckoutSession{
				ID:            id,
				Status:        stripelib.CheckoutSessionStatusComplete,
				PaymentStatus: stripelib.CheckoutSessionPaymentStatusPaid,
				AmountTotal:   2900,
				Currency:      stripelib.CurrencyUSD,
				Metadata:      map[string]string{"account_id": "5", "plan": "starter", "billing_cycle": "monthly"},
			}, nil
		},
	}

	status, event, err := g.CheckoutStatus(context.Background(), "cs_poll")
	require.NoError(t, err)
	assert.Equal(t, "complete", status.Status)
	assert.Equal(t, "paid", status.PaymentStatus)
	assert.Equal(t, int64(2900), status.AmountTotal)
	assert.Equal(t, domain.PaymentPaid, event.Status)
	assert.Equal(t, int64(5), event.AccountID.Int64())
	assert.Equal(t, "cs_poll", event.TransactionID)
}
