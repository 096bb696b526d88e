package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/licensor/internal/subscription/domain"
	"github.com/smallbiznis/licensor/internal/subscription/stripe"
	"go.uber.org/zap"
)

const maxWebhookBytes = 64 << 10

type createCheckoutRequest struct {
	Plan         string `json:"plan"`
	BillingCycle string `json:"billing_cycle"`
	OriginURL    string `json:"origin_url"`
}

func (s *Server) GetSubscription(c *gin.Context) {
	view, err := s.subscriptionSvc.Subscription(c.Request.Context(), accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	res, err := s.subscriptionSvc.Cancel(c.Request.Context(), accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) CreateCheckout(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tier, ok := plandomain.ParseTier(req.Plan)
	if !ok {
		AbortWithError(c, plandomain.ErrInvalidPlan)
		return
	}
	cycle, ok := plandomain.ParseBillingCycle(req.BillingCycle)
	if !ok {
		AbortWithError(c, plandomain.ErrInvalidBillingCycle)
		return
	}

	session, err := s.subscriptionSvc.CreateCheckout(c.Request.Context(), subscriptiondomain.CheckoutRequest{
		AccountID:    accountIDFrom(c),
		Plan:         tier,
		BillingCycle: cycle,
		OriginURL:    req.OriginURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// CheckoutStatus polls the provider and applies a paid session through the
// same path as the webhook.
func (s *Server) CheckoutStatus(c *gin.Context) {
	status, err := s.subscriptionSvc.PollCheckout(c.Request.Context(), accountIDFrom(c), c.Param("session_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// StripeWebhook acknowledges every verified event. Rejections are logical
// outcomes and are not worth a provider retry; storage failures are.
func (s *Server) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.webhook.Parse(payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, stripe.ErrEventIgnored) {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	res, err := s.subscriptionSvc.ApplyPaymentEvent(ctx, event)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.Outcome == subscriptiondomain.OutcomeRejected {
		s.log.Warn("payment event rejected",
			zap.String("transaction_id", event.TransactionID),
			zap.String("reason", res.Reason),
		)
	}

	c.Set("outcome", string(res.Outcome))
	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  res.Outcome,
		"reason":   res.Reason,
	})
}
