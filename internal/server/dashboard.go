package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/licensor/internal/account/domain"
	sitedomain "github.com/smallbiznis/licensor/internal/site/domain"
	usagedomain "github.com/smallbiznis/licensor/internal/usage/domain"
	"golang.org/x/sync/errgroup"
)

const regenerateMessage = "License key regenerated. All sites have been deactivated. Please re-activate your plugin."

type updateSettingsRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (s *Server) DashboardOverview(c *gin.Context) {
	ctx := c.Request.Context()
	account, err := s.accountSvc.Get(ctx, accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan := s.catalog.Resolve(account.Plan)

	var (
		overview usagedomain.Overview
		listing  sitedomain.Listing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		overview, err = s.usageSvc.Overview(gctx, account.ID, plan.Limits)
		return err
	})
	g.Go(func() error {
		var err error
		listing, err = s.siteSvc.List(gctx, account.ID, plan.Limits.MaxSites)
		return err
	})
	if err := g.Wait(); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"name":        account.Name,
			"email":       account.Email,
			"plan":        account.Plan,
			"license_key": account.LicenseKey,
		},
		"subscription": gin.H{
			"status":        account.SubscriptionStatus,
			"ends_at":       account.SubscriptionEndsAt,
			"billing_cycle": account.BillingCycle,
		},
		"usage": gin.H{
			"month":               overview.Month,
			"assistant_actions":   overview.Usage.AssistantActions,
			"content_generations": overview.Usage.ContentGenerations,
			"chatbot_messages":    overview.Usage.ChatbotMessages,
			"insights_refreshes":  overview.Usage.InsightsRefreshes,
			"weighted_total":      overview.Usage.WeightedTotal,
			"percentage_used":     overview.PercentageUsed,
		},
		"sites_count": listing.ActiveCount,
		"limits":      plan.Limits,
		"features":    plan.FeatureSet(),
	})
}

func (s *Server) GetLicense(c *gin.Context) {
	ctx := c.Request.Context()
	account, err := s.accountSvc.Get(ctx, accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan := s.catalog.Resolve(account.Plan)

	listing, err := s.siteSvc.List(ctx, account.ID, plan.Limits.MaxSites)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"license_key":   account.LicenseKey,
		"plan":          account.Plan,
		"status":        account.SubscriptionStatus,
		"sites_used":    listing.ActiveCount,
		"sites_allowed": plan.Limits.MaxSites,
	})
}

func (s *Server) RegenerateLicense(c *gin.Context) {
	res, err := s.accountSvc.RegenerateLicense(c.Request.Context(), accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"new_license_key":   res.LicenseKey,
		"sites_deactivated": res.SitesDeactivated,
		"message":           regenerateMessage,
	})
}

func (s *Server) ListSites(c *gin.Context) {
	ctx := c.Request.Context()
	account, err := s.accountSvc.Get(ctx, accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plan := s.catalog.Resolve(account.Plan)

	listing, err := s.siteSvc.List(ctx, account.ID, plan.Limits.MaxSites)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (s *Server) DeactivateSite(c *gin.Context) {
	if err := s.siteSvc.Deactivate(c.Request.Context(), accountIDFrom(c), c.Param("site_id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Site deactivated"})
}

func (s *Server) UsageHistory(c *gin.Context) {
	months, err := parseOptionalInt64(c.Query("months"))
	if err != nil {
		AbortWithError(c, newValidationError("months", "invalid_months", "months must be a number"))
		return
	}

	ctx := c.Request.Context()
	account, err := s.accountSvc.Get(ctx, accountIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	n := 0
	if months != nil {
		n = int(*months)
	}
	history, err := s.usageSvc.History(ctx, account.ID, n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"history": history,
		"limits":  s.catalog.Resolve(account.Plan).Limits,
	}
	if len(history) > 0 {
		resp["current_month"] = history[0]
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.accountSvc.UpdateProfile(c.Request.Context(), accountIDFrom(c), accountdomain.UpdateProfileRequest{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": account})
}

func (s *Server) DeleteAccount(c *gin.Context) {
	if err := s.accountSvc.Delete(c.Request.Context(), accountIDFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Account deleted successfully"})
}
