package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	sitedomain "github.com/smallbiznis/licensor/internal/site/domain"
	telemetrydomain "github.com/smallbiznis/licensor/internal/telemetry/domain"
	usagedomain "github.com/smallbiznis/licensor/internal/usage/domain"
)

const pluginAPIVersion = "1.0"

type validateLicenseRequest struct {
	LicenseKey         string  `json:"license_key"`
	SiteID             string  `json:"site_id"`
	SiteURL            string  `json:"site_url"`
	PluginVersion      string  `json:"plugin_version"`
	WordPressVersion   *string `json:"wordpress_version"`
	WooCommerceVersion *string `json:"woocommerce_version"`
}

type trackUsageRequest struct {
	ActionType string `json:"action_type"`
	Count      *int64 `json:"count"`
}

type trackEventRequest struct {
	EventType string         `json:"event_type"`
	EventName string         `json:"event_name"`
	EventData map[string]any `json:"event_data"`
}

func (s *Server) PluginHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"api_version": pluginAPIVersion,
		"timestamp":   s.clock.Now().UTC(),
	})
}

// ValidateLicense always answers 200 with a decision; only malformed input
// and storage failures produce error responses.
func (s *Server) ValidateLicense(c *gin.Context) {
	var req validateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	decision, err := s.licenseSvc.ValidateLicense(c.Request.Context(), licensedomain.ValidateRequest{
		LicenseKey: req.LicenseKey,
		SiteID:     req.SiteID,
		Meta: sitedomain.ClientMeta{
			SiteURL:            req.SiteURL,
			PluginVersion:      req.PluginVersion,
			WordPressVersion:   req.WordPressVersion,
			WooCommerceVersion: req.WooCommerceVersion,
		},
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if decision.Valid {
		c.Set("outcome", "valid")
	} else {
		c.Set("outcome", decision.Error)
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) TrackUsage(c *gin.Context) {
	licenseKey := strings.TrimSpace(c.GetHeader(HeaderLicenseKey))
	siteID := strings.TrimSpace(c.GetHeader(HeaderSiteID))
	if licenseKey == "" {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if siteID == "" {
		AbortWithError(c, licensedomain.ErrMissingSiteID)
		return
	}

	var req trackUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	kind, ok := plandomain.ParseActionKind(req.ActionType)
	if !ok {
		AbortWithError(c, usagedomain.ErrInvalidActionKind)
		return
	}
	count := int64(1)
	if req.Count != nil {
		count = *req.Count
	}
	c.Set("action_kind", string(kind))

	res, err := s.licenseSvc.TrackUsage(c.Request.Context(), licensedomain.TrackUsageRequest{
		LicenseKey: licenseKey,
		SiteID:     siteID,
		Kind:       kind,
		Count:      count,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if res.Success {
		c.Set("outcome", "accepted")
	} else {
		c.Set("outcome", res.Error)
	}
	c.JSON(http.StatusOK, res)
}

// TrackEvent accepts anonymous events; a license key only attributes them.
func (s *Server) TrackEvent(c *gin.Context) {
	siteID := strings.TrimSpace(c.GetHeader(HeaderSiteID))
	if siteID == "" {
		AbortWithError(c, licensedomain.ErrMissingSiteID)
		return
	}

	var req trackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	record := telemetrydomain.RecordRequest{
		SiteID:    siteID,
		EventType: req.EventType,
		EventName: req.EventName,
		EventData: req.EventData,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
	if version, ok := req.EventData["plugin_version"].(string); ok {
		record.PluginVersion = version
	}

	if licenseKey := strings.TrimSpace(c.GetHeader(HeaderLicenseKey)); licenseKey != "" {
		account, err := s.licenseSvc.Authenticate(ctx, licenseKey)
		switch {
		case err == nil:
			record.AccountID = account.ID
			record.LicenseKey = account.LicenseKey
		case !errors.Is(err, licensedomain.ErrUnauthorized):
			AbortWithError(c, err)
			return
		}
	}

	if _, err := s.telemetrySvc.Track(ctx, record); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
