package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/licensor/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	rateLimitReasonLicenseRate = "license-rate"
	rateLimitReasonAnonymous   = "anonymous-rate"

	maxPeekBytes = 16 << 10
)

// PluginRateLimit throttles plugin calls per license key, falling back to the
// site id and then the client address. Limiter failures let the call through.
func (s *Server) PluginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.pluginLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)
		caller, reason := rateLimitCaller(c)

		res, err := s.pluginLimiter.Allow(ctx, caller)
		if err != nil {
			logger.FromContext(ctx).Warn("plugin rate limit check failed", zap.String("endpoint", endpoint), zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("plugin rate limit exceeded",
				zap.String("reason", reason),
				zap.String("endpoint", endpoint),
			)
			recordRateLimitDenied(ctx, endpoint, reason, s.obsMetrics)

			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", reason)
			AbortWithError(c, ErrRateLimited)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func rateLimitCaller(c *gin.Context) (string, string) {
	if key := strings.TrimSpace(c.GetHeader(HeaderLicenseKey)); key != "" {
		return "license:" + key, rateLimitReasonLicenseRate
	}
	if key := readBodyLicenseKey(c); key != "" {
		return "license:" + key, rateLimitReasonLicenseRate
	}
	if site := strings.TrimSpace(c.GetHeader(HeaderSiteID)); site != "" {
		return "site:" + site, rateLimitReasonAnonymous
	}
	return "ip:" + c.ClientIP(), rateLimitReasonAnonymous
}

// readBodyLicenseKey peeks at a JSON body and restores it for the handler.
func readBodyLicenseKey(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBytes))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), c.Request.Body))

	var payload struct {
		LicenseKey string `json:"license_key"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.LicenseKey)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
