package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	accountdomain "github.com/smallbiznis/licensor/internal/account/domain"
	accountrepo "github.com/smallbiznis/licensor/internal/account/repository"
	accountsvc "github.com/smallbiznis/licensor/internal/account/service"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/dbtest"
	licensesvc "github.com/smallbiznis/licensor/internal/license/service"
	"github.com/smallbiznis/licensor/internal/observability"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	"github.com/smallbiznis/licensor/internal/plan/catalog"
	"github.com/smallbiznis/licensor/internal/ratelimit"
	siterepo "github.com/smallbiznis/licensor/internal/site/repository"
	sitesvc "github.com/smallbiznis/licensor/internal/site/service"
	subscriptionrepo "github.com/smallbiznis/licensor/internal/subscription/repository"
	subscriptionsvc "github.com/smallbiznis/licensor/internal/subscription/service"
	"github.com/smallbiznis/licensor/internal/subscription/stripe"
	telemetryrepo "github.com/smallbiznis/licensor/internal/telemetry/repository"
	telemetrysvc "github.com/smallbiznis/licensor/internal/telemetry/service"
	usagerepo "github.com/smallbiznis/licensor/internal/usage/repository"
	usagesvc "github.com/smallbiznis/licensor/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_server_test"

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine   *gin.Engine
	accounts accountdomain.Service
}

func newHarness(t *testing.T, limiter *ratelimit.PluginLimiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	clk := clock.NewFakeClock(testNow)
	node := dbtest.Node(t, 9)
	log := zap.NewNop()
	cat := catalog.NewStatic(catalog.DefaultTable())
	cfg := config.Config{
		AppURL: "https://wooasm.test",
		Stripe: config.StripeConfig{WebhookSecret: testWebhookSecret},
	}

	accounts := accountsvc.New(accountsvc.Params{
		DB: db, Log: log, Clock: clk, GenID: node,
		Repo: accountrepo.Provide(), SiteRepo: siterepo.Provide(),
	})
	sites := sitesvc.New(sitesvc.Params{DB: db, Log: log, Clock: clk, GenID: node, Repo: siterepo.Provide()})
	usage := usagesvc.New(usagesvc.Params{DB: db, Log: log, Clock: clk, GenID: node, Repo: usagerepo.Provide(), Catalog: cat})
	telemetry := telemetrysvc.New(telemetrysvc.Params{DB: db, Log: log, Clock: clk, Repo: telemetryrepo.Provide()})
	licenses := licensesvc.New(licensesvc.Params{
		Cfg: cfg, Log: log, Clock: clk, Catalog: cat,
		Accounts: accounts, Sites: sites, Usage: usage, Telemetry: telemetry,
	})
	subscriptions := subscriptionsvc.New(subscriptionsvc.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Cfg: cfg,
		Repo: subscriptionrepo.Provide(), AccountRepo: accountrepo.Provide(), Catalog: cat,
	})

	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())
	require.NoError(t, err)
	engine := NewEngine(observability.Config{}, httpMetrics)

	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		Log:             log,
		Clock:           clk,
		Catalog:         cat,
		AccountSvc:      accounts,
		LicenseSvc:      licenses,
		SiteSvc:         sites,
		UsageSvc:        usage,
		TelemetrySvc:    telemetry,
		SubscriptionSvc: subscriptions,
		Webhook:         stripe.NewWebhook(cfg),
		PluginLimiter:   limiter,
	})
	return &harness{engine: engine, accounts: accounts}
}

func (h *harness) account(t *testing.T, email string) accountdomain.Account {
	t.Helper()
	a, err := h.accounts.Create(context.Background(), accountdomain.CreateAccountRequest{Email: email, Name: "Jane Doe"})
	require.NoError(t, err)
	return a
}

func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	payload, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return payload["type"].(string)
}

func TestPluginHealth(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/plugin/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.0", body["api_version"])
}

func TestValidateLicenseDecisions(t *testing.T) {
	h := newHarness(t, nil)
	a := h.account(t, "validate@example.com")

	rec := h.do(t, http.MethodPost, "/api/plugin/validate-license", gin.H{
		"license_key": "WASM-ZZZZ-ZZZZ-ZZZZ", "site_id": "site-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "invalid_license", body["error"])
	assert.Equal(t, "https://wooasm.test/dashboard/license", body["dashboard_url"])

	rec = h.do(t, http.MethodPost, "/api/plugin/validate-license", gin.H{
		"license_key": a.LicenseKey, "site_id": "site-1", "site_url": "https://shop.test", "plugin_version": "2.1.0",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "free", body["plan"])
	usage := body["usage"].(map[string]any)
	assert.Equal(t, float64(0), usage["percentage_used"])

	rec = h.do(t, http.MethodPost, "/api/plugin/validate-license", gin.H{
		"license_key": a.LicenseKey, "site_id": "site-2",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "site_limit_reached", decode(t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/api/plugin/validate-license", gin.H{"license_key": a.LicenseKey}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorType(t, rec))
}

func TestTrackUsageBoundary(t *testing.T) {
	h := newHarness(t, nil)
	a := h.account(t, "usage@example.com")
	headers := map[string]string{HeaderLicenseKey: a.LicenseKey, HeaderSiteID: "site-1"}

	rec := h.do(t, http.MethodPost, "/api/plugin/track-usage", gin.H{"action_type": "assistant_action"}, map[string]string{HeaderSiteID: "site-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/plugin/track-usage", gin.H{"action_type": "assistant_action"},
		map[string]string{HeaderLicenseKey: "WASM-ZZZZ-ZZZZ-ZZZZ", HeaderSiteID: "site-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/plugin/track-usage", gin.H{"action_type": "teleport"}, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decode(t, rec)["error"].(map[string]any)
	errs := payload["errors"].([]any)
	assert.Equal(t, "invalid_action_kind", errs[0].(map[string]any)["code"])

	rec = h.do(t, http.MethodPost, "/api/plugin/track-usage", gin.H{"action_type": "assistant_action"}, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(49), body["remaining"])
	assert.Equal(t, float64(50), body["limit"])

	rec = h.do(t, http.MethodPost, "/api/plugin/track-usage", gin.H{"action_type": "assistant_action", "count": 50}, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "limit_exceeded", body["error"])
	assert.Equal(t, float64(49), body["remaining"])
	assert.Equal(t, "https://wooasm.test/pricing", body["upgrade_url"])
}

func TestTrackEventAcceptsAnonymousCallers(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/plugin/track-event", gin.H{
		"event_type": "feature_used", "event_name": "chatbot_opened", "event_data": gin.H{"plugin_version": "2.0.0"},
	}, map[string]string{HeaderSiteID: "site-9", HeaderLicenseKey: "WASM-ZZZZ-ZZZZ-ZZZZ"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = h.do(t, http.MethodPost, "/api/plugin/track-event", gin.H{"event_type": "x", "event_name": "y"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardRequiresAccount(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/dashboard", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/dashboard", nil, map[string]string{HeaderAccountID: "not-a-number"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/dashboard", nil, map[string]string{HeaderAccountID: "123456789"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegenerateLicenseInvalidatesOldKey(t *testing.T) {
	h := newHarness(t, nil)
	a := h.account(t, "regen@example.com")
	auth := map[string]string{HeaderAccountID: a.ID.String()}

	rec := h.do(t, http.MethodPost, "/api/plugin/validate-license", gin.H{"license_key": a.LicenseKey, "site_id": "site-1"}, nil)
	require.Equal(t, true, decode(t, rec)["valid"])

	rec = h.do(t, http.MethodPost, "/api/dashboard/regenerate-license", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["sites_deactivated"])
	newKey := body["new_license_key"].(string)
	assert.NotEqual(t, a.LicenseKey, newKey)

	rec = h.do(t, http.MethodPost, "/api/plugin/validate-license", gin.H{"license_key": a.LicenseKey, "site_id": "site-1"}, nil)
	assert.Equal(t, "invalid_license", decode(t, rec)["error"])

	rec = h.do(t, http.MethodGet, "/api/dashboard/sites", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode(t, rec)
	assert.Equal(t, float64(1), listing["sites_remaining"])

	rec = h.do(t, http.MethodDelete, "/api/dashboard/sites/unknown-site", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardOverviewAndSettings(t *testing.T) {
	h := newHarness(t, nil)
	a := h.account(t, "overview@example.com")
	auth := map[string]string{HeaderAccountID: a.ID.String()}

	rec := h.do(t, http.MethodGet, "/api/dashboard", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, a.LicenseKey, body["user"].(map[string]any)["license_key"])
	assert.Equal(t, float64(0), body["sites_count"])

	rec = h.do(t, http.MethodGet, "/api/dashboard/usage?months=2", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["history"], 3)

	rec = h.do(t, http.MethodGet, "/api/dashboard/usage?months=abc", nil, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	other := h.account(t, "taken@example.com")
	rec = h.do(t, http.MethodPut, "/api/dashboard/settings", gin.H{"email": other.Email}, auth)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/dashboard/settings", gin.H{"name": "Janet Doe"}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Janet Doe", decode(t, rec)["user"].(map[string]any)["name"])

	rec = h.do(t, http.MethodDelete, "/api/dashboard/account", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/dashboard/license", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signedCheckoutEvent(t *testing.T, eventType string, session map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_server",
		"object":      "event",
		"type":        eventType,
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": session},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func TestStripeWebhookActivatesOnce(t *testing.T) {
	h := newHarness(t, nil)
	a := h.account(t, "buyer@example.com")
	payload, sig := signedCheckoutEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_server_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"amount_total":   2900,
		"currency":       "usd",
		"metadata": map[string]string{
			"account_id":    a.ID.String(),
			"plan":          "starter",
			"billing_cycle": "monthly",
		},
	})
	headers := map[string]string{"Stripe-Signature": sig}

	rec := h.do(t, http.MethodPost, "/api/billing/webhook/stripe", payload, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, "applied", body["outcome"])

	rec = h.do(t, http.MethodPost, "/api/billing/webhook/stripe", payload, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_applied", decode(t, rec)["outcome"])

	rec = h.do(t, http.MethodGet, "/api/billing/subscription", nil, map[string]string{HeaderAccountID: a.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode(t, rec)
	assert.Equal(t, "starter", view["plan"])
	assert.Equal(t, "active", view["status"])

	rec = h.do(t, http.MethodGet, "/api/notifications/recent-purchases", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["notifications"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Jane D.", items[0].(map[string]any)["display_name"])
}

func TestStripeWebhookSignatureAndIgnoredEvents(t *testing.T) {
	h := newHarness(t, nil)

	payload, sig := signedCheckoutEvent(t, "invoice.paid", map[string]any{"id": "in_1"})
	rec := h.do(t, http.MethodPost, "/api/billing/webhook/stripe", payload, map[string]string{"Stripe-Signature": sig})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["received"])

	rec = h.do(t, http.MethodPost, "/api/billing/webhook/stripe", payload, map[string]string{"Stripe-Signature": "t=1,v1=bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutWithoutGateway(t *testing.T) {
	h := newHarness(t, nil)
	a := h.account(t, "checkout@example.com")
	auth := map[string]string{HeaderAccountID: a.ID.String()}

	rec := h.do(t, http.MethodPost, "/api/billing/create-checkout", gin.H{
		"plan": "starter", "billing_cycle": "weekly", "origin_url": "https://wooasm.test",
	}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/billing/create-checkout", gin.H{
		"plan": "starter", "billing_cycle": "monthly", "origin_url": "https://wooasm.test",
	}, auth)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "payments_not_configured", errorType(t, rec))
}

type denyBucket struct {
	keys []string
}

func (d *denyBucket) Allow(ctx context.Context, key string, rate float64, burst int) (ratelimit.Result, error) {
	d.keys = append(d.keys, key)
	return ratelimit.Result{Allowed: false, Limit: burst, RetryAfter: 1500 * time.Millisecond}, nil
}

func TestPluginRateLimitDenies(t *testing.T) {
	bucket := &denyBucket{}
	h := newHarness(t, ratelimit.NewPluginLimiterWithBucket(bucket, 1, 1))

	rec := h.do(t, http.MethodPost, "/api/plugin/validate-license", gin.H{
		"license_key": "WASM-AAAA-BBBB-CCCC", "site_id": "site-1",
	}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", errorType(t, rec))
	require.Len(t, bucket.keys, 1)

	rec = h.do(t, http.MethodGet, "/api/plugin/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMapErrorDefaultsToRetryable(t *testing.T) {
	status, payload := mapError(assert.AnError)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.True(t, payload.Retryable)

	typ, code := classifyErrorForLog(accountdomain.ErrInvalidEmail)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_email", code)
}
