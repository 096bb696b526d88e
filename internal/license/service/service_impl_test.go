package service

import (
	"context"
	"errors"
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/licensor/internal/account/domain"
	accountrepo "github.com/smallbiznis/licensor/internal/account/repository"
	accountsvc "github.com/smallbiznis/licensor/internal/account/service"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/dbtest"
	"github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/plan/catalog"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	sitedomain "github.com/smallbiznis/licensor/internal/site/domain"
	siterepo "github.com/smallbiznis/licensor/internal/site/repository"
	sitesvc "github.com/smallbiznis/licensor/internal/site/service"
	telemetrydomain "github.com/smallbiznis/licensor/internal/telemetry/domain"
	telemetryrepo "github.com/smallbiznis/licensor/internal/telemetry/repository"
	telemetrysvc "github.com/smallbiznis/licensor/internal/telemetry/service"
	usagerepo "github.com/smallbiznis/licensor/internal/usage/repository"
	usagesvc "github.com/smallbiznis/licensor/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	svc      *Service
	accounts accountdomain.Service
	sites    sitedomain.Service
}

func newFixture(t *testing.T, telemetry telemetrydomain.Service) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(testNow)
	node := dbtest.Node(t, 3)
	log := zap.NewNop()
	cat := catalog.NewStatic(catalog.DefaultTable())

	accounts := accountsvc.New(accountsvc.Params{
		DB: db, Log: log, Clock: clk, GenID: node,
		Repo: accountrepo.Provide(), SiteRepo: siterepo.Provide(),
	})
	sites := sitesvc.New(sitesvc.Params{DB: db, Log: log, Clock: clk, GenID: node, Repo: siterepo.Provide()})
	usage := usagesvc.New(usagesvc.Params{DB: db, Log: log, Clock: clk, GenID: node, Repo: usagerepo.Provide(), Catalog: cat})
	if telemetry == nil {
		telemetry = telemetrysvc.New(telemetrysvc.Params{DB: db, Log: log, Clock: clk, Repo: telemetryrepo.Provide()})
	}

	svc := New(Params{
		Cfg:       config.Config{AppURL: "https://wooasm.test"},
		Log:       log,
		Clock:     clk,
		Catalog:   cat,
		Accounts:  accounts,
		Sites:     sites,
		Usage:     usage,
		Telemetry: telemetry,
	}).(*Service)
	return &fixture{db: db, clock: clk, svc: svc, accounts: accounts, sites: sites}
}

func (f *fixture) account(t *testing.T, plan plandomain.Tier, status accountdomain.SubscriptionStatus, endsAt *time.Time) accountdomain.Account {
	t.Helper()
	a, err := f.accounts.Create(context.Background(), accountdomain.CreateAccountRequest{
		Email: string(plan) + string(status) + "@example.com",
		Name:  "Test",
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(
		`UPDATE accounts SET plan = ?, subscription_status = ?, subscription_ends_at = ? WHERE id = ?`,
		string(plan), string(status), endsAt, a.ID,
	).Error)
	return a
}

func (f *fixture) validate(t *testing.T, key, siteID string) domain.Decision {
	t.Helper()
	d, err := f.svc.ValidateLicense(context.Background(), domain.ValidateRequest{
		LicenseKey: key,
		SiteID:     siteID,
		Meta:       sitedomain.ClientMeta{SiteURL: "https://" + siteID + ".test", PluginVersion: "2.0.0"},
		IPAddress:  "198.51.100.4",
		UserAgent:  "WordPress/6.5",
	})
	require.NoError(t, err)
	return d
}

func TestStarterSiteRenewalIsNotBlocked(t *testing.T) {
	f := newFixture(t, nil)
	a := f.account(t, plandomain.TierStarter, accountdomain.StatusActive, nil)

	first := f.validate(t, a.LicenseKey, "site-a")
	require.True(t, first.Valid)
	assert.Equal(t, plandomain.TierStarter, first.Plan)
	assert.Equal(t, int64(1), first.Limits.MaxSites)
	assert.True(t, first.Features[plandomain.FeatureChatbot])
	assert.False(t, first.Features[plandomain.FeatureInventoryAutopilot])

	second := f.validate(t, a.LicenseKey, "site-b")
	assert.False(t, second.Valid)
	assert.Equal(t, domain.CodeSiteLimitReached, second.Error)
	assert.Equal(t, int64(1), second.MaxSites)
	assert.Equal(t, "https://wooasm.test/pricing", second.UpgradeURL)
	assert.Equal(t, "https://wooasm.test/dashboard/sites", second.SitesURL)
	assert.Contains(t, second.Message, "(1)")

	again := f.validate(t, a.LicenseKey, "site-a")
	assert.True(t, again.Valid)

	listing, err := f.sites.List(context.Background(), a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), listing.ActiveCount)

	var events int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM plugin_events WHERE event_name = ?`, telemetrydomain.EventNameLicenseValidated).Scan(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestCancelledAccessRunsToPeriodEnd(t *testing.T) {
	f := newFixture(t, nil)
	yesterday := testNow.Add(-24 * time.Hour)
	tomorrow := testNow.Add(24 * time.Hour)

	expired := f.account(t, plandomain.TierStarter, accountdomain.StatusCancelled, &yesterday)
	d := f.validate(t, expired.LicenseKey, "site-x")
	assert.False(t, d.Valid)
	assert.Equal(t, domain.CodeLicenseExpired, d.Error)
	assert.Equal(t, "https://wooasm.test/dashboard/billing", d.RenewURL)

	retained := f.account(t, plandomain.TierProfessional, accountdomain.StatusCancelled, &tomorrow)
	assert.True(t, f.validate(t, retained.LicenseKey, "site-y").Valid)
}

func TestPastDueBlocksRegardlessOfEndDate(t *testing.T) {
	f := newFixture(t, nil)
	future := testNow.Add(20 * 24 * time.Hour)
	a := f.account(t, plandomain.TierProfessional, accountdomain.StatusPastDue, &future)

	d := f.validate(t, a.LicenseKey, "site-a")
	assert.False(t, d.Valid)
	assert.Equal(t, domain.CodePaymentFailed, d.Error)
	assert.Equal(t, "https://wooasm.test/dashboard/billing", d.BillingURL)
}

func TestUnknownKeyIsInvalidLicense(t *testing.T) {
	f := newFixture(t, nil)

	d := f.validate(t, "WASM-0000-0000-0000", "site-a")
	assert.False(t, d.Valid)
	assert.Equal(t, domain.CodeInvalidLicense, d.Error)
	assert.Equal(t, "https://wooasm.test/dashboard/license", d.DashboardURL)

	var sites int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM site_activations`).Scan(&sites).Error)
	assert.Zero(t, sites)
}

func TestValidateRequiresIdentifiers(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.ValidateLicense(context.Background(), domain.ValidateRequest{SiteID: "s"})
	assert.ErrorIs(t, err, domain.ErrMissingLicenseKey)
	_, err = f.svc.ValidateLicense(context.Background(), domain.ValidateRequest{LicenseKey: "WASM-0000-0000-0000"})
	assert.ErrorIs(t, err, domain.ErrMissingSiteID)
}

type failingTelemetry struct {
	mock.Mock
}

func (m *failingTelemetry) Record(ctx context.Context, req telemetrydomain.RecordRequest) error {
	return m.Called(req.EventName).Error(0)
}

func (m *failingTelemetry) Track(ctx context.Context, req telemetrydomain.RecordRequest) (telemetrydomain.PluginEvent, error) {
	args := m.Called(req.EventName)
	return telemetrydomain.PluginEvent{}, args.Error(1)
}

func (m *failingTelemetry) ListBySite(ctx context.Context, siteID string, limit int) ([]telemetrydomain.PluginEvent, error) {
	return nil, nil
}

func (m *failingTelemetry) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

func TestTelemetryFailureDoesNotFailValidation(t *testing.T) {
	tel := &failingTelemetry{}
	tel.On("Record", telemetrydomain.EventNameLicenseValidated).Return(errors.New("disk full"))
	f := newFixture(t, tel)
	a := f.account(t, plandomain.TierFree, accountdomain.StatusActive, nil)

	d := f.validate(t, a.LicenseKey, "site-a")
	assert.True(t, d.Valid)
	tel.AssertExpectations(t)
}

func TestTrackUsage(t *testing.T) {
	f := newFixture(t, nil)
	a := f.account(t, plandomain.TierFree, accountdomain.StatusActive, nil)
	ctx := context.Background()

	res, err := f.svc.TrackUsage(ctx, domain.TrackUsageRequest{
		LicenseKey: a.LicenseKey, SiteID: "site-a", Kind: plandomain.ActionContent, Count: 10,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.Remaining)

	res, err = f.svc.TrackUsage(ctx, domain.TrackUsageRequest{
		LicenseKey: a.LicenseKey, SiteID: "site-a", Kind: plandomain.ActionContent, Count: 1,
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "limit_exceeded", res.Error)
	assert.Equal(t, "You've reached your monthly limit for content generation.", res.Message)
	assert.Equal(t, int64(10), res.Limit)

	_, err = f.svc.TrackUsage(ctx, domain.TrackUsageRequest{
		LicenseKey: "WASM-0000-0000-0000", SiteID: "site-a", Kind: plandomain.ActionContent, Count: 1,
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

