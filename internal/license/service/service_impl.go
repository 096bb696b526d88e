package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	accountdomain "github.com/smallbiznis/licensor/internal/account/domain"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/license/domain"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	sitedomain "github.com/smallbiznis/licensor/internal/site/domain"
	telemetrydomain "github.com/smallbiznis/licensor/internal/telemetry/domain"
	usagedomain "github.com/smallbiznis/licensor/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Catalog    plandomain.Catalog
	Accounts   accountdomain.Service
	Sites      sitedomain.Service
	Usage      usagedomain.Service
	Telemetry  telemetrydomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	catalog    plandomain.Catalog
	accounts   accountdomain.Service
	sites      sitedomain.Service
	usage      usagedomain.Service
	telemetry  telemetrydomain.Service
	obsMetrics *obsmetrics.Metrics
	appURL     string
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("license.service"),
		clock:      p.Clock,
		catalog:    p.Catalog,
		accounts:   p.Accounts,
		sites:      p.Sites,
		usage:      p.Usage,
		telemetry:  p.Telemetry,
		obsMetrics: p.ObsMetrics,
		appURL:     strings.TrimRight(p.Cfg.AppURL, "/"),
	}
}

// ValidateLicense runs the checks in a fixed order and returns the first
// failing decision. A returned error always means storage trouble, never an
// invalid license.
func (s *Service) ValidateLicense(ctx context.Context, req domain.ValidateRequest) (domain.Decision, error) {
	key := strings.TrimSpace(req.LicenseKey)
	if key == "" {
		return domain.Decision{}, domain.ErrMissingLicenseKey
	}
	siteID := strings.TrimSpace(req.SiteID)
	if siteID == "" {
		return domain.Decision{}, domain.ErrMissingSiteID
	}

	account, err := s.accounts.GetByLicenseKey(ctx, key)
	if errors.Is(err, accountdomain.ErrNotFound) {
		return s.decide(ctx, "", s.invalidLicense()), nil
	}
	if err != nil {
		return domain.Decision{}, fmt.Errorf("lookup license: %w", err)
	}

	if account.Expired(s.clock.Now()) {
		return s.decide(ctx, account.Plan, domain.Decision{
			Error:    domain.CodeLicenseExpired,
			Message:  "Your subscription has expired. Please renew to continue using premium features.",
			RenewURL: s.url("/dashboard/billing"),
		}), nil
	}
	if account.SubscriptionStatus == accountdomain.StatusPastDue {
		return s.decide(ctx, account.Plan, domain.Decision{
			Error:      domain.CodePaymentFailed,
			Message:    "Payment failed. Please update your payment method.",
			BillingURL: s.url("/dashboard/billing"),
		}), nil
	}

	plan := s.catalog.Resolve(account.Plan)
	admission, err := s.sites.AdmitOrRefresh(ctx, sitedomain.AdmitRequest{
		AccountID: account.ID,
		SiteID:    siteID,
		Meta:      req.Meta,
		MaxSites:  plan.Limits.MaxSites,
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("admit site: %w", err)
	}
	if !admission.Admitted {
		return s.decide(ctx, plan.Tier, domain.Decision{
			Error: domain.CodeSiteLimitReached,
			Message: fmt.Sprintf(
				"You've reached the maximum number of sites (%d) for your plan. Please upgrade or deactivate another site.",
				admission.MaxSites,
			),
			MaxSites:   admission.MaxSites,
			UpgradeURL: s.url("/pricing"),
			SitesURL:   s.url("/dashboard/sites"),
		}), nil
	}

	s.recordActivation(ctx, account, siteID, req)

	snapshot, err := s.usage.Snapshot(ctx, account.ID, siteID, plan.Limits)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("usage snapshot: %w", err)
	}
	limits := plan.Limits

	s.log.Info("license validated",
		zap.Int64("account_id", account.ID.Int64()),
		zap.String("site_id", siteID),
		zap.String("plan", string(plan.Tier)),
		zap.Bool("renewal", admission.Renewal),
	)
	return s.decide(ctx, plan.Tier, domain.Decision{
		Valid:    true,
		Plan:     plan.Tier,
		Features: plan.FeatureSet(),
		Limits:   &limits,
		Usage:    &snapshot,
	}), nil
}

// Authenticate resolves the account behind a license key for plugin calls
// that need a known key.
func (s *Service) Authenticate(ctx context.Context, licenseKey string) (accountdomain.Account, error) {
	key := strings.TrimSpace(licenseKey)
	if key == "" {
		return accountdomain.Account{}, domain.ErrUnauthorized
	}
	account, err := s.accounts.GetByLicenseKey(ctx, key)
	if errors.Is(err, accountdomain.ErrNotFound) {
		return accountdomain.Account{}, domain.ErrUnauthorized
	}
	if err != nil {
		return accountdomain.Account{}, err
	}
	return account, nil
}

func (s *Service) TrackUsage(ctx context.Context, req domain.TrackUsageRequest) (domain.TrackUsageResult, error) {
	account, err := s.Authenticate(ctx, req.LicenseKey)
	if err != nil {
		return domain.TrackUsageResult{}, err
	}

	res, err := s.usage.Record(ctx, usagedomain.RecordRequest{
		AccountID: account.ID,
		SiteID:    req.SiteID,
		Plan:      account.Plan,
		Kind:      req.Kind,
		Count:     req.Count,
	})
	if err != nil {
		return domain.TrackUsageResult{}, err
	}
	if !res.Accepted {
		return domain.TrackUsageResult{
			Error:      res.Reason,
			Message:    fmt.Sprintf("You've reached your monthly limit for %s.", req.Kind.Label()),
			Remaining:  res.Remaining,
			Limit:      res.Limit,
			UpgradeURL: s.url("/pricing"),
		}, nil
	}
	return domain.TrackUsageResult{Success: true, Remaining: res.Remaining, Limit: res.Limit}, nil
}

func (s *Service) recordActivation(ctx context.Context, account accountdomain.Account, siteID string, req domain.ValidateRequest) {
	err := s.telemetry.Record(ctx, telemetrydomain.RecordRequest{
		AccountID:     account.ID,
		SiteID:        siteID,
		LicenseKey:    account.LicenseKey,
		EventType:     telemetrydomain.EventTypePluginActivated,
		EventName:     telemetrydomain.EventNameLicenseValidated,
		EventData:     map[string]any{"site_url": req.Meta.SiteURL},
		PluginVersion: req.Meta.PluginVersion,
		UserAgent:     req.UserAgent,
		IPAddress:     req.IPAddress,
	})
	if err != nil {
		s.log.Warn("activation telemetry dropped", zap.String("site_id", siteID), zap.Error(err))
	}
}

func (s *Service) invalidLicense() domain.Decision {
	return domain.Decision{
		Error:        domain.CodeInvalidLicense,
		Message:      "License key not found. Please check your license key and try again.",
		DashboardURL: s.url("/dashboard/license"),
	}
}

func (s *Service) decide(ctx context.Context, tier plandomain.Tier, d domain.Decision) domain.Decision {
	outcome := "valid"
	if !d.Valid {
		outcome = d.Error
	}
	s.obsMetrics.RecordLicenseValidation(ctx, string(tier), outcome)
	return d
}

func (s *Service) url(path string) string {
	return s.appURL + path
}
