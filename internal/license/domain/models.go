package domain

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/licensor/internal/account/domain"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	sitedomain "github.com/smallbiznis/licensor/internal/site/domain"
	usagedomain "github.com/smallbiznis/licensor/internal/usage/domain"
)

// Decision codes returned to the plugin. They are stable and clients
// branch on them.
const (
	CodeInvalidLicense   = "invalid_license"
	CodeLicenseExpired   = "license_expired"
	CodePaymentFailed    = "payment_failed"
	CodeSiteLimitReached = "site_limit_reached"
)

type ValidateRequest struct {
	LicenseKey string
	SiteID     string
	Meta       sitedomain.ClientMeta
	IPAddress  string
	UserAgent  string
}

// Decision is the outcome of a validation. Exactly one of the success or
// failure field groups is populated.
type Decision struct {
	Valid bool `json:"valid"`

	Plan     plandomain.Tier       `json:"plan,omitempty"`
	Features map[string]bool       `json:"features,omitempty"`
	Limits   *plandomain.Limits    `json:"limits,omitempty"`
	Usage    *usagedomain.Snapshot `json:"usage,omitempty"`

	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
	MaxSites     int64  `json:"max_sites,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	RenewURL     string `json:"renew_url,omitempty"`
	BillingURL   string `json:"billing_url,omitempty"`
	UpgradeURL   string `json:"upgrade_url,omitempty"`
	SitesURL     string `json:"sites_url,omitempty"`
}

type TrackUsageRequest struct {
	LicenseKey string
	SiteID     string
	Kind       plandomain.ActionKind
	Count      int64
}

type TrackUsageResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Remaining  int64  `json:"remaining"`
	Limit      int64  `json:"limit"`
	UpgradeURL string `json:"upgrade_url,omitempty"`
}

type Service interface {
	ValidateLicense(ctx context.Context, req ValidateRequest) (Decision, error)
	Authenticate(ctx context.Context, licenseKey string) (accountdomain.Account, error)
	TrackUsage(ctx context.Context, req TrackUsageRequest) (TrackUsageResult, error)
}

var (
	ErrMissingLicenseKey = errors.New("missing_license_key")
	ErrMissingSiteID     = errors.New("missing_site_id")
	ErrUnauthorized      = errors.New("invalid_license_key")
)
