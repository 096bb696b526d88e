package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type AdmitRequest struct {
	AccountID snowflake.ID
	SiteID    string
	Meta      ClientMeta
	MaxSites  int64
}

type AdmitResult struct {
	Admitted bool
	// Renewal is true when the site already held an active slot for the account.
	Renewal  bool
	MaxSites int64
	Site     *SiteActivation
}

type Listing struct {
	Sites          []SiteActivation `json:"sites"`
	MaxSites       int64            `json:"max_sites"`
	ActiveCount    int64            `json:"active_count"`
	SitesRemaining int64            `json:"sites_remaining"`
}

type Service interface {
	AdmitOrRefresh(ctx context.Context, req AdmitRequest) (AdmitResult, error)
	Deactivate(ctx context.Context, accountID snowflake.ID, siteID string) error
	DeactivateAll(ctx context.Context, accountID snowflake.ID) (int64, error)
	List(ctx context.Context, accountID snowflake.ID, maxSites int64) (Listing, error)
	Touch(ctx context.Context, siteID string) error
}

var (
	ErrInvalidSiteID  = errors.New("invalid_site_id")
	ErrInvalidAccount = errors.New("invalid_account_id")
	ErrSiteNotFound   = errors.New("site_not_found")
)
