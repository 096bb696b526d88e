package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateAccountRequest struct {
	Email string
	Name  string
}

type UpdateProfileRequest struct {
	Name  *string
	Email *string
}

type RegenerateLicenseResult struct {
	LicenseKey       string `json:"new_license_key"`
	SitesDeactivated int64  `json:"sites_deactivated"`
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	Get(ctx context.Context, id snowflake.ID) (Account, error)
	GetByLicenseKey(ctx context.Context, licenseKey string) (Account, error)
	RegenerateLicense(ctx context.Context, id snowflake.ID) (RegenerateLicenseResult, error)
	UpdateProfile(ctx context.Context, id snowflake.ID, req UpdateProfileRequest) (Account, error)
	Delete(ctx context.Context, id snowflake.ID) error
}

var (
	ErrNotFound            = errors.New("account_not_found")
	ErrInvalidID           = errors.New("invalid_account_id")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidName         = errors.New("invalid_name")
	ErrEmailTaken          = errors.New("email_taken")
	ErrLicenseKeyExhausted = errors.New("license_key_exhausted")
)
