package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/account/domain"
	"github.com/smallbiznis/licensor/internal/clock"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	sitedomain "github.com/smallbiznis/licensor/internal/site/domain"
	pkgdb "github.com/smallbiznis/licensor/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const licenseKeyAttempts = 5

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Repo     domain.Repository
	SiteRepo sitedomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	repo     domain.Repository
	siteRepo sitedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("account.service"),
		clock:    p.Clock,
		genID:    p.GenID,
		repo:     p.Repo,
		siteRepo: p.SiteRepo,
	}
}

// Create registers an account on the free plan with a fresh license key.
func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Account{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return domain.Account{}, err
	}
	if existing != nil {
		return domain.Account{}, domain.ErrEmailTaken
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:                 s.genID.Generate(),
		Email:              email,
		Name:               name,
		Plan:               plandomain.TierFree,
		SubscriptionStatus: domain.StatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	for attempt := 0; attempt < licenseKeyAttempts; attempt++ {
		key, err := newLicenseKey()
		if err != nil {
			return domain.Account{}, err
		}
		account.LicenseKey = key
		err = s.repo.Insert(ctx, s.db, &account)
		if err == nil {
			s.log.Info("account created", zap.Int64("account_id", account.ID.Int64()))
			return account, nil
		}
		if !pkgdb.IsDuplicateKeyErr(err) {
			return domain.Account{}, err
		}
		// email collided with a concurrent signup
		if other, findErr := s.repo.FindByEmail(ctx, s.db, email); findErr == nil && other != nil {
			return domain.Account{}, domain.ErrEmailTaken
		}
	}
	return domain.Account{}, domain.ErrLicenseKeyExhausted
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Account, error) {
	if id == 0 {
		return domain.Account{}, domain.ErrInvalidID
	}
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

// GetByLicenseKey looks up the holder of a key. Malformed keys are reported
// as not found without touching the database.
func (s *Service) GetByLicenseKey(ctx context.Context, licenseKey string) (domain.Account, error) {
	key := strings.TrimSpace(licenseKey)
	if !validLicenseKeyShape(key) {
		return domain.Account{}, domain.ErrNotFound
	}
	account, err := s.repo.FindByLicenseKey(ctx, s.db, key)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

// RegenerateLicense swaps the key and releases every site slot in one
// transaction; the old key stops validating at commit.
func (s *Service) RegenerateLicense(ctx context.Context, id snowflake.ID) (domain.RegenerateLicenseResult, error) {
	if id == 0 {
		return domain.RegenerateLicenseResult{}, domain.ErrInvalidID
	}

	var (
		result domain.RegenerateLicenseResult
		err    error
	)
	for attempt := 0; attempt < licenseKeyAttempts; attempt++ {
		result, err = s.regenerate(ctx, id)
		if !pkgdb.IsDuplicateKeyErr(err) {
			break
		}
	}
	if pkgdb.IsDuplicateKeyErr(err) {
		return domain.RegenerateLicenseResult{}, domain.ErrLicenseKeyExhausted
	}
	if err != nil {
		return domain.RegenerateLicenseResult{}, err
	}

	s.log.Info("license regenerated",
		zap.Int64("account_id", id.Int64()),
		zap.Int64("sites_deactivated", result.SitesDeactivated),
	)
	return result, nil
}

func (s *Service) regenerate(ctx context.Context, id snowflake.ID) (domain.RegenerateLicenseResult, error) {
	var result domain.RegenerateLicenseResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}

		key, err := newLicenseKey()
		if err != nil {
			return err
		}
		if _, err := s.repo.UpdateLicenseKey(ctx, tx, id, key, s.clock.Now()); err != nil {
			return err
		}

		released, err := s.siteRepo.DeactivateAll(ctx, tx, id)
		if err != nil {
			return err
		}
		result = domain.RegenerateLicenseResult{LicenseKey: key, SitesDeactivated: released}
		return nil
	})
	return result, err
}

func (s *Service) UpdateProfile(ctx context.Context, id snowflake.ID, req domain.UpdateProfileRequest) (domain.Account, error) {
	if id == 0 {
		return domain.Account{}, domain.ErrInvalidID
	}

	var update domain.ProfileUpdate
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Account{}, domain.ErrInvalidName
		}
		update.Name = &name
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return domain.Account{}, err
		}
		other, err := s.repo.FindByEmail(ctx, s.db, email)
		if err != nil {
			return domain.Account{}, err
		}
		if other != nil && other.ID != id {
			return domain.Account{}, domain.ErrEmailTaken
		}
		update.Email = &email
	}

	ok, err := s.repo.UpdateProfile(ctx, s.db, id, update, s.clock.Now())
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Account{}, domain.ErrEmailTaken
		}
		return domain.Account{}, err
	}
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	ok, err := s.repo.DeleteCascade(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	s.log.Info("account deleted", zap.Int64("account_id", id.Int64()))
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}
