package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/site/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("site.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// AdmitOrRefresh grants or refreshes an activation slot. The account row is
// locked for the whole check-then-write so two new sites cannot both take
// the last slot.
func (s *Service) AdmitOrRefresh(ctx context.Context, req domain.AdmitRequest) (domain.AdmitResult, error) {
	siteID := strings.TrimSpace(req.SiteID)
	if siteID == "" {
		return domain.AdmitResult{}, domain.ErrInvalidSiteID
	}
	if req.AccountID == 0 {
		return domain.AdmitResult{}, domain.ErrInvalidAccount
	}

	result := domain.AdmitResult{MaxSites: req.MaxSites}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.LockAccount(ctx, tx, req.AccountID); err != nil {
			return err
		}

		existing, err := s.repo.FindBySiteID(ctx, tx, siteID)
		if err != nil {
			return err
		}
		renewal := existing != nil && existing.IsActive && existing.AccountID == req.AccountID

		if !renewal {
			count, err := s.repo.CountActiveExcluding(ctx, tx, req.AccountID, siteID)
			if err != nil {
				return err
			}
			if count >= req.MaxSites {
				return nil
			}
		}

		now := s.clock.Now()
		site := &domain.SiteActivation{
			ID:                 s.genID.Generate(),
			AccountID:          req.AccountID,
			SiteID:             siteID,
			SiteURL:            req.Meta.SiteURL,
			PluginVersion:      req.Meta.PluginVersion,
			WordPressVersion:   req.Meta.WordPressVersion,
			WooCommerceVersion: req.Meta.WooCommerceVersion,
			ActivatedAt:        now,
			LastSeenAt:         now,
			IsActive:           true,
		}
		if renewal {
			site.ID = existing.ID
			site.ActivatedAt = existing.ActivatedAt
		} else if existing != nil {
			site.ID = existing.ID
		}
		if err := s.repo.Upsert(ctx, tx, site); err != nil {
			return err
		}

		result.Admitted = true
		result.Renewal = renewal
		result.Site = site
		return nil
	})
	if err != nil {
		s.log.Error("site admission failed",
			zap.String("site_id", siteID),
			zap.Int64("account_id", req.AccountID.Int64()),
			zap.Error(err),
		)
		return domain.AdmitResult{}, err
	}
	return result, nil
}

func (s *Service) Deactivate(ctx context.Context, accountID snowflake.ID, siteID string) error {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return domain.ErrInvalidSiteID
	}
	ok, err := s.repo.Deactivate(ctx, s.db, accountID, siteID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrSiteNotFound
	}
	s.log.Info("site deactivated",
		zap.String("site_id", siteID),
		zap.Int64("account_id", accountID.Int64()),
	)
	return nil
}

func (s *Service) DeactivateAll(ctx context.Context, accountID snowflake.ID) (int64, error) {
	return s.repo.DeactivateAll(ctx, s.db, accountID)
}

func (s *Service) List(ctx context.Context, accountID snowflake.ID, maxSites int64) (domain.Listing, error) {
	sites, err := s.repo.ListByAccount(ctx, s.db, accountID)
	if err != nil {
		return domain.Listing{}, err
	}
	var active int64
	for _, site := range sites {
		if site.IsActive {
			active++
		}
	}
	remaining := maxSites - active
	if remaining < 0 {
		remaining = 0
	}
	return domain.Listing{
		Sites:          sites,
		MaxSites:       maxSites,
		ActiveCount:    active,
		SitesRemaining: remaining,
	}, nil
}

func (s *Service) Touch(ctx context.Context, siteID string) error {
	return s.repo.Touch(ctx, s.db, siteID, s.clock.Now())
}
