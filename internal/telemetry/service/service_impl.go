package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/telemetry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxNameLength     = 64
	defaultListLimit  = 50
	maxListLimit      = 200
	maxUserAgentBytes = 512
)

var eventNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("telemetry.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) error {
	event := s.build(req)
	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		s.log.Warn("failed to record plugin event",
			zap.String("event_name", event.EventName),
			zap.String("site_id", event.SiteID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) Track(ctx context.Context, req domain.RecordRequest) (domain.PluginEvent, error) {
	if strings.TrimSpace(req.SiteID) == "" {
		return domain.PluginEvent{}, domain.ErrInvalidSiteID
	}
	if !validName(req.EventType) {
		return domain.PluginEvent{}, domain.ErrInvalidEventType
	}
	if !validName(req.EventName) {
		return domain.PluginEvent{}, domain.ErrInvalidEventName
	}

	event := s.build(req)
	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		return domain.PluginEvent{}, err
	}
	return event, nil
}

func (s *Service) ListBySite(ctx context.Context, siteID string, limit int) ([]domain.PluginEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListBySite(ctx, s.db, strings.TrimSpace(siteID), limit)
}

func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, domain.ErrInvalidRetention
	}
	cutoff := s.clock.Now().Add(-retention)
	deleted, err := s.repo.DeleteBefore(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("pruned plugin events",
			zap.Time("cutoff", cutoff),
			zap.Int64("deleted", deleted),
		)
	}
	return deleted, nil
}

func (s *Service) build(req domain.RecordRequest) domain.PluginEvent {
	now := s.clock.Now()
	event := domain.PluginEvent{
		ID:            ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SiteID:        strings.TrimSpace(req.SiteID),
		EventType:     strings.TrimSpace(req.EventType),
		EventName:     strings.TrimSpace(req.EventName),
		EventData:     datatypes.JSONMap(req.EventData),
		PluginVersion: strings.TrimSpace(req.PluginVersion),
		CreatedAt:     now,
	}
	if event.EventData == nil {
		event.EventData = datatypes.JSONMap{}
	}
	if req.AccountID != 0 {
		id := req.AccountID.Int64()
		event.AccountID = &id
	}
	if key := strings.TrimSpace(req.LicenseKey); key != "" {
		event.LicenseKey = &key
	}
	if ua := strings.TrimSpace(req.UserAgent); ua != "" {
		if len(ua) > maxUserAgentBytes {
			ua = ua[:maxUserAgentBytes]
		}
		event.UserAgent = &ua
	}
	if hash := HashIP(req.IPAddress); hash != "" {
		event.IPHash = &hash
	}
	return event
}

func validName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= maxNameLength && eventNamePattern.MatchString(name)
}
