package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/clock"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/smallbiznis/licensor/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryMonths = 6
	maxHistoryMonths     = 24
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Repo       domain.Repository
	Catalog    plandomain.Catalog
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	genID      *snowflake.Node
	repo       domain.Repository
	catalog    plandomain.Catalog
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		catalog:    p.Catalog,
		obsMetrics: p.ObsMetrics,
	}
}

// Record counts req.Count units of req.Kind against the plan's monthly
// limit. Over-limit requests are rejected whole and leave the counter as is.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (domain.RecordResult, error) {
	column, ok := req.Kind.Counter()
	if !ok {
		return domain.RecordResult{}, domain.ErrInvalidActionKind
	}
	if req.Count < 1 {
		return domain.RecordResult{}, domain.ErrInvalidCount
	}
	siteID := strings.TrimSpace(req.SiteID)
	if siteID == "" {
		return domain.RecordResult{}, domain.ErrInvalidSiteID
	}
	if req.AccountID == 0 {
		return domain.RecordResult{}, domain.ErrInvalidAccount
	}

	limit := s.catalog.Resolve(req.Plan).Limits.For(req.Kind)
	now := s.clock.Now()
	key := domain.RecordKey{AccountID: req.AccountID, SiteID: siteID, Month: domain.MonthKey(now)}

	if err := s.repo.EnsureRecord(ctx, s.db, s.genID.Generate(), key, now); err != nil {
		return domain.RecordResult{}, fmt.Errorf("ensure usage record: %w", err)
	}
	accepted, err := s.repo.Increment(ctx, s.db, key, column, req.Count, limit, now)
	if err != nil {
		return domain.RecordResult{}, fmt.Errorf("increment usage: %w", err)
	}
	record, err := s.repo.Find(ctx, s.db, key)
	if err != nil {
		return domain.RecordResult{}, fmt.Errorf("load usage record: %w", err)
	}

	var used int64
	if record != nil {
		used = record.Count(req.Kind)
	}
	result := domain.RecordResult{
		Accepted:  accepted,
		Used:      used,
		Remaining: clampRemaining(limit, used),
		Limit:     limit,
	}

	outcome := "accepted"
	units := req.Count
	if !accepted {
		result.Reason = domain.ReasonLimitExceeded
		outcome = domain.ReasonLimitExceeded
		units = 0
		s.log.Info("usage limit reached",
			zap.Int64("account_id", req.AccountID.Int64()),
			zap.String("site_id", siteID),
			zap.String("action_kind", string(req.Kind)),
			zap.Int64("requested", req.Count),
			zap.Int64("remaining", result.Remaining),
		)
	}
	s.obsMetrics.RecordUsage(ctx, string(req.Kind), outcome, units)
	return result, nil
}

// Snapshot is the per-site view returned with a license decision. The
// percentage covers assistant actions and chatbot messages only.
func (s *Service) Snapshot(ctx context.Context, accountID snowflake.ID, siteID string, limits plandomain.Limits) (domain.Snapshot, error) {
	month := domain.MonthKey(s.clock.Now())
	record, err := s.repo.Find(ctx, s.db, domain.RecordKey{AccountID: accountID, SiteID: siteID, Month: month})
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{Month: month}
	if record != nil {
		snap.Counters = domain.Sum([]domain.UsageRecord{*record})
	}
	snap.PercentageUsed = plandomain.Percentage(
		snap.AssistantActions+snap.ChatbotMessages,
		limits.AssistantMonthly+limits.ChatbotMonthly,
	)
	return snap, nil
}

func (s *Service) Overview(ctx context.Context, accountID snowflake.ID, limits plandomain.Limits) (domain.Overview, error) {
	month := domain.MonthKey(s.clock.Now())
	records, err := s.repo.ListByAccountMonth(ctx, s.db, accountID, month)
	if err != nil {
		return domain.Overview{}, err
	}
	usage := domain.Sum(records)
	return domain.Overview{
		Month:          month,
		Usage:          usage,
		Limits:         limits,
		PercentageUsed: plandomain.Percentage(usage.WeightedTotal, limits.Weighted()),
	}, nil
}

// History returns one entry per month, newest first, for the current month
// and the months before it. Months without activity are zero-filled.
func (s *Service) History(ctx context.Context, accountID snowflake.ID, months int) ([]domain.MonthUsage, error) {
	if months <= 0 {
		months = defaultHistoryMonths
	}
	if months > maxHistoryMonths {
		months = maxHistoryMonths
	}

	now := s.clock.Now()
	keys := make([]string, 0, months+1)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i <= months; i++ {
		keys = append(keys, domain.MonthKey(first.AddDate(0, -i, 0)))
	}

	records, err := s.repo.ListByAccountSince(ctx, s.db, accountID, keys[len(keys)-1])
	if err != nil {
		return nil, err
	}
	byMonth := make(map[string][]domain.UsageRecord, len(keys))
	for _, r := range records {
		byMonth[r.Month] = append(byMonth[r.Month], r)
	}

	history := make([]domain.MonthUsage, 0, len(keys))
	for _, key := range keys {
		history = append(history, domain.MonthUsage{Month: key, Counters: domain.Sum(byMonth[key])})
	}
	return history, nil
}

func clampRemaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}
