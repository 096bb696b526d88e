package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
)

const ReasonLimitExceeded = "limit_exceeded"

type RecordRequest struct {
	AccountID snowflake.ID
	SiteID    string
	Plan      plandomain.Tier
	Kind      plandomain.ActionKind
	Count     int64
}

// RecordResult reports an accepted or rejected increment. A rejection is a
// normal outcome and carries Reason.
type RecordResult struct {
	Accepted  bool   `json:"success"`
	Reason    string `json:"error,omitempty"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	Limit     int64  `json:"limit"`
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (RecordResult, error)
	Snapshot(ctx context.Context, accountID snowflake.ID, siteID string, limits plandomain.Limits) (Snapshot, error)
	Overview(ctx context.Context, accountID snowflake.ID, limits plandomain.Limits) (Overview, error)
	History(ctx context.Context, accountID snowflake.ID, months int) ([]MonthUsage, error)
}

var (
	ErrInvalidActionKind = errors.New("invalid_action_kind")
	ErrInvalidCount      = errors.New("invalid_count")
	ErrInvalidSiteID     = errors.New("invalid_site_id")
	ErrInvalidAccount    = errors.New("invalid_account_id")
)
