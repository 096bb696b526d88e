package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	AccountID     snowflake.ID
	SiteID        string
	LicenseKey    string
	EventType     string
	EventName     string
	EventData     map[string]any
	PluginVersion string
	UserAgent     string
	IPAddress     string
}

type Service interface {
	// Record stores an event on behalf of another flow. Callers treat a
	// failure as non-fatal.
	Record(ctx context.Context, req RecordRequest) error
	// Track stores an event submitted by the plugin after validating it.
	Track(ctx context.Context, req RecordRequest) (PluginEvent, error)
	ListBySite(ctx context.Context, siteID string, limit int) ([]PluginEvent, error)
	// Prune drops events older than the retention window.
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

var (
	ErrInvalidSiteID    = errors.New("invalid_site_id")
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidEventName = errors.New("invalid_event_name")
	ErrInvalidRetention = errors.New("invalid_retention")
)
