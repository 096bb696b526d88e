package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventTypePluginActivated  = "plugin_activated"
	EventNameLicenseValidated = "license_validated"
)

// PluginEvent is one telemetry entry sent by, or recorded on behalf of, a
// plugin installation.
type PluginEvent struct {
	ID            string            `json:"id"`
	AccountID     *int64            `json:"account_id,omitempty"`
	SiteID        string            `json:"site_id"`
	LicenseKey    *string           `json:"-"`
	EventType     string            `json:"event_type"`
	EventName     string            `json:"event_name"`
	EventData     datatypes.JSONMap `json:"event_data"`
	PluginVersion string            `json:"plugin_version"`
	UserAgent     *string           `json:"user_agent,omitempty"`
	IPHash        *string           `json:"ip_hash,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
