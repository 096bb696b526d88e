package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SiteActivation struct {
	ID                 snowflake.ID `json:"id"`
	AccountID          snowflake.ID `json:"account_id"`
	SiteID             string       `json:"site_id"`
	SiteURL            string       `json:"site_url"`
	PluginVersion      string       `json:"plugin_version"`
	WordPressVersion   *string      `json:"wordpress_version"`
	WooCommerceVersion *string      `json:"woocommerce_version"`
	ActivatedAt        time.Time    `json:"activated_at"`
	LastSeenAt         time.Time    `json:"last_seen_at"`
	IsActive           bool         `json:"is_active"`
}

// ClientMeta is what the plugin reports about the installation on every call.
type ClientMeta struct {
	SiteURL            string
	PluginVersion      string
	WordPressVersion   *string
	WooCommerceVersion *string
}
