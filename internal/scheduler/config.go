package scheduler

import (
	"time"

	"github.com/smallbiznis/licensor/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval    time.Duration
	EnabledJobs    []string
	BatchSize      int
	JobTimeout     time.Duration
	CheckoutMinAge time.Duration
	CheckoutMaxAge time.Duration
	EventRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    5 * time.Minute,
		BatchSize:      50,
		JobTimeout:     time.Minute,
		CheckoutMinAge: 10 * time.Minute,
		CheckoutMaxAge: 24 * time.Hour,
		EventRetention: 90 * 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	out := Config{
		RunInterval: cfg.Scheduler.RunInterval,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}
	if days := cfg.Scheduler.EventRetentionDays; days > 0 {
		out.EventRetention = time.Duration(days) * 24 * time.Hour
	}
	return out.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.CheckoutMinAge <= 0 {
		c.CheckoutMinAge = defaults.CheckoutMinAge
	}
	if c.CheckoutMaxAge <= c.CheckoutMinAge {
		c.CheckoutMaxAge = defaults.CheckoutMaxAge
	}
	if c.EventRetention <= 0 {
		c.EventRetention = defaults.EventRetention
	}
	return c
}
