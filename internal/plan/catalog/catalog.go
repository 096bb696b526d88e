package catalog

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// Holder serves the current plan table and swaps it atomically when
// plans.yml changes on disk.
type Holder struct {
	current atomic.Value // holds Table
	log     *zap.Logger
}

func New(p Params) (*Holder, error) {
	log := p.Log.Named("plan.catalog")

	v := viper.New()
	v.SetConfigName("plans")
	v.SetConfigType("yml")
	if p.Cfg.PlanConfigPath != "" {
		v.AddConfigPath(p.Cfg.PlanConfigPath)
	}
	v.AddConfigPath("/etc/licensor")
	v.AddConfigPath(".")

	holder := &Holder{log: log}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read plan catalog: %w", err)
		}
		holder.current.Store(DefaultTable())
		log.Info("plan catalog file not found, using built-in plans")
		return holder, nil
	}

	table, err := decode(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(table)
	log.Info("plan catalog loaded", zap.String("file", v.ConfigFileUsed()))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decode(v)
		if err != nil {
			log.Warn("plan catalog reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStatic serves a fixed table.
func NewStatic(table Table) *Holder {
	h := &Holder{log: zap.NewNop()}
	h.current.Store(table)
	return h
}

func (h *Holder) table() Table {
	return h.current.Load().(Table)
}

func (h *Holder) Resolve(tier domain.Tier) domain.Plan {
	plans := h.table().Plans
	if p, ok := plans[tier]; ok && tier.Valid() {
		return p
	}
	return plans[domain.TierFree]
}

func (h *Holder) Price(tier domain.Tier, cycle domain.BillingCycle) (domain.Price, error) {
	if !tier.Paid() {
		return domain.Price{}, domain.ErrInvalidPlan
	}
	if _, ok := domain.ParseBillingCycle(string(cycle)); !ok {
		return domain.Price{}, domain.ErrInvalidBillingCycle
	}
	price, ok := h.table().Plans[tier].Prices[cycle]
	if !ok {
		return domain.Price{}, domain.ErrInvalidBillingCycle
	}
	return price, nil
}

func decode(v *viper.Viper) (Table, error) {
	var loaded Table
	if err := v.Unmarshal(&loaded); err != nil {
		return Table{}, fmt.Errorf("decode plan catalog: %w", err)
	}

	table := DefaultTable()
	for tier, p := range loaded.Plans {
		if !tier.Valid() {
			return Table{}, fmt.Errorf("unknown plan tier %q", tier)
		}
		p.Tier = tier
		if p.Prices == nil {
			p.Prices = table.Plans[tier].Prices
		}
		if p.Features == nil {
			p.Features = table.Plans[tier].Features
		}
		table.Plans[tier] = p
	}

	if err := validate(table); err != nil {
		return Table{}, err
	}
	return table, nil
}

func validate(table Table) error {
	for _, tier := range domain.Tiers {
		p, ok := table.Plans[tier]
		if !ok {
			return fmt.Errorf("plan %s is missing", tier)
		}
		l := p.Limits
		if l.AssistantMonthly < 0 || l.ContentMonthly < 0 || l.ChatbotMonthly < 0 || l.InsightsMonthly < 0 {
			return fmt.Errorf("plan %s has a negative limit", tier)
		}
		if l.MaxSites < 1 {
			return fmt.Errorf("plan %s must allow at least one site", tier)
		}
		if !tier.Paid() {
			continue
		}
		for _, cycle := range []domain.BillingCycle{domain.BillingCycleMonthly, domain.BillingCycleYearly} {
			if price, ok := p.Prices[cycle]; !ok || price.Amount <= 0 || price.Currency == "" {
				return fmt.Errorf("plan %s has no %s price", tier, cycle)
			}
		}
	}
	return nil
}

var _ domain.Catalog = (*Holder)(nil)
