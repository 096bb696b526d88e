package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/clock"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/licensor/internal/subscription/domain"
	telemetrydomain "github.com/smallbiznis/licensor/internal/telemetry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobReconcileCheckouts = "reconcile_checkouts"
	JobPrunePluginEvents  = "prune_plugin_events"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	TelemetrySvc    telemetrydomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
	Config          Config              `optional:"true"`
}

// Scheduler runs periodic maintenance: recovering checkouts whose webhook
// never arrived and pruning old plugin telemetry.
type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	telemetrySvc    telemetrydomain.Service
	obsMetrics      *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.TelemetrySvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		telemetrySvc:    p.TelemetrySvc,
		obsMetrics:      p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := s.newJobRun(name)
	s.logJobStart(ctx, run)

	err := fn(ctx, run)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	switch {
	case err == nil:
		s.obsMetrics.RecordJobRun(parent, name, "success", s.clock.Now().Sub(start))
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// Soft timeout; the next tick picks up the remainder.
		s.obsMetrics.RecordJobRun(parent, name, "timeout", s.clock.Now().Sub(start))
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	default:
		s.obsMetrics.RecordJobRun(parent, name, "error", s.clock.Now().Sub(start))
		return fmt.Errorf("%s: %w", name, err)
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context, *jobRun) error
	}{
		{JobReconcileCheckouts, s.ReconcileCheckoutsJob},
		{JobPrunePluginEvents, s.PrunePluginEventsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// ReconcileCheckoutsJob polls the payment provider for checkouts still open
// after CheckoutMinAge. Anything older than CheckoutMaxAge is abandoned.
func (s *Scheduler) ReconcileCheckoutsJob(ctx context.Context, run *jobRun) error {
	applied, err := s.subscriptionSvc.ReconcileOpen(ctx, s.cfg.CheckoutMinAge, s.cfg.CheckoutMaxAge, s.cfg.BatchSize)
	run.AddProcessed(applied)
	return err
}

func (s *Scheduler) PrunePluginEventsJob(ctx context.Context, run *jobRun) error {
	deleted, err := s.telemetrySvc.Prune(ctx, s.cfg.EventRetention)
	run.AddProcessed(int(deleted))
	return err
}
