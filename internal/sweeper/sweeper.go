// Package sweeper drives the periodic billing passes: renewing due
// subscriptions and expiring those that exhausted their grace period.
package sweeper

import (
	"context"
	"time"

	"github.com/smallbiznis/rebill/internal/config"
	"github.com/smallbiznis/rebill/internal/observability/metrics"
	subdomain "github.com/smallbiznis/rebill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobRenewals    = "renewals"
	jobExpirations = "expirations"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	SubscriptionSvc subdomain.Service
	Billing         *config.BillingConfigHolder
	Config          Config `optional:"true"`
}

type Sweeper struct {
	log     *zap.Logger
	cfg     Config
	subs    subdomain.Service
	billing *config.BillingConfigHolder
}

func New(p Params) *Sweeper {
	return &Sweeper{
		log:     p.Log.Named("sweeper"),
		cfg:     p.Config.withDefaults(),
		subs:    p.SubscriptionSvc,
		billing: p.Billing,
	}
}

func (s *Sweeper) runJob(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := time.Now()
	sweepMetrics := metrics.Sweeper()
	sweepMetrics.IncJobRun(name)

	err := fn(ctx)
	sweepMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil {
		sweepMetrics.IncJobError(name)
		s.log.Error("sweep job failed", zap.String("job", name), zap.Error(err))
	}
}

// RunOnce executes a single sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	s.runJob(ctx, jobRenewals, s.renewDue)
	s.runJob(ctx, jobExpirations, s.expireLapsed)
}

// RunForever sweeps on the configured interval until the context ends.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// renewDue renews every due subscription. One subscriber's failure never
// aborts the rest of the batch.
func (s *Sweeper) renewDue(ctx context.Context) error {
	due, err := s.subs.ListDueNow(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	sweepMetrics := metrics.Sweeper()

	for _, sub := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := s.subs.Renew(ctx, sub.ID.String())
		if err != nil {
			sweepMetrics.IncProcessed(jobRenewals, "error")
			s.log.Warn("renewal failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
			continue
		}
		sweepMetrics.IncProcessed(jobRenewals, string(res.Outcome))
		s.log.Debug("renewal processed",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("outcome", string(res.Outcome)),
		)
	}
	return nil
}

// expireLapsed expires past_due subscriptions whose grace period ran out.
func (s *Sweeper) expireLapsed(ctx context.Context) error {
	graceDays := s.billing.Get().GracePeriodDays
	lapsed, err := s.subs.ListDueAgo(ctx, graceDays, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	sweepMetrics := metrics.Sweeper()

	for _, sub := range lapsed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sub.State != subdomain.StatePastDue {
			continue
		}
		if _, err := s.subs.Expire(ctx, sub.ID.String()); err != nil {
			sweepMetrics.IncProcessed(jobExpirations, "error")
			s.log.Warn("expiration failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
			continue
		}
		sweepMetrics.IncProcessed(jobExpirations, "expired")
		s.log.Info("subscription expired", zap.String("subscription_id", sub.ID.String()))
	}
	return nil
}
