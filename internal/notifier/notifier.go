// Package notifier dispatches subscription lifecycle events. Mail rendering
// and delivery live outside this engine; the default dispatcher only logs,
// and deployments swap in their own Dispatcher through fx.
package notifier

import (
	"context"

	subdomain "github.com/smallbiznis/rebill/internal/subscription/domain"
	txdomain "github.com/smallbiznis/rebill/internal/transaction/domain"
	"go.uber.org/zap"
)

// Dispatcher receives billing outcomes the subscriber should hear about.
// ChargeFailure and SecondChargeFailure map to warning levels 1 and 2;
// deeper levels emit nothing.
type Dispatcher interface {
	ChargeSuccess(ctx context.Context, sub *subdomain.Subscription, entry *txdomain.Entry)
	ChargeFailure(ctx context.Context, sub *subdomain.Subscription, entry *txdomain.Entry)
	SecondChargeFailure(ctx context.Context, sub *subdomain.Subscription, entry *txdomain.Entry)
	CreditSuccess(ctx context.Context, sub *subdomain.Subscription, entry *txdomain.Entry)
}

type logDispatcher struct {
	log *zap.Logger
}

func NewDispatcher(log *zap.Logger) Dispatcher {
	return &logDispatcher{log: log.Named("notifier")}
}

func (d *logDispatcher) emit(event string, sub *subdomain.Subscription, entry *txdomain.Entry) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("subscriber_type", sub.SubscriberType),
		zap.String("subscriber_id", sub.SubscriberID),
	}
	if entry != nil {
		fields = append(fields, zap.String("entry_id", entry.ID.String()), zap.String("message", entry.Message))
	}
	d.log.Info("subscription event", fields...)
}

func (d *logDispatcher) ChargeSuccess(_ context.Context, sub *subdomain.Subscription, entry *txdomain.Entry) {
	d.emit("charge_success", sub, entry)
}

func (d *logDispatcher) ChargeFailure(_ context.Context, sub *subdomain.Subscription, entry *txdomain.Entry) {
	d.emit("charge_failure", sub, entry)
}

func (d *logDispatcher) SecondChargeFailure(_ context.Context, sub *subdomain.Subscription, entry *txdomain.Entry) {
	d.emit("second_charge_failure", sub, entry)
}

func (d *logDispatcher) CreditSuccess(_ context.Context, sub *subdomain.Subscription, entry *txdomain.Entry) {
	d.emit("credit_success", sub, entry)
}
