package domain

import (
	"context"
	"errors"
	"time"

	gwdomain "github.com/smallbiznis/rebill/internal/gateway/domain"
	"github.com/smallbiznis/rebill/internal/money"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	txdomain "github.com/smallbiznis/rebill/internal/transaction/domain"
)

var (
	ErrInvalidSubscriptionID = errors.New("invalid_subscription_id")
	ErrInvalidSubscriber     = errors.New("invalid_subscriber")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrSubscriptionExists    = errors.New("subscription_exists")
	ErrProfileNotFound       = errors.New("profile_not_found")
	ErrCurrencyMismatch      = errors.New("currency_mismatch")
)

type RenewOutcome string

const (
	RenewNotDue          RenewOutcome = "not_due"
	RenewNoPaymentMethod RenewOutcome = "no_payment_method"
	RenewFailed          RenewOutcome = "failed"
	RenewNothingToCharge RenewOutcome = "nothing_to_charge"
	RenewCharged         RenewOutcome = "charged"
)

type RenewResult struct {
	Outcome      RenewOutcome `json:"outcome"`
	Charged      money.Money  `json:"charged"`
	Subscription Subscription `json:"subscription"`
}

type SettleOutcome string

const (
	SettleNothingToDo     SettleOutcome = "nothing_to_do"
	SettleNoPaymentMethod SettleOutcome = "no_payment_method"
	SettleFailed          SettleOutcome = "failed"
	SettleSettled         SettleOutcome = "settled"
)

type SettleResult struct {
	Outcome      SettleOutcome `json:"outcome"`
	Amount       money.Money   `json:"amount"`
	Subscription Subscription  `json:"subscription"`
}

type ChangePlanResult struct {
	Changed      bool         `json:"changed"`
	Subscription Subscription `json:"subscription"`
}

type CardResult struct {
	Accepted bool    `json:"accepted"`
	Message  string  `json:"message,omitempty"`
	Profile  Profile `json:"profile"`
}

type CreateSubscriptionRequest struct {
	SubscriberType string `json:"subscriber_type"`
	SubscriberID   string `json:"subscriber_id"`
	PlanID         string `json:"plan_id"`
}

type SubscriptionDetail struct {
	Subscription
	Profile Profile `json:"profile"`
}

// SubscriberResolver is the engine's view of the owning subscriber entity.
// Contact returns an empty string when the subscriber has no reachable
// address, which suppresses dunning notifications. PlanCheck returns the
// plan limits a subscriber exceeds, empty meaning the plan is allowed.
type SubscriberResolver interface {
	Contact(ctx context.Context, subscriberType, subscriberID string) (string, error)
	PlanCheck(ctx context.Context, subscriberType, subscriberID string, plan plandomain.Plan) ([]string, error)
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (SubscriptionDetail, error)
	Get(ctx context.Context, id string) (SubscriptionDetail, error)
	GetBySubscriber(ctx context.Context, subscriberType, subscriberID string) (SubscriptionDetail, error)

	// Renew runs one billing cycle; see RenewOutcome for the result shapes.
	Renew(ctx context.Context, id string) (RenewResult, error)

	// ChangePlan switches plans, settling prorated value against the balance
	// first. Same plan is a no-op with Changed=false.
	ChangePlan(ctx context.Context, id, planID string) (ChangePlanResult, error)

	// Cancel reverts to the default plan; unused balance stays on account.
	Cancel(ctx context.Context, id string) (ChangePlanResult, error)

	// Delete cancels and then removes the subscription with its profile and
	// ledger, unless the owning subscriber soft-deletes, in which case the
	// record is preserved.
	Delete(ctx context.Context, id string, supportsSoftDelete bool) error

	Expire(ctx context.Context, id string) (Subscription, error)

	ChargeBalance(ctx context.Context, id, description string) (SettleResult, error)
	CreditBalance(ctx context.Context, id string) (SettleResult, error)

	// ReceiveNotification applies an inbound settlement event; duplicates by
	// merchant reference are ignored.
	ReceiveNotification(ctx context.Context, id string, n Notification) error

	ValidateCard(ctx context.Context, id string, card gwdomain.Card) (CardResult, error)
	StoreCard(ctx context.Context, id string, card gwdomain.Card) (CardResult, error)
	RemoveCard(ctx context.Context, id string) (CardResult, error)

	ListTransactions(ctx context.Context, id string, limit int) ([]txdomain.Entry, error)
	AllowedPlans(ctx context.Context, id string) ([]plandomain.Plan, error)

	ListDueOn(ctx context.Context, date time.Time, limit int) ([]Subscription, error)
	ListDueNow(ctx context.Context, limit int) ([]Subscription, error)
	ListDueIn(ctx context.Context, days, limit int) ([]Subscription, error)
	ListDueAgo(ctx context.Context, days, limit int) ([]Subscription, error)
	ListByWarningLevel(ctx context.Context, level *int, limit int) ([]Subscription, error)
}
