package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/clock"
	"github.com/smallbiznis/rebill/internal/config"
	"github.com/smallbiznis/rebill/internal/notifier"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	"github.com/smallbiznis/rebill/internal/subscription/domain"
	txdomain "github.com/smallbiznis/rebill/internal/transaction/domain"
	"github.com/smallbiznis/rebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	billing   *config.BillingConfigHolder
	repo      domain.Repository
	plans     plandomain.Repository
	planSvc   plandomain.Service
	entries   txdomain.Repository
	processor txdomain.Processor
	notifier  notifier.Dispatcher
	resolver  domain.SubscriberResolver
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Billing   *config.BillingConfigHolder
	Repo      domain.Repository
	Plans     plandomain.Repository
	PlanSvc   plandomain.Service
	Entries   txdomain.Repository
	Processor txdomain.Processor
	Notifier  notifier.Dispatcher
	Resolver  domain.SubscriberResolver
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		billing:   p.Billing,
		repo:      p.Repo,
		plans:     p.Plans,
		planSvc:   p.PlanSvc,
		entries:   p.Entries,
		processor: p.Processor,
		notifier:  p.Notifier,
		resolver:  p.Resolver,
	}
}

// deferred is a notification queued during a transaction and fired only
// after the commit, so a rollback never notifies anyone.
type deferred func(ctx context.Context)

func (s *Service) fire(ctx context.Context, events []deferred) {
	for _, ev := range events {
		ev(ctx)
	}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, domain.ErrInvalidSubscriptionID
	}
	return id, nil
}

func (s *Service) lockSubscription(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) lockProfile(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) (*domain.Profile, error) {
	profile, err := s.repo.FindProfileBySubscription(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Service) planByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*plandomain.Plan, error) {
	plan, err := s.plans.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

// applyTransition advances the state machine and applies the entry side
// effects: free clears the renewal date, trial schedules it at the end of
// the trial period, active extends it by one plan interval from wherever
// the previous cycle ended. Any state change resets the warning level.
func (s *Service) applyTransition(sub *domain.Subscription, ev domain.Event, plan *plandomain.Plan, today time.Time) error {
	if ev == domain.EventPastDue && !sub.Due(today, 0) {
		return domain.ErrInvalidTransition
	}
	next, err := domain.Transition(sub.State, ev)
	if err != nil {
		return err
	}

	switch ev {
	case domain.EventFree:
		sub.NextRenewalOn = nil
	case domain.EventTrial:
		d := today.AddDate(0, 0, s.billing.Get().TrialPeriodDays)
		sub.NextRenewalOn = &d
	case domain.EventActive:
		start := today
		if sub.NextRenewalOn != nil {
			start = *sub.NextRenewalOn
		}
		d := start.AddDate(0, plan.IntervalMonths, 0)
		sub.NextRenewalOn = &d
	}

	from := sub.State
	sub.State = next
	if from != next {
		sub.WarningLevel = nil
	}
	return nil
}

// queueChargeFailure bumps the warning level and, when the subscriber has a
// reachable contact, queues the level-1 or level-2 dunning event. Deeper
// levels stay silent; escalation past that point is the expiry sweep's job.
func (s *Service) queueChargeFailure(ctx context.Context, sub *domain.Subscription, entry *txdomain.Entry, events *[]deferred) {
	level := 1
	if sub.WarningLevel != nil {
		level = *sub.WarningLevel + 1
	}
	sub.WarningLevel = &level

	contact, err := s.resolver.Contact(ctx, sub.SubscriberType, sub.SubscriberID)
	if err != nil {
		s.log.Warn("subscriber contact lookup failed",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
		return
	}
	if contact == "" {
		return
	}

	snapshot := *sub
	switch level {
	case 1:
		*events = append(*events, func(ctx context.Context) { s.notifier.ChargeFailure(ctx, &snapshot, entry) })
	case 2:
		*events = append(*events, func(ctx context.Context) { s.notifier.SecondChargeFailure(ctx, &snapshot, entry) })
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.SubscriptionDetail, error) {
	subscriberType := strings.TrimSpace(req.SubscriberType)
	subscriberID := strings.TrimSpace(req.SubscriberID)
	if subscriberType == "" || subscriberID == "" {
		return domain.SubscriptionDetail{}, domain.ErrInvalidSubscriber
	}

	var (
		plan plandomain.Plan
		err  error
	)
	if raw := strings.TrimSpace(req.PlanID); raw != "" {
		plan, err = s.planSvc.Get(ctx, raw)
	} else {
		plan, err = s.planSvc.DefaultPlan(ctx)
	}
	if err != nil {
		return domain.SubscriptionDetail{}, err
	}

	cfg := s.billing.Get()
	now := s.clock.Now()
	today := clock.Today(s.clock)

	var detail domain.SubscriptionDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySubscriber(ctx, tx, subscriberType, subscriberID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrSubscriptionExists
		}

		sub := domain.Subscription{
			ID:             s.genID.Generate(),
			SubscriberType: subscriberType,
			SubscriberID:   subscriberID,
			PlanID:         plan.ID,
			State:          domain.StatePending,
			Currency:       cfg.Currency,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Insert(ctx, tx, &sub); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSubscriptionExists
			}
			return err
		}

		profile := domain.Profile{
			ID:             s.genID.Generate(),
			SubscriptionID: sub.ID,
			Status:         domain.ProfileStatusNoInfo,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.InsertProfile(ctx, tx, &profile); err != nil {
			return err
		}

		// Advance out of pending into the plan-appropriate start state.
		var ev domain.Event
		switch {
		case plan.Free():
			ev = domain.EventFree
		case cfg.TrialPeriodDays > 0:
			ev = domain.EventTrial
		default:
			ev = domain.EventActive
		}
		if err := s.applyTransition(&sub, ev, &plan, today); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, &sub); err != nil {
			return err
		}

		detail = domain.SubscriptionDetail{Subscription: sub, Profile: profile}
		return nil
	})
	if err != nil {
		return domain.SubscriptionDetail{}, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", detail.ID.String()),
		zap.String("plan", plan.Name),
		zap.String("state", string(detail.State)),
	)
	return detail, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (domain.SubscriptionDetail, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.SubscriptionDetail{}, err
	}
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.SubscriptionDetail{}, err
	}
	if sub == nil {
		return domain.SubscriptionDetail{}, domain.ErrSubscriptionNotFound
	}
	profile, err := s.lockProfile(ctx, s.db, sub.ID)
	if err != nil {
		return domain.SubscriptionDetail{}, err
	}
	return domain.SubscriptionDetail{Subscription: *sub, Profile: *profile}, nil
}

func (s *Service) GetBySubscriber(ctx context.Context, subscriberType, subscriberID string) (domain.SubscriptionDetail, error) {
	sub, err := s.repo.FindBySubscriber(ctx, s.db, strings.TrimSpace(subscriberType), strings.TrimSpace(subscriberID))
	if err != nil {
		return domain.SubscriptionDetail{}, err
	}
	if sub == nil {
		return domain.SubscriptionDetail{}, domain.ErrSubscriptionNotFound
	}
	profile, err := s.lockProfile(ctx, s.db, sub.ID)
	if err != nil {
		return domain.SubscriptionDetail{}, err
	}
	return domain.SubscriptionDetail{Subscription: *sub, Profile: *profile}, nil
}

// Renew runs one billing cycle inside a single transaction. The period fee
// lands on the balance only when the subscription is not already past_due,
// so a retried cycle never double-charges the fee.
func (s *Service) Renew(ctx context.Context, rawID string) (domain.RenewResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.RenewResult{}, err
	}

	var (
		result domain.RenewResult
		events []deferred
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		today := clock.Today(s.clock)

		if !sub.Due(today, 0) {
			result = domain.RenewResult{Outcome: domain.RenewNotDue, Subscription: *sub}
			return nil
		}

		plan, err := s.planByID(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}

		if sub.State != domain.StatePastDue {
			sub.BalanceCents += plan.RateCents
		}

		profile, err := s.lockProfile(ctx, tx, sub.ID)
		if err != nil {
			return err
		}

		if !profile.Usable() {
			// No card on file: don't even try the gateway.
			if err := s.applyTransition(sub, domain.EventPastDue, plan, today); err != nil {
				return err
			}
			s.queueChargeFailure(ctx, sub, nil, &events)
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			result = domain.RenewResult{Outcome: domain.RenewNoPaymentMethod, Subscription: *sub}
			return nil
		}

		if sub.BalanceCents <= 0 {
			// Prepaid credit covered the fee.
			if err := s.applyTransition(sub, domain.EventActive, plan, today); err != nil {
				return err
			}
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			result = domain.RenewResult{Outcome: domain.RenewNothingToCharge, Subscription: *sub}
			return nil
		}

		amount := sub.Balance()
		entry, err := s.processor.Charge(ctx, amount, *profile.ProfileKey, plan.DescriptionForRenewalCharge())
		if err != nil {
			return err
		}
		entry.SubscriptionID = sub.ID
		if err := s.entries.Insert(ctx, tx, entry); err != nil {
			return err
		}

		if entry.Success {
			sub.BalanceCents = 0
			profile.Status = domain.ProfileStatusAuthorized
			if err := s.applyTransition(sub, domain.EventActive, plan, today); err != nil {
				return err
			}
			snapshot := *sub
			events = append(events, func(ctx context.Context) { s.notifier.ChargeSuccess(ctx, &snapshot, entry) })
			result = domain.RenewResult{Outcome: domain.RenewCharged, Charged: amount, Subscription: *sub}
		} else {
			profile.Status = domain.ProfileStatusError
			if err := s.applyTransition(sub, domain.EventPastDue, plan, today); err != nil {
				return err
			}
			s.queueChargeFailure(ctx, sub, entry, &events)
			result = domain.RenewResult{Outcome: domain.RenewFailed, Subscription: *sub}
		}

		profile.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateProfile(ctx, tx, profile); err != nil {
			return err
		}
		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		result.Subscription = *sub
		return nil
	})
	if err != nil {
		return domain.RenewResult{}, err
	}

	s.fire(ctx, events)
	return result, nil
}

// ChangePlan settles the switch cost against the balance before reassigning
// the plan: an active subscription gets its unused days credited back, a
// past_due one keeps owing the days already consumed.
func (s *Service) ChangePlan(ctx context.Context, rawID, rawPlanID string) (domain.ChangePlanResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.ChangePlanResult{}, err
	}
	newPlan, err := s.planSvc.Get(ctx, rawPlanID)
	if err != nil {
		return domain.ChangePlanResult{}, err
	}

	var result domain.ChangePlanResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.PlanID == newPlan.ID {
			result = domain.ChangePlanResult{Changed: false, Subscription: *sub}
			return nil
		}

		current, err := s.planByID(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}
		today := clock.Today(s.clock)

		switch sub.State {
		case domain.StateActive:
			if days, ok := sub.DaysRemaining(today); ok {
				sub.BalanceCents -= current.ProratedValue(days).Cents
			}
		case domain.StatePastDue:
			if days, ok := sub.PastDueDays(today); ok {
				sub.BalanceCents -= current.RateCents - current.ProratedValue(days).Cents
			}
		}

		sub.PlanID = newPlan.ID

		switch {
		case newPlan.Free():
			if err := s.applyTransition(sub, domain.EventFree, &newPlan, today); err != nil {
				return err
			}
		default:
			if trialEnd := sub.TrialEndsOn(today, s.billing.Get().TrialPeriodDays); trialEnd != nil {
				// Still inside the trial window: enter (or stay in) trial
				// and pin the renewal to the trial's end.
				if sub.State != domain.StateTrial {
					if err := s.applyTransition(sub, domain.EventTrial, &newPlan, today); err != nil {
						return err
					}
				}
				sub.NextRenewalOn = trialEnd
			} else {
				if err := s.applyTransition(sub, domain.EventActive, &newPlan, today); err != nil {
					return err
				}
				// Billing restarts from today; the caller pairs this with
				// an immediate renew.
				renewal := today
				sub.NextRenewalOn = &renewal
				sub.WarningLevel = nil
			}
		}

		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		result = domain.ChangePlanResult{Changed: true, Subscription: *sub}
		return nil
	})
	if err != nil {
		return domain.ChangePlanResult{}, err
	}

	if result.Changed {
		s.log.Info("subscription plan changed",
			zap.String("subscription_id", rawID),
			zap.String("plan", newPlan.Name),
			zap.String("state", string(result.Subscription.State)),
		)
	}
	return result, nil
}

func (s *Service) Cancel(ctx context.Context, rawID string) (domain.ChangePlanResult, error) {
	def, err := s.planSvc.DefaultPlan(ctx)
	if err != nil {
		return domain.ChangePlanResult{}, err
	}
	return s.ChangePlan(ctx, rawID, def.ID.String())
}

func (s *Service) Delete(ctx context.Context, rawID string, supportsSoftDelete bool) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	if _, err := s.Cancel(ctx, rawID); err != nil {
		return err
	}
	if supportsSoftDelete {
		// Soft-deleting owners keep their billing history; the subscription
		// stays cancelled onto the default plan.
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockSubscription(ctx, tx, id); err != nil {
			return err
		}
		if err := s.entries.DeleteBySubscription(ctx, tx, id); err != nil {
			return err
		}
		if err := s.repo.DeleteProfileBySubscription(ctx, tx, id); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, id)
	})
}

func (s *Service) Expire(ctx context.Context, rawID string) (domain.Subscription, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.Subscription{}, err
	}
	var out domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.applyTransition(sub, domain.EventExpire, nil, clock.Today(s.clock)); err != nil {
			return err
		}
		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		out = *sub
		return nil
	})
	return out, err
}
