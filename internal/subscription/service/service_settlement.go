package service

import (
	"context"
	"time"

	"github.com/smallbiznis/rebill/internal/clock"
	gwdomain "github.com/smallbiznis/rebill/internal/gateway/domain"
	"github.com/smallbiznis/rebill/internal/money"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	"github.com/smallbiznis/rebill/internal/subscription/domain"
	txdomain "github.com/smallbiznis/rebill/internal/transaction/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChargeBalance settles a positive balance against the stored card. State is
// untouched here; renewal owns the lifecycle.
func (s *Service) ChargeBalance(ctx context.Context, rawID, description string) (domain.SettleResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.SettleResult{}, err
	}

	var (
		result domain.SettleResult
		events []deferred
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.BalanceCents <= 0 {
			result = domain.SettleResult{Outcome: domain.SettleNothingToDo, Subscription: *sub}
			return nil
		}

		profile, err := s.lockProfile(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if !profile.Usable() {
			s.queueChargeFailure(ctx, sub, nil, &events)
			sub.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, sub); err != nil {
				return err
			}
			result = domain.SettleResult{Outcome: domain.SettleNoPaymentMethod, Subscription: *sub}
			return nil
		}

		amount := sub.Balance()
		entry, err := s.processor.Charge(ctx, amount, *profile.ProfileKey, description)
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
			snapshot := *sub
			events = append(events, func(ctx context.Context) { s.notifier.ChargeSuccess(ctx, &snapshot, entry) })
			result = domain.SettleResult{Outcome: domain.SettleSettled, Amount: amount, Subscription: *sub}
		} else {
			profile.Status = domain.ProfileStatusError
			s.queueChargeFailure(ctx, sub, entry, &events)
			result = domain.SettleResult{Outcome: domain.SettleFailed, Subscription: *sub}
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
		return domain.SettleResult{}, err
	}

	s.fire(ctx, events)
	return result, nil
}

// CreditBalance returns a negative balance to the subscriber's card. A
// gateway that can only refund needs a recent covering charge; without one
// the balance simply stays on account.
func (s *Service) CreditBalance(ctx context.Context, rawID string) (domain.SettleResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.SettleResult{}, err
	}

	var (
		result domain.SettleResult
		events []deferred
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub.BalanceCents >= 0 {
			result = domain.SettleResult{Outcome: domain.SettleNothingToDo, Subscription: *sub}
			return nil
		}

		profile, err := s.lockProfile(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if !profile.Usable() {
			result = domain.SettleResult{Outcome: domain.SettleNoPaymentMethod, Subscription: *sub}
			return nil
		}

		amount := money.New(-sub.BalanceCents, sub.Currency)
		entry, err := s.processor.Credit(ctx, amount, *profile.ProfileKey, sub.ID, "balance credit")
		if err != nil {
			return err
		}
		if entry == nil {
			// Refund-only gateway with no covering charge: leave the credit
			// on account.
			result = domain.SettleResult{Outcome: domain.SettleFailed, Subscription: *sub}
			return nil
		}
		entry.SubscriptionID = sub.ID
		if err := s.entries.Insert(ctx, tx, entry); err != nil {
			return err
		}

		if entry.Success {
			sub.BalanceCents = 0
			profile.Status = domain.ProfileStatusAuthorized
			snapshot := *sub
			events = append(events, func(ctx context.Context) { s.notifier.CreditSuccess(ctx, &snapshot, entry) })
			result = domain.SettleResult{Outcome: domain.SettleSettled, Amount: amount, Subscription: *sub}
		} else {
			profile.Status = domain.ProfileStatusError
			result = domain.SettleResult{Outcome: domain.SettleFailed, Subscription: *sub}
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
		return domain.SettleResult{}, err
	}

	s.fire(ctx, events)
	return result, nil
}

// ReceiveNotification applies an inbound settlement event. The merchant
// reference is the idempotency key: a reference already in the ledger means
// a duplicate delivery and the event is dropped.
func (s *Service) ReceiveNotification(ctx context.Context, rawID string, n domain.Notification) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		if n.Currency != "" && n.Currency != sub.Currency {
			return domain.ErrCurrencyMismatch
		}

		existing, err := s.entries.FindByReference(ctx, tx, n.MerchantReference)
		if err != nil {
			return err
		}
		if existing != nil {
			s.log.Info("duplicate payment notification ignored",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("merchant_reference", n.MerchantReference),
			)
			return nil
		}

		cents := n.AmountCents
		ref := n.MerchantReference
		entry := &txdomain.Entry{
			ID:             s.genID.Generate(),
			SubscriptionID: sub.ID,
			Action:         n.Status,
			AmountCents:    &cents,
			Currency:       sub.Currency,
			Success:        n.Success,
			Reference:      &ref,
			Message:        n.Operations,
			TestMode:       n.TestMode,
			CreatedAt:      s.clock.Now(),
		}
		if n.PSPReference != "" {
			token := n.PSPReference
			entry.Token = &token
		}
		if len(n.Params) > 0 {
			entry.Params = datatypes.JSONMap(n.Params)
		}
		if err := s.entries.Insert(ctx, tx, entry); err != nil {
			return err
		}

		profile, err := s.lockProfile(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if n.PSPReference != "" {
			token := n.PSPReference
			profile.ProfileKey = &token
			profile.Status = domain.ProfileStatusAuthorized
		}
		if n.PaymentMethod != "" {
			method := n.PaymentMethod
			profile.PaymentMethod = &method
		}
		profile.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateProfile(ctx, tx, profile); err != nil {
			return err
		}

		sub.BalanceCents += n.AmountCents
		sub.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, sub)
	})
}

func (s *Service) ValidateCard(ctx context.Context, rawID string, card gwdomain.Card) (domain.CardResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.CardResult{}, err
	}

	var result domain.CardResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		profile, err := s.lockProfile(ctx, tx, sub.ID)
		if err != nil {
			return err
		}

		entry, err := s.processor.ValidateCard(ctx, card)
		if err != nil {
			return err
		}
		entry.SubscriptionID = sub.ID
		if err := s.entries.Insert(ctx, tx, entry); err != nil {
			return err
		}

		result = domain.CardResult{Accepted: entry.Success, Message: entry.Message, Profile: *profile}
		return nil
	})
	return result, err
}

// StoreCard tokenizes a card onto the profile, rotating the existing token
// when one is already on file.
func (s *Service) StoreCard(ctx context.Context, rawID string, card gwdomain.Card) (domain.CardResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.CardResult{}, err
	}

	var result domain.CardResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		profile, err := s.lockProfile(ctx, tx, sub.ID)
		if err != nil {
			return err
		}

		var entry *txdomain.Entry
		if profile.ProfileKey != nil && *profile.ProfileKey != "" {
			entry, err = s.processor.UpdateCard(ctx, *profile.ProfileKey, card)
		} else {
			entry, err = s.processor.StoreCard(ctx, card)
		}
		if err != nil {
			return err
		}
		entry.SubscriptionID = sub.ID
		if err := s.entries.Insert(ctx, tx, entry); err != nil {
			return err
		}

		if entry.Success {
			if entry.Token != nil && *entry.Token != "" {
				token := *entry.Token
				profile.ProfileKey = &token
			}
			profile.Status = domain.ProfileStatusAuthorized
		} else {
			profile.Status = domain.ProfileStatusError
		}
		profile.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateProfile(ctx, tx, profile); err != nil {
			return err
		}

		result = domain.CardResult{Accepted: entry.Success, Message: entry.Message, Profile: *profile}
		return nil
	})
	return result, err
}

func (s *Service) RemoveCard(ctx context.Context, rawID string) (domain.CardResult, error) {
	id, err := parseID(rawID)
	if err != nil {
		return domain.CardResult{}, err
	}

	var result domain.CardResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, id)
		if err != nil {
			return err
		}
		profile, err := s.lockProfile(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if profile.ProfileKey == nil || *profile.ProfileKey == "" {
			result = domain.CardResult{Accepted: true, Profile: *profile}
			return nil
		}

		entry, err := s.processor.UnstoreCard(ctx, *profile.ProfileKey)
		if err != nil {
			return err
		}
		entry.SubscriptionID = sub.ID
		if err := s.entries.Insert(ctx, tx, entry); err != nil {
			return err
		}

		if entry.Success {
			profile.ProfileKey = nil
			profile.PaymentMethod = nil
			profile.Status = domain.ProfileStatusNoInfo
		} else {
			profile.Status = domain.ProfileStatusError
		}
		profile.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateProfile(ctx, tx, profile); err != nil {
			return err
		}

		result = domain.CardResult{Accepted: entry.Success, Message: entry.Message, Profile: *profile}
		return nil
	})
	return result, err
}

func (s *Service) ListTransactions(ctx context.Context, rawID string, limit int) ([]txdomain.Entry, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	return s.entries.ListBySubscription(ctx, s.db, id, limit)
}

// AllowedPlans filters the catalog down to plans the subscriber's own limits
// permit.
func (s *Service) AllowedPlans(ctx context.Context, rawID string) ([]plandomain.Plan, error) {
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	plans, err := s.planSvc.List(ctx)
	if err != nil {
		return nil, err
	}
	allowed := make([]plandomain.Plan, 0, len(plans))
	for _, plan := range plans {
		exceeded, err := s.resolver.PlanCheck(ctx, sub.SubscriberType, sub.SubscriberID, plan)
		if err != nil {
			return nil, err
		}
		if len(exceeded) == 0 {
			allowed = append(allowed, plan)
		}
	}
	return allowed, nil
}

func (s *Service) ListDueOn(ctx context.Context, date time.Time, limit int) ([]domain.Subscription, error) {
	return s.repo.ListDueOn(ctx, s.db, date, limit)
}

func (s *Service) ListDueNow(ctx context.Context, limit int) ([]domain.Subscription, error) {
	return s.repo.ListDueOn(ctx, s.db, clock.Today(s.clock), limit)
}

func (s *Service) ListDueIn(ctx context.Context, days, limit int) ([]domain.Subscription, error) {
	return s.repo.ListDueOn(ctx, s.db, clock.Today(s.clock).AddDate(0, 0, days), limit)
}

func (s *Service) ListDueAgo(ctx context.Context, days, limit int) ([]domain.Subscription, error) {
	return s.repo.ListDueOn(ctx, s.db, clock.Today(s.clock).AddDate(0, 0, -days), limit)
}

func (s *Service) ListByWarningLevel(ctx context.Context, level *int, limit int) ([]domain.Subscription, error) {
	return s.repo.ListByWarningLevel(ctx, s.db, level, limit)
}
