// Package processor drives the payment gateway and turns every attempt,
// successful or not, into a ledger entry.
package processor

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/rebill/internal/clock"
	"github.com/smallbiznis/rebill/internal/config"
	gwdomain "github.com/smallbiznis/rebill/internal/gateway/domain"
	"github.com/smallbiznis/rebill/internal/money"
	"github.com/smallbiznis/rebill/internal/observability/metrics"
	"github.com/smallbiznis/rebill/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// validationHoldCents is the nominal authorization used to validate a card.
const validationHoldCents = 100

type Processor struct {
	db      *gorm.DB
	gw      gwdomain.Gateway
	repo    domain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	log     *zap.Logger
}

type ProcessorParam struct {
	fx.In

	DB      *gorm.DB
	Gateway gwdomain.Gateway
	Repo    domain.Repository
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Log     *zap.Logger
}

func NewProcessor(p ProcessorParam) domain.Processor {
	return &Processor{
		db:      p.DB,
		gw:      p.Gateway,
		repo:    p.Repo,
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		log:     p.Log.Named("transaction.processor"),
	}
}

// call runs one gateway operation, normalizing transport errors into a
// declined-style result so no gateway fault escapes the ledger.
func (p *Processor) call(action string, fn func() (gwdomain.Result, error)) gwdomain.Result {
	start := time.Now()
	res, err := fn()
	metrics.Gateway().ObserveDuration(action, time.Since(start))

	outcome := metrics.GatewayOutcomeSuccess
	if err != nil {
		p.log.Warn("gateway call failed",
			zap.String("action", action),
			zap.Error(err),
		)
		res = gwdomain.Result{Success: false, Message: err.Error()}
		outcome = metrics.GatewayOutcomeError
	} else if !res.Success {
		outcome = metrics.GatewayOutcomeDecline
	}
	metrics.Gateway().IncOperation(action, outcome)
	return res
}

func (p *Processor) newEntry(action string, amount *money.Money, res gwdomain.Result) *domain.Entry {
	entry := &domain.Entry{
		ID:        p.genID.Generate(),
		Action:    action,
		Currency:  p.billing.Get().Currency,
		Success:   res.Success,
		Message:   res.Message,
		TestMode:  res.TestMode,
		CreatedAt: p.clock.Now(),
	}
	if amount != nil {
		cents := amount.Cents
		entry.AmountCents = &cents
		entry.Currency = amount.Currency
	}
	if res.Authorization != "" {
		ref := res.Authorization
		entry.Reference = &ref
	}
	if res.Token != "" {
		tok := res.Token
		entry.Token = &tok
	}
	if len(res.Params) > 0 {
		entry.Params = res.Params
	}
	return entry
}

func (p *Processor) options(description string) gwdomain.Options {
	return gwdomain.Options{
		OrderID:     uuid.NewString(),
		Description: description,
	}
}

// ValidateCard places a nominal hold on the card and voids it right away.
// The recorded outcome is the authorization's; a failed void only logs.
func (p *Processor) ValidateCard(ctx context.Context, card gwdomain.Card) (*domain.Entry, error) {
	amount := money.New(validationHoldCents, p.billing.Get().Currency)
	opts := p.options("card validation")

	res := p.call(domain.ActionValidate, func() (gwdomain.Result, error) {
		return p.gw.Authorize(ctx, amount, gwdomain.CardSource(card), opts)
	})
	if res.Success && res.Authorization != "" {
		void := p.call(domain.ActionValidate, func() (gwdomain.Result, error) {
			return p.gw.Void(ctx, res.Authorization, opts)
		})
		if !void.Success {
			p.log.Warn("validation hold not released",
				zap.String("reference", res.Authorization),
				zap.String("message", void.Message),
			)
		}
	}
	return p.newEntry(domain.ActionValidate, &amount, res), nil
}

func (p *Processor) StoreCard(ctx context.Context, card gwdomain.Card) (*domain.Entry, error) {
	res := p.call(domain.ActionStore, func() (gwdomain.Result, error) {
		return p.gw.Store(ctx, card, p.options("store card"))
	})
	return p.newEntry(domain.ActionStore, nil, res), nil
}

func (p *Processor) UpdateCard(ctx context.Context, profileKey string, card gwdomain.Card) (*domain.Entry, error) {
	if updater, ok := p.gw.(gwdomain.Updater); ok {
		res := p.call(domain.ActionUpdate, func() (gwdomain.Result, error) {
			return updater.Update(ctx, profileKey, card, p.options("update card"))
		})
		return p.newEntry(domain.ActionUpdate, nil, res), nil
	}

	// No in-place update. Drop the old profile and store the card fresh;
	// the outcome that matters is the store's.
	unstore := p.call(domain.ActionUpdate, func() (gwdomain.Result, error) {
		return p.gw.Unstore(ctx, profileKey, p.options("update card"))
	})
	if !unstore.Success {
		p.log.Warn("stale payment profile left behind on update",
			zap.String("profile_key", profileKey),
			zap.String("message", unstore.Message),
		)
	}
	res := p.call(domain.ActionUpdate, func() (gwdomain.Result, error) {
		return p.gw.Store(ctx, card, p.options("update card"))
	})
	return p.newEntry(domain.ActionUpdate, nil, res), nil
}

func (p *Processor) UnstoreCard(ctx context.Context, profileKey string) (*domain.Entry, error) {
	res := p.call(domain.ActionUnstore, func() (gwdomain.Result, error) {
		return p.gw.Unstore(ctx, profileKey, p.options("unstore card"))
	})
	return p.newEntry(domain.ActionUnstore, nil, res), nil
}

// Charge bills the stored profile, using one-step purchase when the gateway
// offers it and authorize plus capture otherwise.
func (p *Processor) Charge(ctx context.Context, amount money.Money, profileKey string, description string) (*domain.Entry, error) {
	opts := p.options(description)
	src := gwdomain.TokenSource(profileKey)

	if purchaser, ok := p.gw.(gwdomain.Purchaser); ok {
		res := p.call(domain.ActionCharge, func() (gwdomain.Result, error) {
			return purchaser.Purchase(ctx, amount, src, opts)
		})
		entry := p.newEntry(domain.ActionCharge, &amount, res)
		entry.Description = description
		return entry, nil
	}

	auth := p.call(domain.ActionCharge, func() (gwdomain.Result, error) {
		return p.gw.Authorize(ctx, amount, src, opts)
	})
	res := auth
	if auth.Success {
		res = p.call(domain.ActionCharge, func() (gwdomain.Result, error) {
			return p.gw.Capture(ctx, amount, auth.Authorization, opts)
		})
	}
	entry := p.newEntry(domain.ActionCharge, &amount, res)
	entry.Description = description
	return entry, nil
}

// Credit prefers the gateway's native credit. Without one it refunds the most
// recent successful charge covering the amount; no matching charge means
// nothing happens and (nil, nil) is returned so the caller keeps the balance.
func (p *Processor) Credit(ctx context.Context, amount money.Money, profileKey string, subscriptionID snowflake.ID, description string) (*domain.Entry, error) {
	opts := p.options(description)

	if crediter, ok := p.gw.(gwdomain.Crediter); ok {
		res := p.call(domain.ActionCredit, func() (gwdomain.Result, error) {
			return crediter.Credit(ctx, amount, gwdomain.TokenSource(profileKey), opts)
		})
		entry := p.newEntry(domain.ActionCredit, &amount, res)
		entry.Description = description
		return entry, nil
	}

	if refunder, ok := p.gw.(gwdomain.Refunder); ok {
		charge, err := p.repo.LatestSuccessfulChargeAtLeast(ctx, p.db, subscriptionID, amount.Cents)
		if err != nil {
			return nil, err
		}
		if charge == nil || charge.Reference == nil {
			return nil, nil
		}
		res := p.call(domain.ActionRefund, func() (gwdomain.Result, error) {
			return refunder.Refund(ctx, amount, *charge.Reference, opts)
		})
		entry := p.newEntry(domain.ActionRefund, &amount, res)
		entry.Description = description
		return entry, nil
	}

	entry := p.newEntry(domain.ActionCredit, &amount, gwdomain.Result{
		Success: false,
		Message: "credit not supported by gateway",
	})
	entry.Description = description
	return entry, nil
}
