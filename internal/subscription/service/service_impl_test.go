package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/rebill/internal/clock"
	"github.com/smallbiznis/rebill/internal/config"
	gwdomain "github.com/smallbiznis/rebill/internal/gateway/domain"
	"github.com/smallbiznis/rebill/internal/money"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	planrepository "github.com/smallbiznis/rebill/internal/plan/repository"
	planservice "github.com/smallbiznis/rebill/internal/plan/service"
	"github.com/smallbiznis/rebill/internal/subscription/domain"
	subrepository "github.com/smallbiznis/rebill/internal/subscription/repository"
	txdomain "github.com/smallbiznis/rebill/internal/transaction/domain"
	txprocessor "github.com/smallbiznis/rebill/internal/transaction/processor"
	txrepository "github.com/smallbiznis/rebill/internal/transaction/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubGateway supports the base capability set; charges can be scripted to
// decline.
type stubGateway struct {
	decline bool
	seq     int
}

func (g *stubGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *stubGateway) Authorize(_ context.Context, _ money.Money, _ gwdomain.Source, _ gwdomain.Options) (gwdomain.Result, error) {
	if g.decline {
		return gwdomain.Result{Success: false, Message: "card declined"}, nil
	}
	return gwdomain.Result{Success: true, Authorization: g.next("auth"), TestMode: true}, nil
}

func (g *stubGateway) Capture(_ context.Context, _ money.Money, _ string, _ gwdomain.Options) (gwdomain.Result, error) {
	return gwdomain.Result{Success: true, Authorization: g.next("cap"), TestMode: true}, nil
}

func (g *stubGateway) Void(_ context.Context, _ string, _ gwdomain.Options) (gwdomain.Result, error) {
	return gwdomain.Result{Success: true, Authorization: g.next("void"), TestMode: true}, nil
}

func (g *stubGateway) Store(_ context.Context, _ gwdomain.Card, _ gwdomain.Options) (gwdomain.Result, error) {
	return gwdomain.Result{Success: true, Token: g.next("tok"), TestMode: true}, nil
}

func (g *stubGateway) Unstore(_ context.Context, _ string, _ gwdomain.Options) (gwdomain.Result, error) {
	return gwdomain.Result{Success: true, TestMode: true}, nil
}

type creditStubGateway struct{ *stubGateway }

func (g creditStubGateway) Credit(_ context.Context, _ money.Money, _ gwdomain.Source, _ gwdomain.Options) (gwdomain.Result, error) {
	return gwdomain.Result{Success: true, Authorization: g.next("cr"), TestMode: true}, nil
}

type recordingDispatcher struct {
	events []string
}

func (d *recordingDispatcher) record(event string) { d.events = append(d.events, event) }

func (d *recordingDispatcher) ChargeSuccess(_ context.Context, _ *domain.Subscription, _ *txdomain.Entry) {
	d.record("charge_success")
}

func (d *recordingDispatcher) ChargeFailure(_ context.Context, _ *domain.Subscription, _ *txdomain.Entry) {
	d.record("charge_failure")
}

func (d *recordingDispatcher) SecondChargeFailure(_ context.Context, _ *domain.Subscription, _ *txdomain.Entry) {
	d.record("second_charge_failure")
}

func (d *recordingDispatcher) CreditSuccess(_ context.Context, _ *domain.Subscription, _ *txdomain.Entry) {
	d.record("credit_success")
}

// silentResolver simulates a subscriber with no reachable contact address.
type silentResolver struct{}

func (silentResolver) Contact(_ context.Context, _, _ string) (string, error) { return "", nil }

func (silentResolver) PlanCheck(_ context.Context, _, _ string, _ plandomain.Plan) ([]string, error) {
	return nil, nil
}

var testCard = gwdomain.Card{Number: "4111111111111111", ExpMonth: 12, ExpYear: 2030, Holder: "Jane Doe", CVV: "123"}

type fixture struct {
	t      *testing.T
	svc    domain.Service
	plans  plandomain.Service
	db     *gorm.DB
	clk    *clock.FakeClock
	gw     *stubGateway
	events *recordingDispatcher
}

func setupWith(t *testing.T, cfg config.BillingConfig, gw gwdomain.Gateway, resolver domain.SubscriberResolver) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&domain.Subscription{},
		&domain.Profile{},
		&txdomain.Entry{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	holder := config.NewStaticBillingConfigHolder(cfg)
	log := zap.NewNop()

	planRepo := planrepository.Provide()
	planSvc := planservice.NewService(planservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: clk, Billing: holder, Repo: planRepo,
	})

	entryRepo := txrepository.Provide()
	proc := txprocessor.NewProcessor(txprocessor.ProcessorParam{
		DB: db, Gateway: gw, Repo: entryRepo, GenID: node, Clock: clk, Billing: holder, Log: log,
	})

	events := &recordingDispatcher{}
	svc := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Billing:   holder,
		Repo:      subrepository.Provide(),
		Plans:     planRepo,
		PlanSvc:   planSvc,
		Entries:   entryRepo,
		Processor: proc,
		Notifier:  events,
		Resolver:  resolver,
	})

	stub, _ := gw.(*stubGateway)
	return &fixture{t: t, svc: svc, plans: planSvc, db: db, clk: clk, gw: stub, events: events}
}

func setup(t *testing.T, cfg config.BillingConfig) *fixture {
	return setupWith(t, cfg, &stubGateway{}, NewDefaultResolver())
}

func billingNoTrial() config.BillingConfig {
	cfg := config.DefaultBillingConfig()
	cfg.TrialPeriodDays = 0
	return cfg
}

func (f *fixture) createPlan(name string, rateCents int64) plandomain.Plan {
	f.t.Helper()
	plan, err := f.plans.Create(context.Background(), plandomain.CreatePlanRequest{
		Name: name, RateCents: rateCents, IntervalMonths: 1,
	})
	require.NoError(f.t, err)
	return plan
}

func (f *fixture) createSub(planID snowflake.ID) domain.SubscriptionDetail {
	f.t.Helper()
	detail, err := f.svc.Create(context.Background(), domain.CreateSubscriptionRequest{
		SubscriberType: "User", SubscriberID: "u-1", PlanID: planID.String(),
	})
	require.NoError(f.t, err)
	return detail
}

func (f *fixture) addCard(id snowflake.ID) {
	f.t.Helper()
	res, err := f.svc.StoreCard(context.Background(), id.String(), testCard)
	require.NoError(f.t, err)
	require.True(f.t, res.Accepted)
}

func (f *fixture) reload(id snowflake.ID) domain.Subscription {
	f.t.Helper()
	var sub domain.Subscription
	require.NoError(f.t, f.db.First(&sub, "id = ?", id).Error)
	return sub
}

func (f *fixture) profile(id snowflake.ID) domain.Profile {
	f.t.Helper()
	var profile domain.Profile
	require.NoError(f.t, f.db.First(&profile, "subscription_id = ?", id).Error)
	return profile
}

func (f *fixture) entries(id snowflake.ID) []txdomain.Entry {
	f.t.Helper()
	var out []txdomain.Entry
	require.NoError(f.t, f.db.Where("subscription_id = ?", id).Order("id DESC").Find(&out).Error)
	return out
}

func TestCreateFreePlanStartsFree(t *testing.T) {
	f := setup(t, config.DefaultBillingConfig())
	plan := f.createPlan("free", 0)

	detail := f.createSub(plan.ID)

	assert.Equal(t, domain.StateFree, detail.State)
	assert.Nil(t, detail.NextRenewalOn)
	assert.Equal(t, domain.ProfileStatusNoInfo, detail.Profile.Status)
}

func TestCreatePaidPlanEntersTrial(t *testing.T) {
	f := setup(t, config.DefaultBillingConfig()) // 30 day trial
	plan := f.createPlan("basic", 1000)

	detail := f.createSub(plan.ID)

	assert.Equal(t, domain.StateTrial, detail.State)
	require.NotNil(t, detail.NextRenewalOn)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), *detail.NextRenewalOn)
}

func TestCreatePaidPlanNoTrialStartsActive(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)

	detail := f.createSub(plan.ID)

	assert.Equal(t, domain.StateActive, detail.State)
	require.NotNil(t, detail.NextRenewalOn)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), *detail.NextRenewalOn)
}

func TestCreateDuplicateSubscriber(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	f.createSub(plan.ID)

	_, err := f.svc.Create(context.Background(), domain.CreateSubscriptionRequest{
		SubscriberType: "User", SubscriberID: "u-1", PlanID: plan.ID.String(),
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionExists)
}

func TestRenewNotDue(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	res, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.RenewNotDue, res.Outcome)
	after := f.reload(detail.ID)
	assert.Equal(t, int64(0), after.BalanceCents)
	assert.Equal(t, domain.StateActive, after.State)
	assert.Empty(t, f.entries(detail.ID))
}

// No payment method on file: the fee lands on the balance, the subscription
// goes past_due, no gateway call happens, and the first warning fires.
func TestRenewWithoutPaymentMethod(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	f.clk.AdvanceDays(30)
	res, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.RenewNoPaymentMethod, res.Outcome)
	after := f.reload(detail.ID)
	assert.Equal(t, domain.StatePastDue, after.State)
	assert.Equal(t, int64(1000), after.BalanceCents)
	require.NotNil(t, after.WarningLevel)
	assert.Equal(t, 1, *after.WarningLevel)
	assert.Empty(t, f.entries(detail.ID))
	assert.Equal(t, []string{"charge_failure"}, f.events.events)
}

// Successful renewal: balance returns to zero, the renewal date advances by
// exactly one interval from its prior value, one charge entry is recorded.
func TestRenewChargesAndAdvances(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)
	f.addCard(detail.ID)

	f.clk.AdvanceDays(30) // July 1, the renewal date
	res, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.RenewCharged, res.Outcome)
	assert.Equal(t, int64(1000), res.Charged.Cents)

	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateActive, after.State)
	assert.Equal(t, int64(0), after.BalanceCents)
	require.NotNil(t, after.NextRenewalOn)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), *after.NextRenewalOn)
	assert.Nil(t, after.WarningLevel)

	entries := f.entries(detail.ID)
	var charges []txdomain.Entry
	for _, e := range entries {
		if e.Action == txdomain.ActionCharge {
			charges = append(charges, e)
		}
	}
	require.Len(t, charges, 1)
	assert.True(t, charges[0].Success)
	assert.Equal(t, "Renewal of basic plan", charges[0].Description)
	assert.Contains(t, f.events.events, "charge_success")
}

// A retried past_due cycle adds the period fee at most once and escalates
// the warning to level two.
func TestRenewTwiceWhilePastDueAddsFeeOnce(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	f.clk.AdvanceDays(30)
	_, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	after := f.reload(detail.ID)
	assert.Equal(t, int64(1000), after.BalanceCents)
	require.NotNil(t, after.WarningLevel)
	assert.Equal(t, 2, *after.WarningLevel)
	assert.Equal(t, []string{"charge_failure", "second_charge_failure"}, f.events.events)
}

func TestRenewDeclinedGoesPastDue(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)
	f.addCard(detail.ID)
	f.gw.decline = true

	f.clk.AdvanceDays(30)
	res, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.RenewFailed, res.Outcome)
	after := f.reload(detail.ID)
	assert.Equal(t, domain.StatePastDue, after.State)
	assert.Equal(t, int64(1000), after.BalanceCents)
	require.NotNil(t, after.WarningLevel)
	assert.Equal(t, 1, *after.WarningLevel)
	assert.Equal(t, domain.ProfileStatusError, f.profile(detail.ID).Status)

	entries := f.entries(detail.ID)
	require.NotEmpty(t, entries)
	assert.Equal(t, txdomain.ActionCharge, entries[0].Action)
	assert.False(t, entries[0].Success)
	assert.Contains(t, f.events.events, "charge_failure")
}

func TestRenewNothingToChargeWithCredit(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)
	f.addCard(detail.ID)

	// Prepaid credit covers the upcoming fee.
	require.NoError(t, f.db.Model(&domain.Subscription{}).
		Where("id = ?", detail.ID).
		Update("balance_cents", int64(-1000)).Error)

	f.clk.AdvanceDays(30)
	res, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.RenewNothingToCharge, res.Outcome)
	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateActive, after.State)
	assert.Equal(t, int64(0), after.BalanceCents)
	require.NotNil(t, after.NextRenewalOn)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), *after.NextRenewalOn)
}

func TestChangePlanSamePlanNoOp(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	res, err := f.svc.ChangePlan(context.Background(), detail.ID.String(), plan.ID.String())
	require.NoError(t, err)

	assert.False(t, res.Changed)
	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateActive, after.State)
	assert.Equal(t, int64(0), after.BalanceCents)
	assert.Empty(t, f.entries(detail.ID))
}

// Fifteen days into an active 30-day cycle, switching to a free plan credits
// back half the rate and clears the renewal date.
func TestChangePlanToFreeProratesUnusedValue(t *testing.T) {
	f := setup(t, billingNoTrial())
	basic := f.createPlan("basic", 1000)
	free := f.createPlan("free", 0)
	detail := f.createSub(basic.ID)

	f.clk.AdvanceDays(15)
	res, err := f.svc.ChangePlan(context.Background(), detail.ID.String(), free.ID.String())
	require.NoError(t, err)
	require.True(t, res.Changed)

	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateFree, after.State)
	assert.Nil(t, after.NextRenewalOn)
	assert.Equal(t, int64(-500), after.BalanceCents)
	assert.Equal(t, free.ID, after.PlanID)
}

// A past_due switcher keeps owing the days already consumed and restarts
// billing from today on the new plan.
func TestChangePlanWhilePastDueOwesConsumedDays(t *testing.T) {
	f := setup(t, billingNoTrial())
	basic := f.createPlan("basic", 1000)
	pro := f.createPlan("pro", 2000)
	detail := f.createSub(basic.ID)

	f.clk.AdvanceDays(30)
	_, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err) // no card: past_due, balance 1000

	f.clk.AdvanceDays(6) // six days into the unpaid cycle
	res, err := f.svc.ChangePlan(context.Background(), detail.ID.String(), pro.ID.String())
	require.NoError(t, err)
	require.True(t, res.Changed)

	after := f.reload(detail.ID)
	// 1000 - (1000 - prorated(6)=200) = 200 still owed
	assert.Equal(t, int64(200), after.BalanceCents)
	assert.Equal(t, domain.StateActive, after.State)
	require.NotNil(t, after.NextRenewalOn)
	assert.Equal(t, time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC), *after.NextRenewalOn)
	assert.Nil(t, after.WarningLevel)
}

// Switching plans mid-trial keeps the subscription in trial with the
// original trial end date.
func TestChangePlanDuringTrialKeepsTrialEnd(t *testing.T) {
	f := setup(t, config.DefaultBillingConfig())
	basic := f.createPlan("basic", 1000)
	pro := f.createPlan("pro", 2000)
	detail := f.createSub(basic.ID)
	require.Equal(t, domain.StateTrial, detail.State)

	f.clk.AdvanceDays(10)
	res, err := f.svc.ChangePlan(context.Background(), detail.ID.String(), pro.ID.String())
	require.NoError(t, err)
	require.True(t, res.Changed)

	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateTrial, after.State)
	require.NotNil(t, after.NextRenewalOn)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), *after.NextRenewalOn)
	assert.Equal(t, pro.ID, after.PlanID)
}

func TestCancelRevertsToDefaultPlan(t *testing.T) {
	f := setup(t, billingNoTrial())
	f.createPlan("free", 0)
	basic := f.createPlan("basic", 1000)
	detail := f.createSub(basic.ID)

	res, err := f.svc.Cancel(context.Background(), detail.ID.String())
	require.NoError(t, err)
	require.True(t, res.Changed)

	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateFree, after.State)
	assert.Nil(t, after.NextRenewalOn)
}

func TestChargeBalanceNothingToDo(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)
	f.addCard(detail.ID)

	res, err := f.svc.ChargeBalance(context.Background(), detail.ID.String(), "")
	require.NoError(t, err)

	assert.Equal(t, domain.SettleNothingToDo, res.Outcome)
	// only the store entry from addCard, no charge attempted
	for _, e := range f.entries(detail.ID) {
		assert.NotEqual(t, txdomain.ActionCharge, e.Action)
	}
}

func TestChargeBalanceSettles(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)
	f.addCard(detail.ID)

	require.NoError(t, f.db.Model(&domain.Subscription{}).
		Where("id = ?", detail.ID).
		Update("balance_cents", int64(700)).Error)

	res, err := f.svc.ChargeBalance(context.Background(), detail.ID.String(), "overage")
	require.NoError(t, err)

	assert.Equal(t, domain.SettleSettled, res.Outcome)
	assert.Equal(t, int64(700), res.Amount.Cents)
	after := f.reload(detail.ID)
	assert.Equal(t, int64(0), after.BalanceCents)
	assert.Equal(t, domain.ProfileStatusAuthorized, f.profile(detail.ID).Status)
	assert.Contains(t, f.events.events, "charge_success")
}

func TestCreditBalanceSettlesWithNativeCredit(t *testing.T) {
	f := setupWith(t, billingNoTrial(), creditStubGateway{&stubGateway{}}, NewDefaultResolver())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	res, err := f.svc.StoreCard(context.Background(), detail.ID.String(), testCard)
	require.NoError(t, err)
	require.True(t, res.Accepted)

	require.NoError(t, f.db.Model(&domain.Subscription{}).
		Where("id = ?", detail.ID).
		Update("balance_cents", int64(-500)).Error)

	credit, err := f.svc.CreditBalance(context.Background(), detail.ID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.SettleSettled, credit.Outcome)
	assert.Equal(t, int64(500), credit.Amount.Cents)
	after := f.reload(detail.ID)
	assert.Equal(t, int64(0), after.BalanceCents)
	assert.Contains(t, f.events.events, "credit_success")
}

func TestCreditBalancePositiveBalanceNoOp(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)
	f.addCard(detail.ID)

	res, err := f.svc.CreditBalance(context.Background(), detail.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.SettleNothingToDo, res.Outcome)
}

// A duplicate merchant reference produces exactly one ledger entry and one
// balance adjustment.
func TestReceiveNotificationSuppressesDuplicates(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	n := domain.Notification{
		MerchantReference: "ORDER-X",
		AmountCents:       5000,
		Currency:          "EUR",
		Status:            "AUTHORISATION",
		Success:           true,
		PSPReference:      "psp_1",
		PaymentMethod:     "visa",
	}
	require.NoError(t, f.svc.ReceiveNotification(context.Background(), detail.ID.String(), n))
	require.NoError(t, f.svc.ReceiveNotification(context.Background(), detail.ID.String(), n))

	entries := f.entries(detail.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "AUTHORISATION", entries[0].Action)

	after := f.reload(detail.ID)
	assert.Equal(t, int64(5000), after.BalanceCents)

	profile := f.profile(detail.ID)
	require.NotNil(t, profile.ProfileKey)
	assert.Equal(t, "psp_1", *profile.ProfileKey)
	assert.Equal(t, domain.ProfileStatusAuthorized, profile.Status)
	require.NotNil(t, profile.PaymentMethod)
	assert.Equal(t, "visa", *profile.PaymentMethod)
}

func TestReceiveNotificationCurrencyMismatch(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	err := f.svc.ReceiveNotification(context.Background(), detail.ID.String(), domain.Notification{
		MerchantReference: "ORDER-Y",
		AmountCents:       5000,
		Currency:          "USD",
		Status:            "AUTHORISATION",
		Success:           true,
	})
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
	assert.Empty(t, f.entries(detail.ID))
}

// An unreachable subscriber still accrues warning levels but gets no events.
func TestUnreachableSubscriberSkipsNotifications(t *testing.T) {
	f := setupWith(t, billingNoTrial(), &stubGateway{}, silentResolver{})
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	f.clk.AdvanceDays(30)
	_, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	after := f.reload(detail.ID)
	require.NotNil(t, after.WarningLevel)
	assert.Equal(t, 1, *after.WarningLevel)
	assert.Empty(t, f.events.events)
}

// Recovering from past_due resets the warning level on the state change.
func TestWarningLevelClearedOnRecovery(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	f.clk.AdvanceDays(30)
	_, err := f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err) // past_due, warning 1

	f.addCard(detail.ID)
	_, err = f.svc.Renew(context.Background(), detail.ID.String())
	require.NoError(t, err)

	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateActive, after.State)
	assert.Equal(t, int64(0), after.BalanceCents)
	assert.Nil(t, after.WarningLevel)
}

func TestDeleteHardRemovesEverything(t *testing.T) {
	f := setup(t, billingNoTrial())
	f.createPlan("free", 0)
	basic := f.createPlan("basic", 1000)
	detail := f.createSub(basic.ID)
	f.addCard(detail.ID)

	require.NoError(t, f.svc.Delete(context.Background(), detail.ID.String(), false))

	var count int64
	require.NoError(t, f.db.Model(&domain.Subscription{}).Where("id = ?", detail.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, f.db.Model(&domain.Profile{}).Where("subscription_id = ?", detail.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	require.NoError(t, f.db.Model(&txdomain.Entry{}).Where("subscription_id = ?", detail.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestDeleteSoftKeepsHistory(t *testing.T) {
	f := setup(t, billingNoTrial())
	f.createPlan("free", 0)
	basic := f.createPlan("basic", 1000)
	detail := f.createSub(basic.ID)
	f.addCard(detail.ID)

	require.NoError(t, f.svc.Delete(context.Background(), detail.ID.String(), true))

	after := f.reload(detail.ID)
	assert.Equal(t, domain.StateFree, after.State) // cancelled onto default plan
	assert.NotEmpty(t, f.entries(detail.ID))
}

func TestExpire(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)

	sub, err := f.svc.Expire(context.Background(), detail.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, sub.State)
}

func TestRemoveCardClearsProfile(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID)
	f.addCard(detail.ID)

	res, err := f.svc.RemoveCard(context.Background(), detail.ID.String())
	require.NoError(t, err)
	require.True(t, res.Accepted)

	profile := f.profile(detail.ID)
	assert.Nil(t, profile.ProfileKey)
	assert.Equal(t, domain.ProfileStatusNoInfo, profile.Status)
}

func TestSweepQueries(t *testing.T) {
	f := setup(t, billingNoTrial())
	plan := f.createPlan("basic", 1000)
	detail := f.createSub(plan.ID) // renewal July 1
	ctx := context.Background()

	due, err := f.svc.ListDueNow(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = f.svc.ListDueIn(ctx, 30, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, detail.ID, due[0].ID)

	f.clk.AdvanceDays(35)
	due, err = f.svc.ListDueAgo(ctx, 5, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	_, err = f.svc.Renew(ctx, detail.ID.String()) // past_due, warning 1
	require.NoError(t, err)

	level := 1
	warned, err := f.svc.ListByWarningLevel(ctx, &level, 0)
	require.NoError(t, err)
	require.Len(t, warned, 1)
	assert.Equal(t, detail.ID, warned[0].ID)
}
