// Package domain holds the subscription aggregate: the lifecycle state
// machine, the payment profile, and the derived billing dates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/clock"
	"github.com/smallbiznis/rebill/internal/money"
)

type ProfileStatus string

const (
	ProfileStatusNoInfo     ProfileStatus = "no_info"
	ProfileStatusAuthorized ProfileStatus = "authorized"
	ProfileStatusError      ProfileStatus = "error"
)

// Subscription is the aggregate root. Balance may go negative, meaning the
// subscriber is owed a credit.
type Subscription struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriberType string       `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_subscriber" json:"subscriber_type"`
	SubscriberID   string       `gorm:"type:text;not null;uniqueIndex:idx_subscriptions_subscriber" json:"subscriber_id"`
	PlanID         snowflake.ID `gorm:"not null" json:"plan_id"`
	State          State        `gorm:"type:text;not null;default:pending" json:"state"`
	NextRenewalOn  *time.Time   `gorm:"index" json:"next_renewal_on,omitempty"`
	BalanceCents   int64        `gorm:"not null;default:0" json:"balance_cents"`
	Currency       string       `gorm:"type:text;not null" json:"currency"`
	WarningLevel   *int         `gorm:"index" json:"warning_level,omitempty"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

func (s *Subscription) Balance() money.Money {
	return money.New(s.BalanceCents, s.Currency)
}

// DaysRemaining reports days until the next renewal. The second return is
// false when no renewal date is set.
func (s *Subscription) DaysRemaining(today time.Time) (int, bool) {
	if s.NextRenewalOn == nil {
		return 0, false
	}
	return clock.DaysBetween(today, *s.NextRenewalOn), true
}

// PastDueDays reports days since the renewal date passed.
func (s *Subscription) PastDueDays(today time.Time) (int, bool) {
	d, ok := s.DaysRemaining(today)
	return -d, ok
}

// Due reports whether the renewal date has arrived, looking daysFromNow days
// ahead.
func (s *Subscription) Due(today time.Time, daysFromNow int) bool {
	d, ok := s.DaysRemaining(today)
	return ok && d <= daysFromNow
}

// GraceDaysRemaining reports days left before a past_due subscription runs
// out of grace. Only meaningful while past_due.
func (s *Subscription) GraceDaysRemaining(today time.Time, gracePeriodDays int) (int, bool) {
	if s.State != StatePastDue || s.NextRenewalOn == nil {
		return 0, false
	}
	return clock.DaysBetween(today, s.NextRenewalOn.AddDate(0, 0, gracePeriodDays)), true
}

// TrialEndsOn returns the date a trial runs out, or nil when the subscriber
// is not eligible. A subscription already in trial reports its renewal date;
// otherwise eligibility is measured from creation.
func (s *Subscription) TrialEndsOn(today time.Time, trialPeriodDays int) *time.Time {
	if trialPeriodDays <= 0 {
		return nil
	}
	if s.State == StateTrial {
		return s.NextRenewalOn
	}
	if s.PlanID == 0 {
		d := today.AddDate(0, 0, trialPeriodDays)
		return &d
	}
	d := clock.Date(s.CreatedAt).AddDate(0, 0, trialPeriodDays)
	if d.After(today) {
		return &d
	}
	return nil
}

// Profile marks the payment method a subscription has on file.
type Profile struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID  `gorm:"not null;uniqueIndex" json:"subscription_id"`
	ProfileKey     *string       `gorm:"type:text" json:"profile_key,omitempty"`
	PaymentMethod  *string       `gorm:"type:text" json:"payment_method,omitempty"`
	Status         ProfileStatus `gorm:"type:text;not null;default:no_info" json:"status"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "subscription_profiles" }

// Usable reports whether the profile can be charged.
func (p *Profile) Usable() bool {
	return p != nil && p.ProfileKey != nil && *p.ProfileKey != "" && p.Status != ProfileStatusNoInfo
}
