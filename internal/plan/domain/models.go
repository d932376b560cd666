// Package domain contains the billing-plan model and service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/money"
)

// Plan defines a billing rate applied every IntervalMonths.
type Plan struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Name           string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	RateCents      int64        `gorm:"not null" json:"rate_cents"`
	Currency       string       `gorm:"type:text;not null" json:"currency"`
	IntervalMonths int          `gorm:"not null" json:"interval_months"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

func (p Plan) Rate() money.Money {
	return money.New(p.RateCents, p.Currency)
}

func (p Plan) Free() bool {
	return p.RateCents == 0
}

// ProratedValue is the value of days of service on this plan. Months are
// assumed to be 30 days regardless of the calendar; the result rounds down
// to a minor unit and never exceeds the full rate.
func (p Plan) ProratedValue(days int) money.Money {
	if days < 0 {
		days = 0
	}
	totalDays := p.IntervalMonths * 30
	if totalDays <= 0 {
		return money.Zero(p.Currency)
	}
	dailyRate := float64(p.RateCents) / float64(totalDays)
	cents := int64(float64(days) * dailyRate)
	if cents > p.RateCents {
		cents = p.RateCents
	}
	return money.New(cents, p.Currency)
}

// DescriptionForRenewalCharge is the human-readable line attached to renewal
// charges at the gateway.
func (p Plan) DescriptionForRenewalCharge() string {
	return "Renewal of " + p.Name + " plan"
}
