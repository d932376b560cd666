// Package domain contains the immutable ledger of gateway interactions and
// the processor contract that produces it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/money"
	"gorm.io/datatypes"
)

// Entry actions. Inbound settlement notifications are recorded under their
// raw provider status instead of one of these.
const (
	ActionValidate = "validate"
	ActionStore    = "store"
	ActionUpdate   = "update"
	ActionUnstore  = "unstore"
	ActionCharge   = "charge"
	ActionCredit   = "credit"
	ActionRefund   = "refund"
)

// Entry records one attempted gateway operation and its outcome. Entries are
// append-only; recency is decided by insertion order (id DESC), not
// CreatedAt, because clock resolution can collapse timestamps.
type Entry struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID      `gorm:"not null;index;default:0" json:"subscription_id"`
	Action         string            `gorm:"type:text;not null" json:"action"`
	AmountCents    *int64            `json:"amount_cents,omitempty"`
	Currency       string            `gorm:"type:text;not null" json:"currency"`
	Success        bool              `gorm:"not null" json:"success"`
	Reference      *string           `gorm:"type:text;index" json:"reference,omitempty"`
	Token          *string           `gorm:"type:text" json:"token,omitempty"`
	Message        string            `gorm:"type:text" json:"message"`
	Description    string            `gorm:"type:text" json:"description"`
	Params         datatypes.JSONMap `gorm:"type:jsonb" json:"params"`
	TestMode       bool              `gorm:"not null" json:"test_mode"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "subscription_transactions" }

func (e *Entry) Amount() money.Money {
	if e.AmountCents == nil {
		return money.Zero(e.Currency)
	}
	return money.New(*e.AmountCents, e.Currency)
}
