package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error

	// FindByReference locates any entry carrying the gateway reference,
	// used to suppress duplicate settlement notifications.
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Entry, error)

	// LatestSuccessfulChargeAtLeast returns the most recent successful charge
	// of at least cents for the subscription, newest first by insertion order.
	LatestSuccessfulChargeAtLeast(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, cents int64) (*Entry, error)

	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, limit int) ([]Entry, error)

	// DeleteBySubscription drops a subscription's history; only used by the
	// hard-delete cascade.
	DeleteBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error
}
