package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)

	// FindByIDForUpdate takes a row lock so billing operations on the same
	// subscription serialize.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)

	FindBySubscriber(ctx context.Context, db *gorm.DB, subscriberType, subscriberID string) (*Subscription, error)

	// ListDueOn selects subscriptions whose renewal date is on or before date.
	ListDueOn(ctx context.Context, db *gorm.DB, date time.Time, limit int) ([]Subscription, error)

	// ListByWarningLevel selects by dunning level; nil selects subscriptions
	// with no warnings.
	ListByWarningLevel(ctx context.Context, db *gorm.DB, level *int, limit int) ([]Subscription, error)

	InsertProfile(ctx context.Context, db *gorm.DB, profile *Profile) error
	UpdateProfile(ctx context.Context, db *gorm.DB, profile *Profile) error
	FindProfileBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Profile, error)
	DeleteProfileBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error
}
