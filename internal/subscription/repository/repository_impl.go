package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() domain.Repository { return &repository{} }

func (r *repository) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Save(sub).Error
}

func (r *repository) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&domain.Subscription{}, "id = ?", id).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(db.WithContext(ctx), "id = ?", id)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *repository) FindBySubscriber(ctx context.Context, db *gorm.DB, subscriberType, subscriberID string) (*domain.Subscription, error) {
	return r.findOne(db.WithContext(ctx), "subscriber_type = ? AND subscriber_id = ?", subscriberType, subscriberID)
}

func (r *repository) findOne(q *gorm.DB, query string, args ...any) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := q.Where(query, args...).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListDueOn(ctx context.Context, db *gorm.DB, date time.Time, limit int) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	q := db.WithContext(ctx).
		Where("next_renewal_on IS NOT NULL AND next_renewal_on <= ?", date).
		Order("next_renewal_on ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListByWarningLevel(ctx context.Context, db *gorm.DB, level *int, limit int) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	q := db.WithContext(ctx).Order("id ASC")
	if level == nil {
		q = q.Where("warning_level IS NULL")
	} else {
		q = q.Where("warning_level = ?", *level)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) InsertProfile(ctx context.Context, db *gorm.DB, profile *domain.Profile) error {
	return db.WithContext(ctx).Create(profile).Error
}

func (r *repository) UpdateProfile(ctx context.Context, db *gorm.DB, profile *domain.Profile) error {
	return db.WithContext(ctx).Save(profile).Error
}

func (r *repository) FindProfileBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Profile, error) {
	var profile domain.Profile
	err := db.WithContext(ctx).Where("subscription_id = ?", subscriptionID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) DeleteProfileBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error {
	return db.WithContext(ctx).Delete(&domain.Profile{}, "subscription_id = ?", subscriptionID).Error
}
