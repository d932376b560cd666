package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/transaction/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository { return &repository{} }

func (r *repository) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Entry, error) {
	var entry domain.Entry
	err := db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) LatestSuccessfulChargeAtLeast(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, cents int64) (*domain.Entry, error) {
	var entry domain.Entry
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Where("action = ?", domain.ActionCharge).
		Where("success = ?", true).
		Where("amount_cents >= ?", cents).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, limit int) ([]domain.Entry, error) {
	var entries []domain.Entry
	q := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) DeleteBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) error {
	return db.WithContext(ctx).Delete(&domain.Entry{}, "subscription_id = ?", subscriptionID).Error
}
