package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *plandomain.Plan) error {
	return db.WithContext(ctx).Create(plan).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *plandomain.Plan) error {
	return db.WithContext(ctx).Save(plan).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).First(&plan, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repo) FindCheapestFree(ctx context.Context, db *gorm.DB) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).
		Where("rate_cents = 0").
		Order("id ASC").
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	if err := db.WithContext(ctx).Order("rate_cents ASC, id ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
