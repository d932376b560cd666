package domain

import (
	"context"
	"errors"
)

type CreatePlanRequest struct {
	Name           string `json:"name"`
	RateCents      int64  `json:"rate_cents"`
	IntervalMonths int    `json:"interval_months"`
}

type UpdatePlanRequest struct {
	ID             string `json:"-"`
	Name           string `json:"name"`
	RateCents      int64  `json:"rate_cents"`
	IntervalMonths int    `json:"interval_months"`
}

type Service interface {
	Create(ctx context.Context, req CreatePlanRequest) (Plan, error)
	Update(ctx context.Context, req UpdatePlanRequest) (Plan, error)
	Get(ctx context.Context, id string) (Plan, error)
	List(ctx context.Context) ([]Plan, error)

	// DefaultPlan resolves the plan new and cancelled subscriptions fall back
	// to: the configured name, else the cheapest free plan, else a free plan
	// bootstrapped on first access.
	DefaultPlan(ctx context.Context) (Plan, error)
}

var (
	ErrInvalidPlanID   = errors.New("invalid_plan_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidRate     = errors.New("invalid_rate")
	ErrInvalidInterval = errors.New("invalid_interval")
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrDuplicateName   = errors.New("duplicate_name")
)
