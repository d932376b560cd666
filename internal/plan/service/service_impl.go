package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/clock"
	"github.com/smallbiznis/rebill/internal/config"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	"github.com/smallbiznis/rebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	repo    plandomain.Repository
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Repo    plandomain.Repository
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("plan.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		repo:    p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreatePlanRequest) (plandomain.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return plandomain.Plan{}, plandomain.ErrInvalidName
	}
	if req.RateCents < 0 {
		return plandomain.Plan{}, plandomain.ErrInvalidRate
	}
	if req.IntervalMonths <= 0 {
		return plandomain.Plan{}, plandomain.ErrInvalidInterval
	}

	now := s.clock.Now()
	plan := plandomain.Plan{
		ID:             s.genID.Generate(),
		Name:           name,
		RateCents:      req.RateCents,
		Currency:       s.billing.Get().Currency,
		IntervalMonths: req.IntervalMonths,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return plandomain.Plan{}, plandomain.ErrDuplicateName
		}
		return plandomain.Plan{}, err
	}
	return plan, nil
}

func (s *Service) Update(ctx context.Context, req plandomain.UpdatePlanRequest) (plandomain.Plan, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return plandomain.Plan{}, plandomain.ErrInvalidPlanID
	}

	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return plandomain.Plan{}, err
	}
	if plan == nil {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		plan.Name = name
	}
	if req.RateCents < 0 {
		return plandomain.Plan{}, plandomain.ErrInvalidRate
	}
	plan.RateCents = req.RateCents
	if req.IntervalMonths <= 0 {
		return plandomain.Plan{}, plandomain.ErrInvalidInterval
	}
	plan.IntervalMonths = req.IntervalMonths
	plan.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return plandomain.Plan{}, plandomain.ErrDuplicateName
		}
		return plandomain.Plan{}, err
	}
	return *plan, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (plandomain.Plan, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return plandomain.Plan{}, plandomain.ErrInvalidPlanID
	}
	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return plandomain.Plan{}, err
	}
	if plan == nil {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	return s.repo.List(ctx, s.db)
}

// DefaultPlan resolves by configured name, then the cheapest free plan, then
// bootstraps a free plan. Bootstrap is the only write; the unique name index
// makes a concurrent first access collapse to a single row.
func (s *Service) DefaultPlan(ctx context.Context) (plandomain.Plan, error) {
	cfg := s.billing.Get()

	if name := strings.TrimSpace(cfg.DefaultPlanName); name != "" {
		plan, err := s.repo.FindByName(ctx, s.db, name)
		if err != nil {
			return plandomain.Plan{}, err
		}
		if plan != nil {
			return *plan, nil
		}
	}

	plan, err := s.repo.FindCheapestFree(ctx, s.db)
	if err != nil {
		return plandomain.Plan{}, err
	}
	if plan != nil {
		return *plan, nil
	}

	now := s.clock.Now()
	bootstrap := plandomain.Plan{
		ID:             s.genID.Generate(),
		Name:           "free",
		RateCents:      0,
		Currency:       cfg.Currency,
		IntervalMonths: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &bootstrap); err != nil {
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindByName(ctx, s.db, bootstrap.Name)
			if findErr != nil {
				return plandomain.Plan{}, findErr
			}
			if existing != nil {
				return *existing, nil
			}
		}
		return plandomain.Plan{}, err
	}

	s.log.Info("bootstrapped default free plan", zap.String("plan_id", bootstrap.ID.String()))
	return bootstrap, nil
}
