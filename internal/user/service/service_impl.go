package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/cache"
	"github.com/smallbiznis/replyflow/internal/clock"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/user/domain"
	"github.com/smallbiznis/replyflow/internal/user/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Repo    repository.Repository
	Log     *zap.Logger
	Clock   clock.Clock
	Cache   cache.UserPlanCache
	Catalog *config.PlanCatalogHolder
}

type Service struct {
	repo    repository.Repository
	log     *zap.Logger
	clock   clock.Clock
	cache   cache.UserPlanCache
	catalog *config.PlanCatalogHolder
}

func New(p Params) domain.Service {
	return &Service{
		repo:    p.Repo,
		log:     p.Log.Named("user.service"),
		clock:   p.Clock,
		cache:   p.Cache,
		catalog: p.Catalog,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.User, error) {
	if id <= 0 {
		return domain.User{}, domain.ErrInvalidID
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) ResolvePlan(ctx context.Context, id snowflake.ID) (string, error) {
	if plan, ok := s.cache.GetPlan(id.String()); ok {
		return plan, nil
	}
	stamp := s.cache.Stamp()
	user, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	s.cache.SetPlan(id.String(), user.Plan, stamp)
	return user.Plan, nil
}

func (s *Service) SetPlan(ctx context.Context, id snowflake.ID, plan string) (domain.User, error) {
	if id <= 0 {
		return domain.User{}, domain.ErrInvalidID
	}
	plan = strings.ToUpper(strings.TrimSpace(plan))
	if !s.knownPlan(plan) {
		return domain.User{}, domain.ErrInvalidPlan
	}

	now := s.clock.Now()
	user := domain.User{
		ID:        id,
		Plan:      plan,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertPlan(ctx, &user); err != nil {
		return domain.User{}, err
	}
	s.cache.Invalidate(id.String())

	stored, err := s.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("user plan updated",
		zap.String("user_id", id.String()),
		zap.String("plan", plan),
	)
	return stored, nil
}

func (s *Service) knownPlan(plan string) bool {
	if plan == "" {
		return false
	}
	for _, def := range s.catalog.Get().Plans {
		if strings.EqualFold(strings.TrimSpace(def.Name), plan) {
			return true
		}
	}
	return false
}

