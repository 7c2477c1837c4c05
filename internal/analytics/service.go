package analytics

import (
	"context"
	"time"

	automationdomain "github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/smallbiznis/replyflow/internal/clock"
	"github.com/smallbiznis/replyflow/internal/config"
	interactiondomain "github.com/smallbiznis/replyflow/internal/interaction/domain"
	"github.com/smallbiznis/replyflow/internal/userctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config       config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Interactions interactiondomain.Service
	Automations  automationdomain.Service
}

// Service serves the three dashboard views for the user in the request
// context.
type Service struct {
	log          *zap.Logger
	clock        clock.Clock
	loc          *time.Location
	interactions interactiondomain.Service
	automations  automationdomain.Service
}

func New(p Params) *Service {
	log := p.Log.Named("analytics.service")
	loc, err := time.LoadLocation(p.Config.Analytics.Timezone)
	if err != nil {
		log.Warn("unknown analytics timezone, using UTC",
			zap.String("timezone", p.Config.Analytics.Timezone),
			zap.Error(err),
		)
		loc = time.UTC
	}
	return &Service{
		log:          log,
		clock:        p.Clock,
		loc:          loc,
		interactions: p.Interactions,
		automations:  p.Automations,
	}
}

func (s *Service) DailyActivity(ctx context.Context, days int) ([]DailyActivityPoint, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return nil, interactiondomain.ErrInvalidUser
	}
	if days <= 0 || days > MaxDays {
		return nil, ErrInvalidDays
	}

	now := s.clock.Now()
	since := WindowStart(now, days, s.loc)
	records, err := s.interactions.History(ctx, userID, &since)
	if err != nil {
		return nil, err
	}
	return DailyActivity(records, now, days, s.loc)
}

func (s *Service) GlobalStats(ctx context.Context) (GlobalStats, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return GlobalStats{}, interactiondomain.ErrInvalidUser
	}
	records, err := s.interactions.History(ctx, userID, nil)
	if err != nil {
		return GlobalStats{}, err
	}
	return Global(records), nil
}

func (s *Service) PerAutomationStats(ctx context.Context) ([]PerAutomationStat, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return nil, interactiondomain.ErrInvalidUser
	}

	automations, err := s.automations.List(ctx)
	if err != nil {
		return nil, err
	}
	records, err := s.interactions.History(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	refs := make([]AutomationRef, 0, len(automations))
	for _, a := range automations {
		refs = append(refs, AutomationRef{ID: a.ID, Name: a.Name, CreatedAt: a.CreatedAt})
	}
	return PerAutomation(records, refs), nil
}
