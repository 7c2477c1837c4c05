package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/interaction/domain"
	"github.com/smallbiznis/replyflow/internal/interaction/liveevents"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"github.com/smallbiznis/replyflow/internal/userctx"
	"github.com/smallbiznis/replyflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Repo    domain.Repository
	Log     *zap.Logger
	Hub     *liveevents.Hub  `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	repo    domain.Repository
	log     *zap.Logger
	hub     *liveevents.Hub
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		repo:    p.Repo,
		log:     p.Log.Named("interaction.service"),
		hub:     p.Hub,
		metrics: p.Metrics,
	}
}

func (s *Service) Append(ctx context.Context, records []domain.Record) ([]domain.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	for _, r := range records {
		if r.ID == 0 || r.UserID == 0 || r.AutomationID == 0 || !r.Kind.Valid() || r.OccurredAt.IsZero() {
			return nil, domain.ErrInvalidRecord
		}
	}

	inserted, err := s.repo.Insert(ctx, records)
	if err != nil {
		return nil, err
	}

	for _, r := range inserted {
		s.metrics.RecordInteraction(ctx, string(r.Kind))
		s.hub.Publish(r.UserID.String(), liveevents.LiveEvent{
			RecordID:     r.ID.String(),
			AutomationID: r.AutomationID.String(),
			Kind:         string(r.Kind),
			Success:      r.Success,
			OccurredAt:   r.OccurredAt,
		})
	}
	if skipped := len(records) - len(inserted); skipped > 0 {
		s.log.Debug("duplicate interaction records skipped", zap.Int("skipped", skipped))
	}
	return inserted, nil
}

func (s *Service) Exists(ctx context.Context, userID snowflake.ID, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	return s.repo.ExistsByKey(ctx, userID, key)
}

func (s *Service) History(ctx context.Context, userID snowflake.ID, since *time.Time) ([]domain.Record, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidUser
	}
	if since != nil {
		utc := since.UTC()
		since = &utc
	}
	return s.repo.ListByUser(ctx, userID, since)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidUser
	}

	var after *pagination.Cursor
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, err
		}
		after = cursor
	}

	limit := req.Limit()
	rows, err := s.repo.ListPage(ctx, userID, after, limit)
	if err != nil {
		return domain.ListResponse{}, err
	}

	page, info, err := pagination.BuildCursorPageInfo(rows, limit, func(r domain.Record) pagination.Cursor {
		return pagination.Cursor{ID: r.ID.String(), Time: r.OccurredAt}
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	if page == nil {
		page = []domain.Record{}
	}
	return domain.ListResponse{Records: page, PageInfo: info}, nil
}
