package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/user/domain"
	"github.com/smallbiznis/replyflow/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error)
	UpsertPlan(ctx context.Context, user *domain.User) error
}

type repo struct {
	db    *gorm.DB
	store repository.Repository[domain.User]
}

func Provide(db *gorm.DB) Repository {
	return &repo{
		db:    db,
		store: repository.ProvideStore[domain.User](db),
	}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return r.store.FindOne(ctx, &domain.User{ID: id})
}

// UpsertPlan inserts the user or moves an existing one to the given plan.
func (r *repo) UpsertPlan(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan", "updated_at"}),
	}).Create(user).Error
}
