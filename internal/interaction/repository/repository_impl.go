package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/interaction/domain"
	"github.com/smallbiznis/replyflow/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, records []domain.Record) ([]domain.Record, error) {
	inserted := make([]domain.Record, 0, len(records))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			record := records[i]
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "idempotency_key"}},
				DoNothing: true,
			}).Create(&record)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				inserted = append(inserted, record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (r *repo) ExistsByKey(ctx context.Context, userID snowflake.ID, key string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListByUser(ctx context.Context, userID snowflake.ID, since *time.Time) ([]domain.Record, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if since != nil {
		query = query.Where("occurred_at >= ?", *since)
	}
	var records []domain.Record
	if err := query.Order("occurred_at ASC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListPage returns up to limit+1 records newest first, strictly after the
// cursor position.
func (r *repo) ListPage(ctx context.Context, userID snowflake.ID, after *pagination.Cursor, limit int) ([]domain.Record, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if after != nil {
		afterID, err := snowflake.ParseString(after.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		query = query.Where(
			"(occurred_at < ?) OR (occurred_at = ? AND id < ?)",
			after.Time, after.Time, afterID,
		)
	}
	var records []domain.Record
	err := query.
		Order("occurred_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
