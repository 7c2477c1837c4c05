package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/automation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, automation *domain.Automation) error {
	return db.WithContext(ctx).Create(automation).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Automation, error) {
	var automation domain.Automation
	err := withChildren(db.WithContext(ctx)).
		Where("user_id = ? AND id = ?", userID, id).
		First(&automation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &automation, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Automation, error) {
	var automations []domain.Automation
	err := withChildren(db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&automations).Error
	if err != nil {
		return nil, err
	}
	return automations, nil
}

func (r *repo) ListByUserAndTrigger(ctx context.Context, db *gorm.DB, userID snowflake.ID, trigger domain.TriggerType) ([]domain.Automation, error) {
	var automations []domain.Automation
	err := withChildren(db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Where("id IN (?)", db.Model(&domain.Trigger{}).Select("automation_id").Where("type = ?", trigger)).
		Order("priority DESC, created_at DESC, id DESC").
		Find(&automations).Error
	if err != nil {
		return nil, err
	}
	return automations, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (bool, error) {
	deleted := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND id = ?", userID, id).Delete(&domain.Automation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		for _, child := range []any{&domain.Trigger{}, &domain.Keyword{}, &domain.Listener{}, &domain.PostScope{}} {
			if err := tx.Where("automation_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

func (r *repo) AddTrigger(ctx context.Context, db *gorm.DB, trigger *domain.Trigger) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "automation_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(trigger).Error
}

func (r *repo) AddKeyword(ctx context.Context, db *gorm.DB, keyword *domain.Keyword) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "automation_id"}, {Name: "word"}},
			DoNothing: true,
		}).
		Create(keyword).Error
}

func (r *repo) RemoveKeyword(ctx context.Context, db *gorm.DB, automationID snowflake.ID, word string) (bool, error) {
	res := db.WithContext(ctx).
		Where("automation_id = ? AND word = ?", automationID, word).
		Delete(&domain.Keyword{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountKeywords(ctx context.Context, db *gorm.DB, automationID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Keyword{}).
		Where("automation_id = ?", automationID).
		Count(&count).Error
	return count, err
}

func (r *repo) AddListener(ctx context.Context, db *gorm.DB, listener *domain.Listener) error {
	return db.WithContext(ctx).Create(listener).Error
}

func (r *repo) UpdateListener(ctx context.Context, db *gorm.DB, listener *domain.Listener) error {
	return db.WithContext(ctx).
		Model(&domain.Listener{}).
		Where("automation_id = ?", listener.AutomationID).
		Updates(map[string]any{
			"kind":          listener.Kind,
			"prompt":        listener.Prompt,
			"comment_reply": listener.CommentReply,
			"updated_at":    listener.UpdatedAt,
		}).Error
}

func (r *repo) AddPostScope(ctx context.Context, db *gorm.DB, post *domain.PostScope) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "automation_id"}, {Name: "post_id"}},
			DoNothing: true,
		}).
		Create(post).Error
}

func (r *repo) SetPriority(ctx context.Context, db *gorm.DB, automationID snowflake.ID, priority int) error {
	return db.WithContext(ctx).
		Model(&domain.Automation{}).
		Where("id = ?", automationID).
		Updates(map[string]any{
			"priority":   priority,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repo) Touch(ctx context.Context, db *gorm.DB, automationID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Automation{}).
		Where("id = ?", automationID).
		Update("updated_at", time.Now().UTC()).Error
}

func withChildren(db *gorm.DB) *gorm.DB {
	byID := func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }
	return db.
		Preload("Triggers", byID).
		Preload("Keywords", byID).
		Preload("Listener").
		Preload("Posts", byID)
}
