package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, automation *Automation) error
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Automation, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Automation, error)
	ListByUserAndTrigger(ctx context.Context, db *gorm.DB, userID snowflake.ID, trigger TriggerType) ([]Automation, error)
	Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (bool, error)

	AddTrigger(ctx context.Context, db *gorm.DB, trigger *Trigger) error
	AddKeyword(ctx context.Context, db *gorm.DB, keyword *Keyword) error
	RemoveKeyword(ctx context.Context, db *gorm.DB, automationID snowflake.ID, word string) (bool, error)
	CountKeywords(ctx context.Context, db *gorm.DB, automationID snowflake.ID) (int64, error)
	AddListener(ctx context.Context, db *gorm.DB, listener *Listener) error
	UpdateListener(ctx context.Context, db *gorm.DB, listener *Listener) error
	AddPostScope(ctx context.Context, db *gorm.DB, post *PostScope) error
	SetPriority(ctx context.Context, db *gorm.DB, automationID snowflake.ID, priority int) error
	Touch(ctx context.Context, db *gorm.DB, automationID snowflake.ID) error
}
