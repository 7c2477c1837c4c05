// Package domain holds the append-only interaction log.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindCommentReplied  Kind = "COMMENT_REPLIED"
	KindDMSent          Kind = "DM_SENT"
	KindDeliveryAttempt Kind = "DELIVERY_ATTEMPT"
)

func (k Kind) Valid() bool {
	return k == KindCommentReplied || k == KindDMSent || k == KindDeliveryAttempt
}

// Record is one dispatch outcome. Rows are inserted once and never updated
// or deleted.
type Record struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID         snowflake.ID      `gorm:"not null;index:ix_interaction_records_user_time,priority:1;uniqueIndex:ux_interaction_records_key,priority:1" json:"user_id"`
	AutomationID   snowflake.ID      `gorm:"not null;index" json:"automation_id"`
	Kind           Kind              `gorm:"type:varchar(32);not null" json:"kind"`
	Success        bool              `gorm:"not null" json:"success"`
	OccurredAt     time.Time         `gorm:"not null;index:ix_interaction_records_user_time,priority:2" json:"occurred_at"`
	IdempotencyKey *string           `gorm:"type:varchar(255);uniqueIndex:ux_interaction_records_key,priority:2" json:"idempotency_key,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
}

func (Record) TableName() string { return "interaction_records" }

// IdempotencyKey derives the per-effect key of an inbound event.
func IdempotencyKey(eventID string, kind Kind) *string {
	if eventID == "" {
		return nil
	}
	key := eventID + ":" + string(kind)
	return &key
}
