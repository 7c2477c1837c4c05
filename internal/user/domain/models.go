package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is the account owner automations belong to. Plan is maintained by
// the billing collaborator.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Plan      string       `gorm:"type:varchar(32);not null;default:'FREE'" json:"plan"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }
