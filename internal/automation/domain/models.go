package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TriggerType string

const (
	TriggerComment TriggerType = "COMMENT"
	TriggerDM      TriggerType = "DM"
)

func (t TriggerType) Valid() bool {
	return t == TriggerComment || t == TriggerDM
}

type ListenerKind string

const (
	ListenerMessage ListenerKind = "MESSAGE"
	ListenerSmartAI ListenerKind = "SMARTAI"
)

func (k ListenerKind) Valid() bool {
	return k == ListenerMessage || k == ListenerSmartAI
}

// Automation is a compiled rule owned by one user. Children are loaded
// with it and are never shared between automations.
type Automation struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	Name      string       `gorm:"not null" json:"name"`
	Handle    string       `gorm:"not null" json:"handle"`
	Prompt    string       `gorm:"type:text;not null" json:"prompt"`
	Priority  int          `gorm:"not null;default:0" json:"priority"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`

	Triggers []Trigger   `gorm:"foreignKey:AutomationID" json:"triggers"`
	Keywords []Keyword   `gorm:"foreignKey:AutomationID" json:"keywords"`
	Listener *Listener   `gorm:"foreignKey:AutomationID" json:"listener,omitempty"`
	Posts    []PostScope `gorm:"foreignKey:AutomationID" json:"posts"`
}

func (Automation) TableName() string { return "automations" }

func (a Automation) HasTrigger(t TriggerType) bool {
	for _, trigger := range a.Triggers {
		if trigger.Type == t {
			return true
		}
	}
	return false
}

type Trigger struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AutomationID snowflake.ID `gorm:"not null;uniqueIndex:ux_automation_triggers_type" json:"automation_id"`
	Type         TriggerType  `gorm:"type:varchar(16);not null;uniqueIndex:ux_automation_triggers_type" json:"type"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (Trigger) TableName() string { return "automation_triggers" }

type Keyword struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AutomationID snowflake.ID `gorm:"not null;uniqueIndex:ux_automation_keywords_word" json:"automation_id"`
	Word         string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_automation_keywords_word" json:"word"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (Keyword) TableName() string { return "automation_keywords" }

// Listener holds the reply behaviour. Prompt is the literal reply for
// MESSAGE and the system instructions for SMARTAI.
type Listener struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AutomationID snowflake.ID `gorm:"not null;uniqueIndex" json:"automation_id"`
	Kind         ListenerKind `gorm:"type:varchar(16);not null" json:"kind"`
	Prompt       string       `gorm:"type:text;not null" json:"prompt"`
	CommentReply string       `gorm:"type:text" json:"comment_reply,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Listener) TableName() string { return "automation_listeners" }

type PostScope struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AutomationID snowflake.ID `gorm:"not null;uniqueIndex:ux_automation_posts_post" json:"automation_id"`
	PostID       string       `gorm:"type:varchar(128);not null;uniqueIndex:ux_automation_posts_post" json:"post_id"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (PostScope) TableName() string { return "automation_posts" }

// AutomationSpec is the structured result of compiling a free-text prompt.
type AutomationSpec struct {
	Name         string        `json:"name"`
	Triggers     []TriggerType `json:"triggers"`
	Keywords     []string      `json:"keywords"`
	Listener     ListenerSpec  `json:"listener"`
	ResponseText string        `json:"response_text"`
}

type ListenerSpec struct {
	Kind         ListenerKind `json:"kind"`
	Prompt       string       `json:"prompt"`
	CommentReply string       `json:"comment_reply,omitempty"`
}

func (s AutomationSpec) HasTrigger(t TriggerType) bool {
	for _, trigger := range s.Triggers {
		if trigger == t {
			return true
		}
	}
	return false
}
