package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	automationdomain "github.com/smallbiznis/replyflow/internal/automation/domain"
)

// InboundEvent is one comment or DM delivered by the webhook collaborator.
type InboundEvent struct {
	// EventID is the webhook delivery id. When set, redelivery of the same
	// event is answered as a duplicate.
	EventID     string                       `json:"event_id"`
	UserID      snowflake.ID                 `json:"user_id"`
	TriggerType automationdomain.TriggerType `json:"trigger_type"`
	Text        string                       `json:"text"`
	PostID      string                       `json:"post_id,omitempty"`
	SenderID    string                       `json:"sender_id"`
	OccurredAt  time.Time                    `json:"occurred_at"`
	Context     []ContextTurn                `json:"context,omitempty"`
}

// ContextTurn is an earlier message of the conversation, oldest first.
type ContextTurn struct {
	FromSender bool   `json:"from_sender"`
	Text       string `json:"text"`
}

type DispatchResult struct {
	Matched        bool                          `json:"matched"`
	Duplicate      bool                          `json:"duplicate,omitempty"`
	Reason         string                        `json:"reason,omitempty"`
	AutomationID   string                        `json:"automation_id,omitempty"`
	MatchedKeyword string                        `json:"matched_keyword,omitempty"`
	ResponseKind   automationdomain.ListenerKind `json:"response_kind,omitempty"`
	ResponseText   string                        `json:"response_text,omitempty"`
	CommentReply   string                        `json:"comment_reply,omitempty"`
	Downgraded     bool                          `json:"downgraded,omitempty"`
	Success        bool                          `json:"success"`
}

const (
	ReasonNoMatch      = "no_match"
	ReasonUserNotFound = "user_not_found"
	ReasonDuplicate    = "duplicate"
)

type Service interface {
	Dispatch(ctx context.Context, event InboundEvent) (DispatchResult, error)
}

var (
	ErrInvalidEvent = errors.New("invalid_event")
	ErrPersistence  = errors.New("persistence_failure")
)
