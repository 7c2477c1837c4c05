package domain

import (
	"context"
	"errors"
)

type CompileRequest struct {
	Prompt string
}

type UpdateListenerRequest struct {
	Kind         ListenerKind
	Prompt       string
	CommentReply string
}

type Service interface {
	Preview(ctx context.Context, req CompileRequest) (AutomationSpec, error)
	Create(ctx context.Context, req CompileRequest) (Automation, error)
	Get(ctx context.Context, id string) (Automation, error)
	List(ctx context.Context) ([]Automation, error)
	Delete(ctx context.Context, id string) error

	AddTrigger(ctx context.Context, id string, trigger TriggerType) (Automation, error)
	AddKeyword(ctx context.Context, id string, word string) (Automation, error)
	RemoveKeyword(ctx context.Context, id string, word string) (Automation, error)
	UpdateListener(ctx context.Context, id string, req UpdateListenerRequest) (Automation, error)
	SetPriority(ctx context.Context, id string, priority int) (Automation, error)
	AddPostScope(ctx context.Context, id string, postID string) (Automation, error)
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidKeyword    = errors.New("invalid_keyword")
	ErrInvalidTrigger    = errors.New("invalid_trigger")
	ErrInvalidListener   = errors.New("invalid_listener")
	ErrInvalidPostID     = errors.New("invalid_post_id")
	ErrLastKeyword       = errors.New("last_keyword")
	ErrSmartAINotAllowed = errors.New("smartai_not_allowed")
	ErrNotFound          = errors.New("not_found")
)
