package response

import (
	"context"
	"errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one earlier message in the conversation with the sender.
type Turn struct {
	Role string
	Text string
}

type Request struct {
	// Instructions is the listener prompt the owner wrote.
	Instructions string
	History      []Turn
	Message      string
}

// Provider produces one AI-written reply. Implementations must honour ctx
// cancellation.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

var (
	ErrEmptyAnswer = errors.New("empty_ai_answer")
	ErrRateLimited = errors.New("ai_rate_limited")
	ErrTimeout     = errors.New("ai_timeout")
	ErrPoolClosed  = errors.New("ai_pool_closed")
)
