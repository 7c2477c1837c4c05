package compiler

import (
	"context"

	"github.com/smallbiznis/replyflow/internal/automation/domain"
)

// Compiler turns a free-text instruction into an AutomationSpec. Compile is
// total: every prompt yields a valid AutomationSpec (at least one
// trigger and one keyword), so callers never handle a compile error.
type Compiler interface {
	Compile(ctx context.Context, prompt string, isPro bool) domain.AutomationSpec
	Name() string
}

const (
	DefaultKeyword      = "INFO"
	FallbackResponse    = "Thanks for reaching out! We'll get back to you shortly."
	DefaultCommentReply = "Thanks for your comment! Check your DMs."
)

var smartAICues = []string{
	"ai",
	"smart",
	"intelligent",
	"answer",
	"respond naturally",
	"understand",
}

var commentCues = []string{"comment", "post"}

var dmCues = []string{"dm", "message", "direct"}
