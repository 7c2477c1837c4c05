package ruleindex

import (
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/automation/domain"
)

// Rule is the read-only projection of an automation used for matching.
type Rule struct {
	AutomationID snowflake.ID
	UserID       snowflake.ID
	Name         string
	Priority     int
	CreatedAt    time.Time
	Triggers     []domain.TriggerType
	Keywords     []string
	PostIDs      []string
	Listener     domain.ListenerSpec
}

func (r Rule) HasTrigger(t domain.TriggerType) bool {
	for _, trigger := range r.Triggers {
		if trigger == t {
			return true
		}
	}
	return false
}

// AppliesToPost reports whether the rule's post scope admits postID. An
// empty scope admits every post.
func (r Rule) AppliesToPost(postID string) bool {
	if len(r.PostIDs) == 0 {
		return true
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return false
	}
	for _, id := range r.PostIDs {
		if id == postID {
			return true
		}
	}
	return false
}

// MatchKeyword returns the first keyword contained in text. text must
// already be normalized with NormalizeText.
func (r Rule) MatchKeyword(text string) (string, bool) {
	for _, keyword := range r.Keywords {
		if keyword != "" && strings.Contains(text, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// NormalizeText uppercases text and collapses whitespace runs.
func NormalizeText(text string) string {
	return strings.ToUpper(strings.Join(strings.Fields(text), " "))
}

// SortRules orders rules by priority, then most recently created, then
// highest id. The order is total so ties resolve the same way every time.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.AutomationID > b.AutomationID
	})
}

// FromAutomation projects a stored automation. ok is false for an
// automation without a listener.
func FromAutomation(a domain.Automation) (Rule, bool) {
	if a.Listener == nil {
		return Rule{}, false
	}
	rule := Rule{
		AutomationID: a.ID,
		UserID:       a.UserID,
		Name:         a.Name,
		Priority:     a.Priority,
		CreatedAt:    a.CreatedAt,
		Triggers:     make([]domain.TriggerType, 0, len(a.Triggers)),
		Keywords:     make([]string, 0, len(a.Keywords)),
		PostIDs:      make([]string, 0, len(a.Posts)),
		Listener: domain.ListenerSpec{
			Kind:         a.Listener.Kind,
			Prompt:       a.Listener.Prompt,
			CommentReply: a.Listener.CommentReply,
		},
	}
	for _, t := range a.Triggers {
		rule.Triggers = append(rule.Triggers, t.Type)
	}
	for _, k := range a.Keywords {
		rule.Keywords = append(rule.Keywords, NormalizeText(k.Word))
	}
	for _, p := range a.Posts {
		rule.PostIDs = append(rule.PostIDs, p.PostID)
	}
	return rule, true
}
