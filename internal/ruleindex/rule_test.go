package ruleindex

import (
	"testing"

	"github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/stretchr/testify/assert"
)

func TestAppliesToPost(t *testing.T) {
	unscoped := Rule{}
	assert.True(t, unscoped.AppliesToPost(""))
	assert.True(t, unscoped.AppliesToPost("p1"))

	scoped := Rule{PostIDs: []string{"p1", "p2"}}
	assert.True(t, scoped.AppliesToPost(" p2 "))
	assert.False(t, scoped.AppliesToPost("p3"))
	assert.False(t, scoped.AppliesToPost(""))
}

func TestMatchKeyword(t *testing.T) {
	rule := Rule{Keywords: []string{"SHOP NOW", "PRICE"}}

	kw, ok := rule.MatchKeyword(NormalizeText("what's the   price?"))
	assert.True(t, ok)
	assert.Equal(t, "PRICE", kw)

	kw, ok = rule.MatchKeyword(NormalizeText("I want to shop\n now"))
	assert.True(t, ok)
	assert.Equal(t, "SHOP NOW", kw)

	_, ok = rule.MatchKeyword(NormalizeText("hello there"))
	assert.False(t, ok)
}

func TestFromAutomation(t *testing.T) {
	_, ok := FromAutomation(domain.Automation{ID: 1})
	assert.False(t, ok)

	rule, ok := FromAutomation(domain.Automation{
		ID:       1,
		UserID:   2,
		Triggers: []domain.Trigger{{Type: domain.TriggerComment}},
		Keywords: []domain.Keyword{{Word: "link"}},
		Posts:    []domain.PostScope{{PostID: "p1"}},
		Listener: &domain.Listener{Kind: domain.ListenerMessage, Prompt: "hi"},
	})
	assert.True(t, ok)
	assert.True(t, rule.HasTrigger(domain.TriggerComment))
	assert.False(t, rule.HasTrigger(domain.TriggerDM))
	assert.Equal(t, []string{"LINK"}, rule.Keywords)
	assert.Equal(t, []string{"p1"}, rule.PostIDs)
	assert.Equal(t, "hi", rule.Listener.Prompt)
}
