package response

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedProvider struct {
	mu       sync.Mutex
	answers  []string
	errs     []error
	requests []Request
	delay    time.Duration
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	i := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return "", p.errs[i]
	}
	if i < len(p.answers) {
		return p.answers[i], nil
	}
	return "", ErrEmptyAnswer
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

const apology = "Sorry, try again later."

func newGenerator(provider Provider, pool *Pool) *Generator {
	return NewGenerator(provider, pool, GeneratorConfig{
		Apology:      apology,
		Backoff:      time.Millisecond,
		HistoryTurns: 2,
	}, zap.NewNop(), nil)
}

func smartListener() domain.ListenerSpec {
	return domain.ListenerSpec{Kind: domain.ListenerSmartAI, Prompt: "You sell candles. Be brief."}
}

func TestMessageListenerReturnsPromptVerbatim(t *testing.T) {
	provider := &scriptedProvider{}
	g := newGenerator(provider, nil)

	out := g.Generate(context.Background(), Input{
		UserID:   "1",
		Listener: domain.ListenerSpec{Kind: domain.ListenerMessage, Prompt: "  Link in bio!  "},
		Message:  "price?",
	})

	assert.Equal(t, "  Link in bio!  ", out.Text)
	assert.Equal(t, domain.ListenerMessage, out.Kind)
	assert.True(t, out.Success)
	assert.Zero(t, provider.calls())
}

func TestSmartAISendsInstructionsAndRecentHistory(t *testing.T) {
	provider := &scriptedProvider{answers: []string{"It costs $12."}}
	pool := NewPool(nil, 1, time.Second)
	defer pool.Close()

	out := newGenerator(provider, pool).Generate(context.Background(), Input{
		UserID:   "1",
		Listener: smartListener(),
		Message:  " how much? ",
		History: []Turn{
			{Role: RoleUser, Text: "hi"},
			{Role: RoleAssistant, Text: "hello!"},
			{Role: RoleUser, Text: "do you ship?"},
		},
	})

	assert.True(t, out.Success)
	assert.Equal(t, "It costs $12.", out.Text)
	assert.Equal(t, 1, out.Attempts)
	require.Equal(t, 1, provider.calls())
	req := provider.requests[0]
	assert.Equal(t, "You sell candles. Be brief.", req.Instructions)
	assert.Equal(t, "how much?", req.Message)
	assert.Equal(t, []Turn{{Role: RoleAssistant, Text: "hello!"}, {Role: RoleUser, Text: "do you ship?"}}, req.History)
}

func TestSmartAIRetriesOnce(t *testing.T) {
	provider := &scriptedProvider{
		errs:    []error{errors.New("503")},
		answers: []string{"", "second try"},
	}
	pool := NewPool(nil, 1, time.Second)
	defer pool.Close()

	out := newGenerator(provider, pool).Generate(context.Background(), Input{UserID: "1", Listener: smartListener(), Message: "q"})

	assert.True(t, out.Success)
	assert.Equal(t, "second try", out.Text)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, provider.calls())
}

func TestSmartAIFallsBackToApologyAfterTwoFailures(t *testing.T) {
	provider := &scriptedProvider{errs: []error{errors.New("a"), errors.New("b"), nil}, answers: []string{"", "", "never"}}
	pool := NewPool(nil, 1, time.Second)
	defer pool.Close()

	out := newGenerator(provider, pool).Generate(context.Background(), Input{UserID: "1", Listener: smartListener(), Message: "q"})

	assert.False(t, out.Success)
	assert.Equal(t, apology, out.Text)
	assert.Equal(t, domain.ListenerSmartAI, out.Kind)
	assert.Equal(t, 2, provider.calls())
}

func TestSmartAITimeoutFallsBack(t *testing.T) {
	provider := &scriptedProvider{answers: []string{"slow", "slow"}, delay: 200 * time.Millisecond}
	pool := NewPool(nil, 2, 10*time.Millisecond)

	out := newGenerator(provider, pool).Generate(context.Background(), Input{UserID: "1", Listener: smartListener(), Message: "q"})
	pool.Close()

	assert.False(t, out.Success)
	assert.Equal(t, apology, out.Text)
}

func TestSmartAIWithoutProvider(t *testing.T) {
	out := newGenerator(nil, nil).Generate(context.Background(), Input{UserID: "1", Listener: smartListener(), Message: "q"})
	assert.False(t, out.Success)
	assert.Equal(t, apology, out.Text)
}
