package compiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"go.uber.org/zap"
)

// ChatCompleter is the part of the OpenAI client the LLM compiler uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var errEmptyCompletion = errors.New("empty_completion")

const maxNameLength = 80

const llmSystemPrompt = `You convert an Instagram automation instruction into JSON.
Return only a JSON object with these fields:
{"name": string, "triggers": ["COMMENT"|"DM"], "keywords": [string],
 "listener": {"type": "MESSAGE"|"SMARTAI", "prompt": string, "commentReply": string},
 "responseText": string}
keywords are the words a comment or DM must contain to fire the automation.
responseText is the literal message to send. Use SMARTAI only when the
instruction asks for AI written or natural answers.`

type llmSpec struct {
	Name     string   `json:"name"`
	Triggers []string `json:"triggers"`
	Keywords []string `json:"keywords"`
	Listener struct {
		Type         string `json:"type"`
		Prompt       string `json:"prompt"`
		CommentReply string `json:"commentReply"`
	} `json:"listener"`
	ResponseText string `json:"responseText"`
}

// LLM asks a chat model for the AutomationSpec and normalizes its answer
// with the same rules as the rule compiler. Any provider or decoding failure falls
// back to the rule compiler.
type LLM struct {
	client   ChatCompleter
	model    string
	timeout  time.Duration
	fallback *RuleBased
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewLLM(client ChatCompleter, model string, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *LLM {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLM{
		client:   client,
		model:    model,
		timeout:  timeout,
		fallback: NewRuleBased(),
		log:      log.Named("compiler.llm"),
		metrics:  m,
	}
}

func (c *LLM) Name() string { return "llm" }

func (c *LLM) Compile(ctx context.Context, prompt string, isPro bool) domain.AutomationSpec {
	base := c.fallback.Compile(ctx, prompt, isPro)
	if strings.TrimSpace(prompt) == "" {
		return base
	}

	parsed, err := c.request(ctx, prompt)
	if err != nil {
		c.log.Warn("llm compile failed, using rule compiler", zap.Error(err))
		c.metrics.RecordCompile(ctx, "llm_fallback", string(base.Listener.Kind))
		return base
	}

	return normalizeLLMSpec(parsed, base, prompt, isPro)
}

func (c *LLM) request(ctx context.Context, prompt string) (llmSpec, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return llmSpec{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llmSpec{}, errEmptyCompletion
	}

	content := cleanJSON(resp.Choices[0].Message.Content)
	if content == "" {
		return llmSpec{}, errEmptyCompletion
	}

	var parsed llmSpec
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return llmSpec{}, fmt.Errorf("decode completion: %w", err)
	}
	return parsed, nil
}

func normalizeLLMSpec(parsed llmSpec, base domain.AutomationSpec, prompt string, isPro bool) domain.AutomationSpec {
	spec := domain.AutomationSpec{
		Triggers:     normalizeTriggers(parsed.Triggers),
		Keywords:     NormalizeKeywords(parsed.Keywords),
		ResponseText: strings.TrimSpace(parsed.ResponseText),
	}
	if spec.ResponseText == "" {
		spec.ResponseText = base.ResponseText
	}

	kind := domain.ListenerKind(strings.ToUpper(strings.TrimSpace(parsed.Listener.Type)))
	if kind != domain.ListenerSmartAI || !isPro {
		kind = domain.ListenerMessage
	}

	spec.Listener = domain.ListenerSpec{Kind: kind, Prompt: spec.ResponseText}
	if kind == domain.ListenerSmartAI {
		spec.Listener.Prompt = strings.TrimSpace(parsed.Listener.Prompt)
		if spec.Listener.Prompt == "" {
			spec.Listener.Prompt = strings.TrimSpace(prompt)
		}
	}

	if spec.HasTrigger(domain.TriggerComment) {
		spec.Listener.CommentReply = strings.TrimSpace(parsed.Listener.CommentReply)
		if spec.Listener.CommentReply == "" {
			spec.Listener.CommentReply = DefaultCommentReply
		}
	}

	spec.Name = strings.TrimSpace(parsed.Name)
	if len(spec.Name) > maxNameLength {
		spec.Name = strings.TrimSpace(spec.Name[:maxNameLength])
	}
	if spec.Name == "" {
		spec.Name = synthesizeName(spec)
	}
	return spec
}

// normalizeTriggers keeps COMMENT before DM and defaults to DM.
func normalizeTriggers(raw []string) []domain.TriggerType {
	var hasComment, hasDM bool
	for _, value := range raw {
		switch domain.TriggerType(strings.ToUpper(strings.TrimSpace(value))) {
		case domain.TriggerComment:
			hasComment = true
		case domain.TriggerDM:
			hasDM = true
		}
	}
	triggers := make([]domain.TriggerType, 0, 2)
	if hasComment {
		triggers = append(triggers, domain.TriggerComment)
	}
	if hasDM || !hasComment {
		triggers = append(triggers, domain.TriggerDM)
	}
	return triggers
}

func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
