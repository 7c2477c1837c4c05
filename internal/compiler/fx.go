package compiler

import (
	"github.com/sashabaranov/go-openai"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("compiler",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// New picks the compiler from the startup flags. The LLM compiler is only
// wired when it is enabled and an OpenAI key is configured.
func New(p Params) Compiler {
	if !p.Config.Features.LLMCompiler {
		return NewRuleBased()
	}
	if p.Config.AI.OpenAIKey == "" {
		p.Log.Warn("llm compiler requested without OPENAI_API_KEY, using rule compiler")
		return NewRuleBased()
	}
	return NewLLM(NewOpenAIClient(p.Config.AI), p.Config.Compiler.Model, p.Config.Compiler.Timeout, p.Log, p.Metrics)
}

// NewOpenAIClient builds a go-openai client honouring a custom base URL.
func NewOpenAIClient(cfg config.AIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
