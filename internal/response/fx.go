package response

import (
	"context"
	"errors"

	"github.com/smallbiznis/replyflow/internal/compiler"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"github.com/smallbiznis/replyflow/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("response",
	fx.Provide(
		NewProviderFromConfig,
		NewPoolFromConfig,
		NewGeneratorFromConfig,
	),
)

// NewProviderFromConfig returns a nil Provider when AI_PROVIDER is none;
// SMARTAI listeners then always answer with the apology text.
func NewProviderFromConfig(cfg config.Config, log *zap.Logger) (Provider, error) {
	log = log.Named("response.provider")
	switch cfg.AI.Provider {
	case config.AIProviderOpenAI:
		if cfg.AI.OpenAIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is required for the openai provider")
		}
		log.Info("ai provider enabled", zap.String("provider", config.AIProviderOpenAI), zap.String("model", cfg.AI.OpenAIModel))
		return NewOpenAIProvider(compiler.NewOpenAIClient(cfg.AI), cfg.AI.OpenAIModel), nil
	case config.AIProviderGemini:
		if cfg.AI.GeminiKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
		client, err := NewGeminiClient(context.Background(), cfg.AI.GeminiKey)
		if err != nil {
			return nil, err
		}
		log.Info("ai provider enabled", zap.String("provider", config.AIProviderGemini), zap.String("model", cfg.AI.GeminiModel))
		return NewGeminiProvider(client.Models, cfg.AI.GeminiModel), nil
	default:
		log.Info("ai provider disabled")
		return nil, nil
	}
}

func NewPoolFromConfig(lc fx.Lifecycle, cfg config.Config, limiter ratelimit.Limiter) *Pool {
	pool := NewPool(limiter, cfg.AI.UserConcurrent, cfg.AI.Timeout)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool
}

type GeneratorParams struct {
	fx.In

	Config   config.Config
	Provider Provider `optional:"true"`
	Pool     *Pool
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

func NewGeneratorFromConfig(p GeneratorParams) *Generator {
	return NewGenerator(p.Provider, p.Pool, GeneratorConfig{
		Apology:      p.Config.AI.ApologyText,
		Backoff:      p.Config.AI.RetryBackoff,
		HistoryTurns: p.Config.AI.HistoryTurns,
	}, p.Log, p.Metrics)
}
