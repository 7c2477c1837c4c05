package response

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/smallbiznis/replyflow/internal/observability/logger"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"go.uber.org/zap"
)

const maxAttempts = 2

type Input struct {
	UserID   string
	Listener domain.ListenerSpec
	Message  string
	History  []Turn
}

type Output struct {
	Text     string
	Kind     domain.ListenerKind
	Success  bool
	Attempts int
}

// Generator turns a listener into reply text. MESSAGE listeners are a
// lookup; SMARTAI listeners call the provider through the pool.
type Generator struct {
	provider     Provider
	pool         *Pool
	apology      string
	backoff      time.Duration
	historyTurns int
	log          *zap.Logger
	metrics      *metrics.Metrics
}

type GeneratorConfig struct {
	Apology      string
	Backoff      time.Duration
	HistoryTurns int
}

func NewGenerator(provider Provider, pool *Pool, cfg GeneratorConfig, log *zap.Logger, m *metrics.Metrics) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		provider:     provider,
		pool:         pool,
		apology:      cfg.Apology,
		backoff:      cfg.Backoff,
		historyTurns: cfg.HistoryTurns,
		log:          log.Named("response.generator"),
		metrics:      m,
	}
}

func (g *Generator) Generate(ctx context.Context, in Input) Output {
	if in.Listener.Kind != domain.ListenerSmartAI {
		return Output{Text: in.Listener.Prompt, Kind: domain.ListenerMessage, Success: true}
	}

	log := logger.WithContext(ctx, g.log)
	if g.provider == nil || g.pool == nil {
		log.Warn("no ai provider configured, sending apology")
		return g.fallback(0)
	}

	req := Request{
		Instructions: in.Listener.Prompt,
		History:      g.recent(in.History),
		Message:      strings.TrimSpace(in.Message),
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && !g.wait(ctx) {
			break
		}

		start := time.Now()
		text, err := g.pool.Do(ctx, in.UserID, func(callCtx context.Context) (string, error) {
			return g.provider.Generate(callCtx, req)
		})
		if err == nil {
			g.metrics.RecordGeneration(ctx, g.provider.Name(), "success", time.Since(start))
			return Output{Text: text, Kind: domain.ListenerSmartAI, Success: true, Attempts: attempt}
		}

		lastErr = err
		g.metrics.RecordGeneration(ctx, g.provider.Name(), outcomeOf(err), time.Since(start))
		log.Warn("ai generation failed",
			zap.String("provider", g.provider.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	log.Warn("ai generation gave up, sending apology", zap.Error(lastErr))
	return g.fallback(maxAttempts)
}

func (g *Generator) fallback(attempts int) Output {
	return Output{Text: g.apology, Kind: domain.ListenerSmartAI, Success: false, Attempts: attempts}
}

func (g *Generator) wait(ctx context.Context) bool {
	if g.backoff <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(g.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *Generator) recent(history []Turn) []Turn {
	if g.historyTurns <= 0 || len(history) <= g.historyTurns {
		return history
	}
	return history[len(history)-g.historyTurns:]
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
