package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	scopeAIUser   = "ai_user"
	keyAIUserRate = "replyflow:ai:user:%s"
)

// Limiter bounds how often one user may call the reply generation provider.
type Limiter interface {
	Allow(ctx context.Context, userID string) (Decision, error)
}

type Params struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Lifecycle fx.Lifecycle     `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

// New returns the redis-backed limiter when rate limiting is enabled and the
// in-process limiter otherwise.
func New(p Params) (Limiter, error) {
	cfg := p.Config.RateLimit
	log := p.Log.Named("ratelimit")
	if cfg.UserRate <= 0 || cfg.UserBurst <= 0 {
		return nil, errors.New("ai user rate limit must be positive")
	}

	local := NewLocalLimiter(cfg.UserRate, cfg.UserBurst, p.Metrics)
	if !cfg.Enabled {
		return local, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error { return client.Close() },
		})
	}

	log.Info("redis rate limiter enabled", zap.String("addr", addr))
	return NewRedisLimiter(NewTokenBucket(client), local, cfg.UserRate, cfg.UserBurst, log, p.Metrics), nil
}

// RedisLimiter shares buckets across replicas. When redis is unreachable
// the decision is taken by the in-process fallback.
type RedisLimiter struct {
	bucket   *TokenBucket
	fallback Limiter
	rate     float64
	burst    int
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewRedisLimiter(bucket *TokenBucket, fallback Limiter, userRate float64, burst int, log *zap.Logger, m *metrics.Metrics) *RedisLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLimiter{
		bucket:   bucket,
		fallback: fallback,
		rate:     userRate,
		burst:    burst,
		log:      log,
		metrics:  m,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{}, ErrEmptyKey
	}

	decision, err := l.bucket.Allow(ctx, fmt.Sprintf(keyAIUserRate, userID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("redis rate limiter unavailable, using local limiter",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		if l.fallback == nil {
			return Decision{}, err
		}
		return l.fallback.Allow(ctx, userID)
	}

	record(ctx, l.metrics, decision)
	return decision, nil
}

// sweepEvery is how many Allow calls pass between scans for idle users.
const sweepEvery = 1024

// LocalLimiter keeps one x/time/rate limiter per user in process memory.
// A user idle long enough to refill the whole burst is forgotten; a fresh
// limiter for them behaves the same.
type LocalLimiter struct {
	rate      rate.Limit
	burst     int
	idleAfter time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.Mutex
	limiters map[string]*localEntry
	calls    int
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(perSecond float64, burst int, m *metrics.Metrics) *LocalLimiter {
	return &LocalLimiter{
		rate:      rate.Limit(perSecond),
		burst:     burst,
		idleAfter: refillTime(perSecond, burst),
		metrics:   m,
		now:       time.Now,
		limiters:  make(map[string]*localEntry),
	}
}

// refillTime is how long an empty bucket takes to fill; zero disables
// eviction when it cannot be represented.
func refillTime(perSecond float64, burst int) time.Duration {
	if perSecond <= 0 || burst <= 0 {
		return 0
	}
	seconds := float64(burst) / perSecond
	if seconds >= float64(math.MaxInt64/int64(time.Second)) {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func (l *LocalLimiter) Allow(ctx context.Context, userID string) (Decision, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Decision{}, ErrEmptyKey
	}

	now := l.now()
	limiter := l.limiterFor(userID, now)
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		decision := Decision{Allowed: false}
		record(ctx, l.metrics, decision)
		return decision, nil
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		decision := Decision{Allowed: false, RetryAfter: delay}
		record(ctx, l.metrics, decision)
		return decision, nil
	}

	decision := Decision{Allowed: true, Remaining: int(limiter.TokensAt(now))}
	record(ctx, l.metrics, decision)
	return decision, nil
}

func (l *LocalLimiter) limiterFor(userID string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls >= sweepEvery {
		l.calls = 0
		l.evictIdleLocked(now)
	}

	entry, ok := l.limiters[userID]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (l *LocalLimiter) evictIdleLocked(now time.Time) {
	if l.idleAfter <= 0 {
		return
	}
	for userID, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idleAfter {
			delete(l.limiters, userID)
		}
	}
}

func record(ctx context.Context, m *metrics.Metrics, d Decision) {
	if d.Allowed {
		m.RecordRateLimitAllowed(ctx, scopeAIUser)
		return
	}
	m.RecordRateLimitDenied(ctx, scopeAIUser, "exhausted")
}
