package ruleindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/smallbiznis/replyflow/internal/cache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const defaultTTL = 30 * time.Second

// Source loads the rules of one user for one trigger type.
type Source interface {
	Load(ctx context.Context, userID snowflake.ID, trigger domain.TriggerType) ([]Rule, error)
}

// Invalidator drops cached rules after an automation changes.
type Invalidator interface {
	Invalidate(userID snowflake.ID)
}

// Index serves candidate rules per (user, trigger) from a short-lived
// cache. Concurrent misses for the same key share one load.
//
// epoch moves on every Invalidate. A load only fills the cache when no
// invalidation happened while it ran.
type Index struct {
	source Source
	log    *zap.Logger
	ttl    time.Duration
	rules  *cache.TTLCache[string, []Rule]
	group  singleflight.Group

	mu    sync.Mutex
	epoch uint64
}

type Params struct {
	fx.In

	Source Source
	Log    *zap.Logger
}

func New(p Params) *Index {
	return NewWithTTL(p.Source, p.Log, defaultTTL)
}

func NewWithTTL(source Source, log *zap.Logger, ttl time.Duration) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{
		source: source,
		log:    log.Named("ruleindex"),
		ttl:    ttl,
		rules:  cache.NewTTLCache[string, []Rule](),
	}
}

// Candidates returns the user's rules for trigger in tie-break order.
// Callers must not modify the returned slice.
func (i *Index) Candidates(ctx context.Context, userID snowflake.ID, trigger domain.TriggerType) ([]Rule, error) {
	key := rulesKey(userID, trigger)
	if rules, ok := i.rules.Get(key); ok {
		return rules, nil
	}

	epoch := i.currentEpoch()
	// callers arriving after an invalidation must not join an older load
	value, err, _ := i.group.Do(fmt.Sprintf("%s|%d", key, epoch), func() (any, error) {
		rules, err := i.source.Load(ctx, userID, trigger)
		if err != nil {
			return nil, err
		}
		SortRules(rules)
		i.store(key, rules, epoch)
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Rule), nil
}

func (i *Index) Invalidate(userID snowflake.ID) {
	i.mu.Lock()
	i.epoch++
	for _, trigger := range []domain.TriggerType{domain.TriggerComment, domain.TriggerDM} {
		i.rules.Delete(rulesKey(userID, trigger))
	}
	i.mu.Unlock()
	i.log.Debug("rule index invalidated", zap.String("user_id", userID.String()))
}

func (i *Index) currentEpoch() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.epoch
}

func (i *Index) store(key string, rules []Rule, epoch uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.epoch == epoch {
		i.rules.Set(key, rules, i.ttl)
	}
}

func rulesKey(userID snowflake.ID, trigger domain.TriggerType) string {
	return fmt.Sprintf("%d|%s", userID, trigger)
}

// GormSource reads rules from the automation tables.
type GormSource struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewGormSource(db *gorm.DB, repo domain.Repository) Source {
	return &GormSource{db: db, repo: repo}
}

func (s *GormSource) Load(ctx context.Context, userID snowflake.ID, trigger domain.TriggerType) ([]Rule, error) {
	automations, err := s.repo.ListByUserAndTrigger(ctx, s.db, userID, trigger)
	if err != nil {
		return nil, err
	}
	rules := make([]Rule, 0, len(automations))
	for _, a := range automations {
		rule, ok := FromAutomation(a)
		if !ok {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
