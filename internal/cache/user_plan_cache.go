package cache

import (
	"strings"
	"sync"
	"time"
)

const defaultPlanTTL = 30 * time.Second

// UserPlanCache holds recently resolved user plans for the dispatch hot path.
//
// A reader takes a Stamp before loading a plan from storage and passes it to
// SetPlan. The write is skipped when any Invalidate ran in between, so a read
// that raced with a plan change cannot put the old plan back.
type UserPlanCache interface {
	GetPlan(userID string) (string, bool)
	Stamp() uint64
	SetPlan(userID, plan string, stamp uint64) bool
	Invalidate(userID string)
}

type userPlanCache struct {
	plans *TTLCache[string, string]
	ttl   time.Duration

	mu    sync.Mutex
	epoch uint64
}

func NewUserPlanCache() UserPlanCache {
	return &userPlanCache{
		plans: NewTTLCache[string, string](),
		ttl:   defaultPlanTTL,
	}
}

func (c *userPlanCache) GetPlan(userID string) (string, bool) {
	return c.plans.Get(cacheKey(userID))
}

func (c *userPlanCache) Stamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *userPlanCache) SetPlan(userID, plan string, stamp uint64) bool {
	if strings.TrimSpace(plan) == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != stamp {
		return false
	}
	c.plans.Set(cacheKey(userID), plan, c.ttl)
	return true
}

func (c *userPlanCache) Invalidate(userID string) {
	c.mu.Lock()
	c.epoch++
	c.plans.Delete(cacheKey(userID))
	c.mu.Unlock()
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
