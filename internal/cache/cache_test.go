package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/replyflow/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int]().WithNow(fake.Now)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	fake.Advance(time.Minute)

	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCacheDeleteAndPurge(t *testing.T) {
	c := NewTTLCache[int, string]()
	c.Set(1, "one", time.Hour)
	c.Set(2, "two", time.Hour)

	c.Delete(1)
	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheSweepsExpiredOnWrite(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCache[int, int]().WithNow(fake.Now)

	for i := 0; i < sweepEvery-1; i++ {
		c.Set(i, i, time.Minute)
	}
	fake.Advance(time.Minute)

	// the write that reaches sweepEvery clears the expired keys
	c.Set(-1, -1, time.Minute)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCacheDeleteExpired(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int]().WithNow(fake.Now)
	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	c.Set("forever", 3, 0)

	fake.Advance(time.Minute)
	assert.Equal(t, 1, c.DeleteExpired())
	assert.Equal(t, 2, c.Len())
}

func TestUserPlanCacheSkipsWriteAfterInvalidate(t *testing.T) {
	c := NewUserPlanCache()

	stamp := c.Stamp()
	// plan changes while the old plan is being read from storage
	c.Invalidate("42")
	assert.False(t, c.SetPlan("42", "PRO", stamp))
	_, ok := c.GetPlan("42")
	assert.False(t, ok)

	assert.True(t, c.SetPlan("42", "FREE", c.Stamp()))
	plan, ok := c.GetPlan("42")
	assert.True(t, ok)
	assert.Equal(t, "FREE", plan)
}
