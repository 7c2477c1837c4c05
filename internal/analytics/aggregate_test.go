package analytics

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/go-cmp/cmp"
	"github.com/smallbiznis/replyflow/internal/interaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 6, 10, 15, 30, 0, 0, time.UTC)

func rec(automation snowflake.ID, kind domain.Kind, success bool, at time.Time) domain.Record {
	return domain.Record{AutomationID: automation, UserID: 1, Kind: kind, Success: success, OccurredAt: at}
}

func TestDailyActivityZeroFilledAscending(t *testing.T) {
	records := []domain.Record{
		rec(1, domain.KindDMSent, true, today),
		rec(1, domain.KindDMSent, true, today.Add(-time.Hour)),
		rec(1, domain.KindCommentReplied, true, today.AddDate(0, 0, -3)),
		rec(1, domain.KindDMSent, false, today),
		rec(1, domain.KindDeliveryAttempt, true, today),
		rec(1, domain.KindDeliveryAttempt, false, today),
		rec(1, domain.KindDeliveryAttempt, true, today.AddDate(0, 0, -3)),
		rec(1, domain.KindDMSent, true, today.AddDate(0, 0, -7)),
	}

	points, err := DailyActivity(records, today, 7, time.UTC)
	require.NoError(t, err)
	require.Len(t, points, 7)

	assert.Equal(t, "2026-06-04", points[0].Date)
	assert.Equal(t, "2026-06-10", points[6].Date)
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i-1].Date, points[i].Date)
	}
	assert.Equal(t, DailyActivityPoint{Date: "2026-06-07", CommentsReplied: 1, DeliveredCount: 1}, points[3])
	assert.Equal(t, DailyActivityPoint{Date: "2026-06-10", DMsSent: 2, DeliveredCount: 2}, points[6])
	assert.Equal(t, DailyActivityPoint{Date: "2026-06-05"}, points[1])
}

func TestDailyActivityAlwaysHasRequestedLength(t *testing.T) {
	for _, days := range []int{1, 7, 30, 90} {
		points, err := DailyActivity(nil, today, days, time.UTC)
		require.NoError(t, err)
		assert.Len(t, points, days)
	}
	_, err := DailyActivity(nil, today, 0, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDays)
	_, err = DailyActivity(nil, today, MaxDays+1, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDays)
}

func TestDailyActivityUsesTimezoneBoundaries(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	// 20:00 UTC on June 9 is already June 10 in UTC+7.
	late := time.Date(2026, 6, 9, 20, 0, 0, 0, time.UTC)

	points, err := DailyActivity([]domain.Record{rec(1, domain.KindDMSent, true, late)}, today, 2, jakarta)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-10", points[1].Date)
	assert.Equal(t, 1, points[1].DMsSent)
	assert.Zero(t, points[0].DMsSent)
}

func TestGlobalCountsSuccessfulEffects(t *testing.T) {
	stats := Global([]domain.Record{
		rec(1, domain.KindCommentReplied, true, today),
		rec(2, domain.KindCommentReplied, true, today),
		rec(1, domain.KindDMSent, true, today),
		rec(1, domain.KindDMSent, false, today),
		rec(1, domain.KindDeliveryAttempt, true, today),
	})
	assert.Equal(t, GlobalStats{TotalCommentsReplied: 2, TotalDMsSent: 1}, stats)
}

func TestPerAutomation(t *testing.T) {
	older := AutomationRef{ID: 20, Name: "PRICE Comment", CreatedAt: today.AddDate(0, 0, -5)}
	newer := AutomationRef{ID: 10, Name: "INFO DM", CreatedAt: today.AddDate(0, 0, -1)}
	idle := AutomationRef{ID: 30, Name: "LINK DM", CreatedAt: today}

	records := []domain.Record{
		rec(20, domain.KindDeliveryAttempt, true, today),
		rec(20, domain.KindDMSent, true, today),
		rec(20, domain.KindCommentReplied, true, today),
		rec(20, domain.KindDeliveryAttempt, true, today),
		rec(20, domain.KindDMSent, false, today),
		rec(10, domain.KindDeliveryAttempt, true, today),
		rec(10, domain.KindDeliveryAttempt, true, today),
		rec(10, domain.KindDeliveryAttempt, true, today),
		rec(10, domain.KindDMSent, true, today),
		rec(99, domain.KindDMSent, true, today),
	}

	stats := PerAutomation(records, []AutomationRef{newer, idle, older})
	require.Len(t, stats, 3)

	assert.Equal(t, PerAutomationStat{
		AutomationID: "20", Name: "PRICE Comment",
		CommentsReplied: 1, DMsSent: 1, DeliveredCount: 2, EngagementPercent: 100,
	}, stats[0])
	assert.Equal(t, PerAutomationStat{
		AutomationID: "10", Name: "INFO DM",
		DMsSent: 1, DeliveredCount: 3, EngagementPercent: 33.3,
	}, stats[1])
	assert.Equal(t, PerAutomationStat{AutomationID: "30", Name: "LINK DM"}, stats[2])
}

func TestEngagementPercent(t *testing.T) {
	assert.Equal(t, 0.0, EngagementPercent(0, 0, 0))
	assert.Equal(t, 0.0, EngagementPercent(5, 5, 0))
	assert.Equal(t, 66.7, EngagementPercent(1, 1, 3))
	assert.Equal(t, 150.0, EngagementPercent(2, 1, 2))
}

func randomLog(r *rand.Rand, n int) []domain.Record {
	kinds := []domain.Kind{domain.KindCommentReplied, domain.KindDMSent, domain.KindDeliveryAttempt}
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = rec(
			snowflake.ID(1+r.Intn(3)),
			kinds[r.Intn(len(kinds))],
			r.Intn(4) != 0,
			today.Add(-time.Duration(r.Intn(240))*time.Hour),
		)
	}
	return out
}

func TestEngagementNeverNaNOrInf(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	refs := []AutomationRef{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	for i := 0; i < 200; i++ {
		for _, s := range PerAutomation(randomLog(r, r.Intn(30)), refs) {
			assert.False(t, math.IsNaN(s.EngagementPercent))
			assert.False(t, math.IsInf(s.EngagementPercent, 0))
			if s.DeliveredCount == 0 {
				assert.Equal(t, 0.0, s.EngagementPercent)
			}
		}
	}
}

func TestViewsAreIdempotent(t *testing.T) {
	log := randomLog(rand.New(rand.NewSource(42)), 500)
	refs := []AutomationRef{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}

	assert.Empty(t, cmp.Diff(Global(log), Global(log)))
	assert.Empty(t, cmp.Diff(PerAutomation(log, refs), PerAutomation(log, refs)))

	first, err := DailyActivity(log, today, 14, time.UTC)
	require.NoError(t, err)
	second, err := DailyActivity(log, today, 14, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(first, second))
}
