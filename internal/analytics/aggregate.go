// Package analytics derives read views from the interaction log. Every view
// is recomputed from the records passed in; nothing is stored.
package analytics

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/interaction/domain"
)

const dateLayout = "2006-01-02"

// MaxDays bounds the daily activity window.
const MaxDays = 366

var ErrInvalidDays = errors.New("invalid_days")

type DailyActivityPoint struct {
	Date            string `json:"date"`
	CommentsReplied int    `json:"comments_replied"`
	DMsSent         int    `json:"dms_sent"`
	DeliveredCount  int    `json:"delivered_count"`
}

type GlobalStats struct {
	TotalCommentsReplied int `json:"total_comments_replied"`
	TotalDMsSent         int `json:"total_dms_sent"`
}

type PerAutomationStat struct {
	AutomationID      string  `json:"automation_id"`
	Name              string  `json:"name"`
	CommentsReplied   int     `json:"comments_replied"`
	DMsSent           int     `json:"dms_sent"`
	DeliveredCount    int     `json:"delivered_count"`
	EngagementPercent float64 `json:"engagement_percent"`
}

type AutomationRef struct {
	ID        snowflake.ID
	Name      string
	CreatedAt time.Time
}

// DailyActivity returns exactly days points for [today-days+1, today] in
// ascending order, where days are calendar days in loc.
func DailyActivity(records []domain.Record, today time.Time, days int, loc *time.Location) ([]DailyActivityPoint, error) {
	if days <= 0 || days > MaxDays {
		return nil, ErrInvalidDays
	}
	if loc == nil {
		loc = time.UTC
	}

	start := WindowStart(today, days, loc)
	points := make([]DailyActivityPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		date := start.AddDate(0, 0, i).Format(dateLayout)
		points[i].Date = date
		index[date] = i
	}

	for _, r := range records {
		i, ok := index[r.OccurredAt.In(loc).Format(dateLayout)]
		if !ok {
			continue
		}
		switch r.Kind {
		case domain.KindDeliveryAttempt:
			// attempts count whether or not the reply went out
			points[i].DeliveredCount++
		case domain.KindCommentReplied:
			if r.Success {
				points[i].CommentsReplied++
			}
		case domain.KindDMSent:
			if r.Success {
				points[i].DMsSent++
			}
		}
	}
	return points, nil
}

// WindowStart is midnight in loc of the first day of a days-long window
// ending today.
func WindowStart(today time.Time, days int, loc *time.Location) time.Time {
	local := today.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -(days - 1))
}

func Global(records []domain.Record) GlobalStats {
	var stats GlobalStats
	for _, r := range records {
		if !r.Success {
			continue
		}
		switch r.Kind {
		case domain.KindCommentReplied:
			stats.TotalCommentsReplied++
		case domain.KindDMSent:
			stats.TotalDMsSent++
		}
	}
	return stats
}

// PerAutomation reports one entry per automation, oldest first. Records of
// automations not in the list are ignored.
func PerAutomation(records []domain.Record, automations []AutomationRef) []PerAutomationStat {
	ordered := append([]AutomationRef(nil), automations...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	stats := make([]PerAutomationStat, len(ordered))
	index := make(map[snowflake.ID]int, len(ordered))
	for i, a := range ordered {
		stats[i] = PerAutomationStat{AutomationID: a.ID.String(), Name: a.Name}
		index[a.ID] = i
	}

	for _, r := range records {
		i, ok := index[r.AutomationID]
		if !ok {
			continue
		}
		switch r.Kind {
		case domain.KindDeliveryAttempt:
			stats[i].DeliveredCount++
		case domain.KindCommentReplied:
			if r.Success {
				stats[i].CommentsReplied++
			}
		case domain.KindDMSent:
			if r.Success {
				stats[i].DMsSent++
			}
		}
	}

	for i := range stats {
		stats[i].EngagementPercent = EngagementPercent(stats[i].CommentsReplied, stats[i].DMsSent, stats[i].DeliveredCount)
	}
	return stats
}

// EngagementPercent is (comments+dms)/delivered*100 rounded to one decimal,
// and 0 when nothing was delivered.
func EngagementPercent(comments, dms, delivered int) float64 {
	if delivered <= 0 {
		return 0
	}
	raw := float64(comments+dms) / float64(delivered) * 100
	return math.Round(raw*10) / 10
}
