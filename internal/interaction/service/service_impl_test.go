package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/replyflow/internal/interaction/domain"
	"github.com/smallbiznis/replyflow/internal/interaction/liveevents"
	"github.com/smallbiznis/replyflow/internal/interaction/repository"
	"github.com/smallbiznis/replyflow/internal/userctx"
	"github.com/smallbiznis/replyflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var base = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (domain.Service, *liveevents.Hub, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection serializes writers on the shared in-memory database.
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	hub := liveevents.NewHub()
	svc := New(Params{
		Repo: repository.Provide(db),
		Log:  zap.NewNop(),
		Hub:  hub,
	})
	return svc, hub, node
}

func record(node *snowflake.Node, user snowflake.ID, kind domain.Kind, eventID string, at time.Time) domain.Record {
	return domain.Record{
		ID:             node.Generate(),
		UserID:         user,
		AutomationID:   500,
		Kind:           kind,
		Success:        true,
		OccurredAt:     at,
		IdempotencyKey: domain.IdempotencyKey(eventID, kind),
		CreatedAt:      at,
	}
}

func TestAppendSkipsDuplicateKeys(t *testing.T) {
	svc, hub, node := newTestService(t)
	ctx := context.Background()

	sub, _, err := hub.Subscribe("1")
	require.NoError(t, err)
	defer sub.Close()

	first := []domain.Record{
		record(node, 1, domain.KindDeliveryAttempt, "evt-1", base),
		record(node, 1, domain.KindDMSent, "evt-1", base),
	}
	inserted, err := svc.Append(ctx, first)
	require.NoError(t, err)
	assert.Len(t, inserted, 2)
	assert.Len(t, sub.Events(), 2)

	replay := []domain.Record{
		record(node, 1, domain.KindDeliveryAttempt, "evt-1", base),
		record(node, 1, domain.KindDMSent, "evt-1", base),
	}
	inserted, err = svc.Append(ctx, replay)
	require.NoError(t, err)
	assert.Empty(t, inserted)

	exists, err := svc.Exists(ctx, 1, "evt-1:DELIVERY_ATTEMPT")
	require.NoError(t, err)
	assert.True(t, exists)

	// Same event id for another user is a different key.
	inserted, err = svc.Append(ctx, []domain.Record{record(node, 2, domain.KindDeliveryAttempt, "evt-1", base)})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	history, err := svc.History(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAppendWithoutEventIDNeverDeduplicates(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		inserted, err := svc.Append(ctx, []domain.Record{record(node, 1, domain.KindDMSent, "", base)})
		require.NoError(t, err)
		assert.Len(t, inserted, 1)
	}
	history, err := svc.History(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestAppendRejectsInvalidRecords(t *testing.T) {
	svc, _, node := newTestService(t)
	bad := record(node, 1, "OPENED", "", base)
	_, err := svc.Append(context.Background(), []domain.Record{bad})
	assert.ErrorIs(t, err, domain.ErrInvalidRecord)
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Append(ctx, []domain.Record{
				record(node, 1, domain.KindDeliveryAttempt, fmt.Sprintf("evt-%d", i), base),
				record(node, 1, domain.KindDMSent, fmt.Sprintf("evt-%d", i), base),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := svc.History(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, history, 40)
}

func TestHistorySince(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, []domain.Record{
		record(node, 1, domain.KindDMSent, "", base.Add(-48*time.Hour)),
		record(node, 1, domain.KindDMSent, "", base),
	})
	require.NoError(t, err)

	since := base.Add(-time.Hour)
	history, err := svc.History(ctx, 1, &since)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].OccurredAt.Equal(base))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := userctx.WithUserID(context.Background(), 1)

	var records []domain.Record
	for i := 0; i < 5; i++ {
		records = append(records, record(node, 1, domain.KindDMSent, "", base.Add(time.Duration(i)*time.Minute)))
	}
	_, err := svc.Append(context.Background(), records)
	require.NoError(t, err)

	page, err := svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.Equal(t, records[4].ID, page.Records[0].ID)
	assert.Equal(t, records[3].ID, page.Records[1].ID)

	var seen []snowflake.ID
	token := page.PageInfo.NextPageToken
	for token != "" {
		next, err := svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: token}})
		require.NoError(t, err)
		for _, r := range next.Records {
			seen = append(seen, r.ID)
		}
		token = next.PageInfo.NextPageToken
	}
	assert.Equal(t, []snowflake.ID{records[2].ID, records[1].ID, records[0].ID}, seen)

	_, err = svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
