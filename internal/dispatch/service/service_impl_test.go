package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	automationdomain "github.com/smallbiznis/replyflow/internal/automation/domain"
	automationrepo "github.com/smallbiznis/replyflow/internal/automation/repository"
	automationservice "github.com/smallbiznis/replyflow/internal/automation/service"
	"github.com/smallbiznis/replyflow/internal/cache"
	"github.com/smallbiznis/replyflow/internal/clock"
	"github.com/smallbiznis/replyflow/internal/compiler"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/dispatch/domain"
	"github.com/smallbiznis/replyflow/internal/featuregate"
	interactiondomain "github.com/smallbiznis/replyflow/internal/interaction/domain"
	interactionrepo "github.com/smallbiznis/replyflow/internal/interaction/repository"
	interactionservice "github.com/smallbiznis/replyflow/internal/interaction/service"
	"github.com/smallbiznis/replyflow/internal/response"
	"github.com/smallbiznis/replyflow/internal/ruleindex"
	userdomain "github.com/smallbiznis/replyflow/internal/user/domain"
	userrepo "github.com/smallbiznis/replyflow/internal/user/repository"
	userservice "github.com/smallbiznis/replyflow/internal/user/service"
	"github.com/smallbiznis/replyflow/internal/userctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeResponder struct {
	mu      sync.Mutex
	inputs  []response.Input
	failAI  bool
	apology string
}

func (f *fakeResponder) Generate(_ context.Context, in response.Input) response.Output {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	if in.Listener.Kind != automationdomain.ListenerSmartAI {
		return response.Output{Text: in.Listener.Prompt, Kind: automationdomain.ListenerMessage, Success: true}
	}
	if f.failAI {
		return response.Output{Text: f.apology, Kind: automationdomain.ListenerSmartAI, Success: false, Attempts: 2}
	}
	return response.Output{Text: "AI: " + in.Message, Kind: automationdomain.ListenerSmartAI, Success: true, Attempts: 1}
}

func (f *fakeResponder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type failingInteractions struct {
	interactiondomain.Service
}

func (failingInteractions) Append(context.Context, []interactiondomain.Record) ([]interactiondomain.Record, error) {
	return nil, errors.New("disk full")
}

type fixture struct {
	t            *testing.T
	db           *gorm.DB
	clock        *clock.FakeClock
	users        userdomain.Service
	automations  automationdomain.Service
	interactions interactiondomain.Service
	index        *ruleindex.Index
	gate         featuregate.Gate
	node         *snowflake.Node
	responder    *fakeResponder
	svc          domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&automationdomain.Automation{},
		&automationdomain.Trigger{},
		&automationdomain.Keyword{},
		&automationdomain.Listener{},
		&automationdomain.PostScope{},
		&interactiondomain.Record{},
	))

	fake := clock.NewFakeClock(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))
	catalog := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	users := userservice.New(userservice.Params{
		Repo:    userrepo.Provide(db),
		Log:     zap.NewNop(),
		Clock:   fake,
		Cache:   cache.NewUserPlanCache(),
		Catalog: catalog,
	})
	gate, err := featuregate.NewStatic(catalog.Get())
	require.NoError(t, err)

	repo := automationrepo.Provide()
	index := ruleindex.NewWithTTL(ruleindex.NewGormSource(db, repo), zap.NewNop(), time.Minute)
	automations := automationservice.New(automationservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Compiler: compiler.NewRuleBased(),
		Gate:     gate,
		Users:    users,
		Index:    index,
		Clock:    fake,
	})
	interactions := interactionservice.New(interactionservice.Params{
		Repo: interactionrepo.Provide(db),
		Log:  zap.NewNop(),
	})

	f := &fixture{
		t:            t,
		db:           db,
		clock:        fake,
		users:        users,
		automations:  automations,
		interactions: interactions,
		index:        index,
		gate:         gate,
		node:         node,
		responder:    &fakeResponder{apology: "sorry"},
	}
	f.svc = f.service(interactions)
	return f
}

func (f *fixture) service(interactions interactiondomain.Service) domain.Service {
	return New(Params{
		Log:          zap.NewNop(),
		GenID:        f.node,
		Clock:        f.clock,
		Users:        f.users,
		Index:        f.index,
		Gate:         f.gate,
		Responder:    f.responder,
		Interactions: interactions,
	})
}

func (f *fixture) user(id snowflake.ID, plan string) context.Context {
	_, err := f.users.SetPlan(context.Background(), id, plan)
	require.NoError(f.t, err)
	return userctx.WithUserID(context.Background(), id)
}

func (f *fixture) create(ctx context.Context, prompt string) automationdomain.Automation {
	f.t.Helper()
	a, err := f.automations.Create(ctx, automationdomain.CompileRequest{Prompt: prompt})
	require.NoError(f.t, err)
	f.clock.Advance(time.Minute)
	return a
}

func (f *fixture) records(userID snowflake.ID) []interactiondomain.Record {
	f.t.Helper()
	records, err := f.interactions.History(context.Background(), userID, nil)
	require.NoError(f.t, err)
	return records
}

func kinds(records []interactiondomain.Record) []interactiondomain.Kind {
	out := make([]interactiondomain.Kind, 0, len(records))
	for _, r := range records {
		out = append(out, r.Kind)
	}
	return out
}

func TestDispatchDMMatchWritesAttemptAndDM(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	a := f.create(ctx, `send "Here is the menu" when someone DMs "MENU"`)

	result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{
		EventID: "evt-1", UserID: 1, TriggerType: "dm", Text: "can I see the menu?",
	})
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, a.ID.String(), result.AutomationID)
	assert.Equal(t, "MENU", result.MatchedKeyword)
	assert.Equal(t, automationdomain.ListenerMessage, result.ResponseKind)
	assert.Equal(t, "Here is the menu", result.ResponseText)
	assert.True(t, result.Success)

	records := f.records(1)
	assert.ElementsMatch(t, []interactiondomain.Kind{interactiondomain.KindDeliveryAttempt, interactiondomain.KindDMSent}, kinds(records))
	for _, r := range records {
		assert.Equal(t, a.ID, r.AutomationID)
		assert.True(t, r.Success)
	}
}

func TestDispatchNoMatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	f.create(ctx, `send "Here is the menu" when someone DMs "MENU"`)

	for _, event := range []domain.InboundEvent{
		{UserID: 1, TriggerType: automationdomain.TriggerDM, Text: "hello there"},
		{UserID: 1, TriggerType: automationdomain.TriggerComment, Text: "menu please"},
	} {
		result, err := f.svc.Dispatch(context.Background(), event)
		require.NoError(t, err)
		assert.False(t, result.Matched)
		assert.Equal(t, domain.ReasonNoMatch, result.Reason)
	}
	assert.Empty(t, f.records(1))
	assert.Zero(t, f.responder.calls())
}

func TestDispatchUnknownUserIsDropped(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 404, TriggerType: automationdomain.TriggerDM, Text: "INFO"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Equal(t, domain.ReasonUserNotFound, result.Reason)
}

func TestDispatchRejectsInvalidEvent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 1, TriggerType: "STORY"})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	_, err = f.svc.Dispatch(context.Background(), domain.InboundEvent{TriggerType: automationdomain.TriggerDM})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestDispatchTieBreakIsDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	f.create(ctx, `When someone comments "SALE" reply "older rule"`)
	newer := f.create(ctx, `When someone comments "SALE" reply "newer rule"`)

	for i := 0; i < 5; i++ {
		result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{
			UserID: 1, TriggerType: automationdomain.TriggerComment, Text: "is the sale on?",
		})
		require.NoError(t, err)
		assert.Equal(t, newer.ID.String(), result.AutomationID)
		assert.Equal(t, "newer rule", result.ResponseText)
	}
}

func TestDispatchPriorityBeatsRecency(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	older := f.create(ctx, `When someone comments "SALE" reply "older rule"`)
	f.create(ctx, `When someone comments "SALE" reply "newer rule"`)

	_, err := f.automations.SetPriority(ctx, older.ID.String(), 10)
	require.NoError(t, err)

	result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{
		UserID: 1, TriggerType: automationdomain.TriggerComment, Text: "SALE?",
	})
	require.NoError(t, err)
	assert.Equal(t, older.ID.String(), result.AutomationID)
}

func TestDispatchCommentWithCommentReply(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	f.create(ctx, `When someone comments "LINK" send "https://shop.example"`)

	result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{
		EventID: "c-1", UserID: 1, TriggerType: automationdomain.TriggerComment, Text: "link pls", PostID: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example", result.ResponseText)
	assert.Equal(t, compiler.DefaultCommentReply, result.CommentReply)

	assert.ElementsMatch(t, []interactiondomain.Kind{
		interactiondomain.KindDeliveryAttempt,
		interactiondomain.KindDMSent,
		interactiondomain.KindCommentReplied,
	}, kinds(f.records(1)))
}

func TestDispatchHonoursPostScope(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	a := f.create(ctx, `When someone comments "LINK" send "here"`)
	_, err := f.automations.AddPostScope(ctx, a.ID.String(), "p1")
	require.NoError(t, err)

	result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 1, TriggerType: automationdomain.TriggerComment, Text: "link", PostID: "p2"})
	require.NoError(t, err)
	assert.False(t, result.Matched)

	result, err = f.svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 1, TriggerType: automationdomain.TriggerComment, Text: "link", PostID: "p1"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
}

func TestDispatchDowngradedPlanSendsListenerPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "PRO")
	a := f.create(ctx, `Use smart AI to answer questions about "PRICING" when someone messages us`)
	require.Equal(t, automationdomain.ListenerSmartAI, a.Listener.Kind)

	result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 1, TriggerType: automationdomain.TriggerDM, Text: "what is your pricing?", Context: []domain.ContextTurn{{FromSender: true, Text: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, automationdomain.ListenerSmartAI, result.ResponseKind)
	assert.Equal(t, "AI: what is your pricing?", result.ResponseText)
	require.Len(t, f.responder.inputs, 1)
	assert.Equal(t, []response.Turn{{Role: response.RoleUser, Text: "hi"}}, f.responder.inputs[0].History)

	_, err = f.users.SetPlan(context.Background(), 1, "FREE")
	require.NoError(t, err)

	result, err = f.svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 1, TriggerType: automationdomain.TriggerDM, Text: "pricing"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.True(t, result.Downgraded)
	assert.True(t, result.Success)
	assert.Equal(t, automationdomain.ListenerMessage, result.ResponseKind)
	assert.Equal(t, a.Listener.Prompt, result.ResponseText)
}

func TestDispatchAIFailureRecordsUnsuccessfulDelivery(t *testing.T) {
	f := newFixture(t)
	f.responder.failAI = true
	ctx := f.user(1, "PRO")
	f.create(ctx, `Use smart AI to answer questions about "PRICING" when someone messages us`)

	result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 1, TriggerType: automationdomain.TriggerDM, Text: "pricing?"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "sorry", result.ResponseText)

	for _, r := range f.records(1) {
		assert.False(t, r.Success)
	}
}

func TestDispatchDuplicateEventWritesNothingNew(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	f.create(ctx, `send "menu" when someone DMs "MENU"`)
	event := domain.InboundEvent{EventID: "wh-9", UserID: 1, TriggerType: automationdomain.TriggerDM, Text: "menu"}

	first, err := f.svc.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.svc.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, second.Matched)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.AutomationID, second.AutomationID)

	assert.Len(t, f.records(1), 2)
	assert.Equal(t, 1, f.responder.calls())
}

func TestConcurrentDispatchesAppendWithoutLoss(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	f.create(ctx, `send "menu" when someone DMs "MENU"`)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.Dispatch(context.Background(), domain.InboundEvent{
				EventID: fmt.Sprintf("evt-%d", i), UserID: 1, TriggerType: automationdomain.TriggerDM, Text: "menu",
			})
			assert.NoError(t, err)
			assert.True(t, result.Matched)
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.records(1), 24)
}

func TestDispatchPersistenceFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := f.user(1, "FREE")
	f.create(ctx, `send "menu" when someone DMs "MENU"`)

	svc := f.service(failingInteractions{Service: f.interactions})
	_, err := svc.Dispatch(context.Background(), domain.InboundEvent{UserID: 1, TriggerType: automationdomain.TriggerDM, Text: "menu"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}
