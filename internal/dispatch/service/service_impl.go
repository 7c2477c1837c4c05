package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	automationdomain "github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/smallbiznis/replyflow/internal/clock"
	"github.com/smallbiznis/replyflow/internal/dispatch/domain"
	"github.com/smallbiznis/replyflow/internal/featuregate"
	interactiondomain "github.com/smallbiznis/replyflow/internal/interaction/domain"
	obscontext "github.com/smallbiznis/replyflow/internal/observability/context"
	"github.com/smallbiznis/replyflow/internal/observability/logger"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"github.com/smallbiznis/replyflow/internal/observability/tracing"
	"github.com/smallbiznis/replyflow/internal/response"
	"github.com/smallbiznis/replyflow/internal/ruleindex"
	userdomain "github.com/smallbiznis/replyflow/internal/user/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// CandidateSource is the read side of the rule index.
type CandidateSource interface {
	Candidates(ctx context.Context, userID snowflake.ID, trigger automationdomain.TriggerType) ([]ruleindex.Rule, error)
}

type Responder interface {
	Generate(ctx context.Context, in response.Input) response.Output
}

type Params struct {
	fx.In

	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Users        userdomain.Service
	Index        CandidateSource
	Gate         featuregate.Gate
	Responder    Responder
	Interactions interactiondomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	users        userdomain.Service
	index        CandidateSource
	gate         featuregate.Gate
	responder    Responder
	interactions interactiondomain.Service
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("dispatch.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		users:        p.Users,
		index:        p.Index,
		gate:         p.Gate,
		responder:    p.Responder,
		interactions: p.Interactions,
		metrics:      p.Metrics,
		tracer:       otel.Tracer("replyflow/dispatch"),
	}
}

func (s *Service) Dispatch(ctx context.Context, event domain.InboundEvent) (domain.DispatchResult, error) {
	event.TriggerType = automationdomain.TriggerType(strings.ToUpper(strings.TrimSpace(string(event.TriggerType))))
	event.EventID = strings.TrimSpace(event.EventID)
	if event.UserID <= 0 || !event.TriggerType.Valid() {
		return domain.DispatchResult{}, domain.ErrInvalidEvent
	}

	ctx = obscontext.WithUserID(ctx, event.UserID.String())
	if event.EventID != "" {
		ctx = obscontext.WithEventID(ctx, event.EventID)
	}
	ctx, span := s.tracer.Start(ctx, "dispatch.event", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("trigger", string(event.TriggerType)),
		attribute.Bool("has_post", event.PostID != ""),
		attribute.Bool("has_event_id", event.EventID != ""),
	)...))
	defer span.End()

	result, outcome, err := s.dispatch(ctx, event)
	s.metrics.RecordDispatch(ctx, string(event.TriggerType), outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, tracing.SafeError(err).Error())
		return domain.DispatchResult{}, err
	}
	return result, nil
}

func (s *Service) dispatch(ctx context.Context, event domain.InboundEvent) (domain.DispatchResult, string, error) {
	log := logger.WithContext(ctx, s.log)

	plan, err := s.users.ResolvePlan(ctx, event.UserID)
	if errors.Is(err, userdomain.ErrNotFound) {
		log.Info("event dropped, user not found")
		return domain.DispatchResult{Reason: domain.ReasonUserNotFound}, outcomeUnmatched, nil
	}
	if err != nil {
		log.Error("resolve plan failed", zap.Error(err))
		return domain.DispatchResult{}, outcomeFailed, fmt.Errorf("%w: resolve plan: %v", domain.ErrPersistence, err)
	}

	rules, err := s.index.Candidates(ctx, event.UserID, event.TriggerType)
	if err != nil {
		log.Error("load candidate rules failed", zap.Error(err))
		return domain.DispatchResult{}, outcomeFailed, fmt.Errorf("%w: load rules: %v", domain.ErrPersistence, err)
	}

	rule, keyword, ok := match(rules, event)
	if !ok {
		log.Debug("no automation matched", zap.Int("candidates", len(rules)))
		return domain.DispatchResult{Reason: domain.ReasonNoMatch}, outcomeUnmatched, nil
	}
	log = log.With(zap.String("automation_id", rule.AutomationID.String()))

	attemptKey := interactiondomain.IdempotencyKey(event.EventID, interactiondomain.KindDeliveryAttempt)
	if attemptKey != nil {
		seen, err := s.interactions.Exists(ctx, event.UserID, *attemptKey)
		if err != nil {
			log.Error("idempotency lookup failed", zap.Error(err))
			return domain.DispatchResult{}, outcomeFailed, fmt.Errorf("%w: idempotency lookup: %v", domain.ErrPersistence, err)
		}
		if seen {
			log.Info("duplicate event ignored")
			return duplicateResult(rule, keyword), outcomeDuplicate, nil
		}
	}

	listener := rule.Listener
	downgraded := false
	if listener.Kind == automationdomain.ListenerSmartAI && !s.gate.Allows(plan, featuregate.CapabilitySmartAI) {
		listener.Kind = automationdomain.ListenerMessage
		downgraded = true
		log.Warn("smartai not allowed for plan, sending listener prompt", zap.String("plan", plan))
	}

	out := s.responder.Generate(ctx, response.Input{
		UserID:   event.UserID.String(),
		Listener: listener,
		Message:  event.Text,
		History:  historyOf(event.Context),
	})
	if !out.Success {
		log.Warn("reply degraded to fallback text", zap.Int("attempts", out.Attempts))
	}

	records := s.buildRecords(event, rule, keyword, listener, out, downgraded)
	inserted, err := s.interactions.Append(ctx, records)
	if err != nil {
		log.Error("append interaction records failed", zap.Error(err))
		return domain.DispatchResult{}, outcomeFailed, fmt.Errorf("%w: append records: %v", domain.ErrPersistence, err)
	}
	if len(inserted) == 0 && attemptKey != nil {
		// A concurrent delivery of the same event won the insert.
		log.Info("duplicate event detected on append")
		return duplicateResult(rule, keyword), outcomeDuplicate, nil
	}

	result := domain.DispatchResult{
		Matched:        true,
		AutomationID:   rule.AutomationID.String(),
		MatchedKeyword: keyword,
		ResponseKind:   listener.Kind,
		ResponseText:   out.Text,
		Downgraded:     downgraded,
		Success:        out.Success,
	}
	if event.TriggerType == automationdomain.TriggerComment {
		result.CommentReply = listener.CommentReply
	}
	log.Info("event dispatched",
		zap.String("response_kind", string(listener.Kind)),
		zap.Bool("success", out.Success),
		zap.Int("records", len(inserted)),
	)
	return result, outcomeMatched, nil
}

// match returns the first rule, in index order, whose post scope and
// keywords accept the event.
func match(rules []ruleindex.Rule, event domain.InboundEvent) (ruleindex.Rule, string, bool) {
	text := ruleindex.NormalizeText(event.Text)
	for _, rule := range rules {
		if !rule.HasTrigger(event.TriggerType) || !rule.AppliesToPost(event.PostID) {
			continue
		}
		if keyword, ok := rule.MatchKeyword(text); ok {
			return rule, keyword, true
		}
	}
	return ruleindex.Rule{}, "", false
}

func duplicateResult(rule ruleindex.Rule, keyword string) domain.DispatchResult {
	return domain.DispatchResult{
		Matched:        true,
		Duplicate:      true,
		Reason:         domain.ReasonDuplicate,
		AutomationID:   rule.AutomationID.String(),
		MatchedKeyword: keyword,
		Success:        true,
	}
}

// buildRecords writes one delivery attempt plus one record per effect. A
// COMMENT with a commentReply answers privately by DM and acknowledges
// publicly; without one the reply itself is the public comment.
func (s *Service) buildRecords(event domain.InboundEvent, rule ruleindex.Rule, keyword string, listener automationdomain.ListenerSpec, out response.Output, downgraded bool) []interactiondomain.Record {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	occurredAt = occurredAt.UTC()
	now := s.clock.Now()

	metadata := map[string]interface{}{
		"trigger":       string(event.TriggerType),
		"keyword":       keyword,
		"response_kind": string(listener.Kind),
	}
	if event.EventID != "" {
		metadata["event_id"] = event.EventID
	}
	if event.PostID != "" {
		metadata["post_id"] = event.PostID
	}
	if downgraded {
		metadata["downgraded"] = true
	}

	newRecord := func(kind interactiondomain.Kind, success bool) interactiondomain.Record {
		return interactiondomain.Record{
			ID:             s.genID.Generate(),
			UserID:         event.UserID,
			AutomationID:   rule.AutomationID,
			Kind:           kind,
			Success:        success,
			OccurredAt:     occurredAt,
			IdempotencyKey: interactiondomain.IdempotencyKey(event.EventID, kind),
			Metadata:       metadata,
			CreatedAt:      now,
		}
	}

	records := []interactiondomain.Record{newRecord(interactiondomain.KindDeliveryAttempt, out.Success)}
	switch {
	case event.TriggerType == automationdomain.TriggerDM:
		records = append(records, newRecord(interactiondomain.KindDMSent, out.Success))
	case listener.CommentReply != "":
		records = append(records,
			newRecord(interactiondomain.KindDMSent, out.Success),
			newRecord(interactiondomain.KindCommentReplied, true),
		)
	default:
		records = append(records, newRecord(interactiondomain.KindCommentReplied, out.Success))
	}
	return records
}

func historyOf(turns []domain.ContextTurn) []response.Turn {
	if len(turns) == 0 {
		return nil
	}
	history := make([]response.Turn, 0, len(turns))
	for _, turn := range turns {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := response.RoleAssistant
		if turn.FromSender {
			role = response.RoleUser
		}
		history = append(history, response.Turn{Role: role, Text: text})
	}
	return history
}
