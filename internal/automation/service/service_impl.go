package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/smallbiznis/replyflow/internal/clock"
	"github.com/smallbiznis/replyflow/internal/compiler"
	"github.com/smallbiznis/replyflow/internal/featuregate"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"github.com/smallbiznis/replyflow/internal/ruleindex"
	userdomain "github.com/smallbiznis/replyflow/internal/user/domain"
	"github.com/smallbiznis/replyflow/internal/userctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxPostIDLength = 128

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Compiler compiler.Compiler
	Gate     featuregate.Gate
	Users    userdomain.Service
	Index    ruleindex.Invalidator
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	compiler compiler.Compiler
	gate     featuregate.Gate
	users    userdomain.Service
	index    ruleindex.Invalidator
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("automation.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		compiler: p.Compiler,
		gate:     p.Gate,
		users:    p.Users,
		index:    p.Index,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}
}

func (s *Service) Preview(ctx context.Context, req domain.CompileRequest) (domain.AutomationSpec, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return domain.AutomationSpec{}, domain.ErrInvalidUser
	}
	return s.compile(ctx, userID, req.Prompt)
}

func (s *Service) Create(ctx context.Context, req domain.CompileRequest) (domain.Automation, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return domain.Automation{}, domain.ErrInvalidUser
	}

	spec, err := s.compile(ctx, userID, req.Prompt)
	if err != nil {
		return domain.Automation{}, err
	}

	automation := s.buildAutomation(userID, strings.TrimSpace(req.Prompt), spec)
	if err := s.repo.Insert(ctx, s.db, &automation); err != nil {
		return domain.Automation{}, err
	}
	s.index.Invalidate(userID)

	s.log.Info("automation created",
		zap.String("user_id", userID.String()),
		zap.String("automation_id", automation.ID.String()),
		zap.String("listener", string(spec.Listener.Kind)),
		zap.Strings("keywords", spec.Keywords),
	)
	return automation, nil
}

func (s *Service) compile(ctx context.Context, userID snowflake.ID, prompt string) (domain.AutomationSpec, error) {
	prompt = strings.TrimSpace(prompt)

	plan, err := s.users.ResolvePlan(ctx, userID)
	if err != nil {
		return domain.AutomationSpec{}, err
	}
	isPro := s.gate.Allows(plan, featuregate.CapabilitySmartAI)

	spec := s.compiler.Compile(ctx, prompt, isPro)
	s.metrics.RecordCompile(ctx, s.compiler.Name(), string(spec.Listener.Kind))
	return spec, nil
}

func (s *Service) buildAutomation(userID snowflake.ID, prompt string, spec domain.AutomationSpec) domain.Automation {
	now := s.clock.Now()
	id := s.genID.Generate()

	automation := domain.Automation{
		ID:        id,
		UserID:    userID,
		Name:      spec.Name,
		Handle:    slug.Make(spec.Name),
		Prompt:    prompt,
		CreatedAt: now,
		UpdatedAt: now,
		Listener: &domain.Listener{
			ID:           s.genID.Generate(),
			AutomationID: id,
			Kind:         spec.Listener.Kind,
			Prompt:       spec.Listener.Prompt,
			CommentReply: spec.Listener.CommentReply,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
	for _, t := range spec.Triggers {
		automation.Triggers = append(automation.Triggers, domain.Trigger{
			ID:           s.genID.Generate(),
			AutomationID: id,
			Type:         t,
			CreatedAt:    now,
		})
	}
	for _, k := range spec.Keywords {
		automation.Keywords = append(automation.Keywords, domain.Keyword{
			ID:           s.genID.Generate(),
			AutomationID: id,
			Word:         k,
			CreatedAt:    now,
		})
	}
	return automation
}

func (s *Service) Get(ctx context.Context, id string) (domain.Automation, error) {
	userID, automationID, err := s.identify(ctx, id)
	if err != nil {
		return domain.Automation{}, err
	}
	return s.load(ctx, s.db, userID, automationID)
}

func (s *Service) List(ctx context.Context) ([]domain.Automation, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidUser
	}
	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Automation{}
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	userID, automationID, err := s.identify(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, s.db, userID, automationID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.index.Invalidate(userID)
	s.log.Info("automation deleted",
		zap.String("user_id", userID.String()),
		zap.String("automation_id", automationID.String()),
	)
	return nil
}

func (s *Service) AddTrigger(ctx context.Context, id string, trigger domain.TriggerType) (domain.Automation, error) {
	trigger = domain.TriggerType(strings.ToUpper(strings.TrimSpace(string(trigger))))
	if !trigger.Valid() {
		return domain.Automation{}, domain.ErrInvalidTrigger
	}
	return s.mutate(ctx, id, func(tx *gorm.DB, a domain.Automation) error {
		return s.repo.AddTrigger(ctx, tx, &domain.Trigger{
			ID:           s.genID.Generate(),
			AutomationID: a.ID,
			Type:         trigger,
			CreatedAt:    s.clock.Now(),
		})
	})
}

func (s *Service) AddKeyword(ctx context.Context, id string, word string) (domain.Automation, error) {
	word = compiler.NormalizeKeyword(word)
	if word == "" {
		return domain.Automation{}, domain.ErrInvalidKeyword
	}
	return s.mutate(ctx, id, func(tx *gorm.DB, a domain.Automation) error {
		return s.repo.AddKeyword(ctx, tx, &domain.Keyword{
			ID:           s.genID.Generate(),
			AutomationID: a.ID,
			Word:         word,
			CreatedAt:    s.clock.Now(),
		})
	})
}

// RemoveKeyword refuses to drop the last keyword of an automation.
func (s *Service) RemoveKeyword(ctx context.Context, id string, word string) (domain.Automation, error) {
	word = compiler.NormalizeKeyword(word)
	if word == "" {
		return domain.Automation{}, domain.ErrInvalidKeyword
	}
	return s.mutate(ctx, id, func(tx *gorm.DB, a domain.Automation) error {
		count, err := s.repo.CountKeywords(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if !hasKeyword(a, word) {
			return domain.ErrInvalidKeyword
		}
		if count <= 1 {
			return domain.ErrLastKeyword
		}
		_, err = s.repo.RemoveKeyword(ctx, tx, a.ID, word)
		return err
	})
}

func (s *Service) UpdateListener(ctx context.Context, id string, req domain.UpdateListenerRequest) (domain.Automation, error) {
	kind := domain.ListenerKind(strings.ToUpper(strings.TrimSpace(string(req.Kind))))
	prompt := strings.TrimSpace(req.Prompt)
	if !kind.Valid() || prompt == "" {
		return domain.Automation{}, domain.ErrInvalidListener
	}

	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return domain.Automation{}, domain.ErrInvalidUser
	}
	if kind == domain.ListenerSmartAI {
		plan, err := s.users.ResolvePlan(ctx, userID)
		if err != nil {
			return domain.Automation{}, err
		}
		if !s.gate.Allows(plan, featuregate.CapabilitySmartAI) {
			return domain.Automation{}, domain.ErrSmartAINotAllowed
		}
	}

	return s.mutate(ctx, id, func(tx *gorm.DB, a domain.Automation) error {
		commentReply := strings.TrimSpace(req.CommentReply)
		if !a.HasTrigger(domain.TriggerComment) {
			commentReply = ""
		}
		listener := &domain.Listener{
			ID:           s.genID.Generate(),
			AutomationID: a.ID,
			Kind:         kind,
			Prompt:       prompt,
			CommentReply: commentReply,
			CreatedAt:    s.clock.Now(),
			UpdatedAt:    s.clock.Now(),
		}
		if a.Listener == nil {
			return s.repo.AddListener(ctx, tx, listener)
		}
		return s.repo.UpdateListener(ctx, tx, listener)
	})
}

func (s *Service) SetPriority(ctx context.Context, id string, priority int) (domain.Automation, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, a domain.Automation) error {
		return s.repo.SetPriority(ctx, tx, a.ID, priority)
	})
}

func (s *Service) AddPostScope(ctx context.Context, id string, postID string) (domain.Automation, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" || len(postID) > maxPostIDLength {
		return domain.Automation{}, domain.ErrInvalidPostID
	}
	return s.mutate(ctx, id, func(tx *gorm.DB, a domain.Automation) error {
		return s.repo.AddPostScope(ctx, tx, &domain.PostScope{
			ID:           s.genID.Generate(),
			AutomationID: a.ID,
			PostID:       postID,
			CreatedAt:    s.clock.Now(),
		})
	})
}

// mutate runs fn in a transaction against the caller's automation, then
// invalidates the rule index and returns the reloaded automation.
func (s *Service) mutate(ctx context.Context, id string, fn func(tx *gorm.DB, a domain.Automation) error) (domain.Automation, error) {
	userID, automationID, err := s.identify(ctx, id)
	if err != nil {
		return domain.Automation{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, userID, automationID)
		if err != nil {
			return err
		}
		if err := fn(tx, current); err != nil {
			return err
		}
		return s.repo.Touch(ctx, tx, automationID)
	})
	if err != nil {
		if !isDomainErr(err) {
			s.log.Error("automation update failed",
				zap.String("automation_id", automationID.String()),
				zap.Error(err),
			)
		}
		return domain.Automation{}, err
	}
	s.index.Invalidate(userID)

	return s.load(ctx, s.db, userID, automationID)
}

func (s *Service) load(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (domain.Automation, error) {
	automation, err := s.repo.FindByID(ctx, db, userID, id)
	if err != nil {
		return domain.Automation{}, err
	}
	if automation == nil {
		return domain.Automation{}, domain.ErrNotFound
	}
	return *automation, nil
}

func (s *Service) identify(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	userID, ok := userctx.UserIDFromContext(ctx)
	if !ok {
		return 0, 0, domain.ErrInvalidUser
	}
	automationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || automationID <= 0 {
		return 0, 0, domain.ErrInvalidID
	}
	return userID, automationID, nil
}

func hasKeyword(a domain.Automation, word string) bool {
	for _, k := range a.Keywords {
		if k.Word == word {
			return true
		}
	}
	return false
}

func isDomainErr(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidKeyword,
		domain.ErrLastKeyword,
		domain.ErrInvalidListener,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
