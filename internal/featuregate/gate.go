package featuregate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	PlanFree = "FREE"
	PlanPro  = "PRO"

	CapabilitySmartAI = "SMARTAI"
)

var ErrInvalidCatalog = errors.New("invalid_plan_catalog")

// Gate answers whether a plan unlocks a capability. The compiler and the
// dispatcher both consult the same instance.
type Gate interface {
	Allows(plan, capability string) bool
}

type Params struct {
	fx.In

	DB      *gorm.DB `optional:"true"`
	Catalog *config.PlanCatalogHolder
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type CasbinGate struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	adapter persist.Adapter

	mu       sync.Mutex
	enforcer atomic.Pointer[casbin.SyncedEnforcer]
}

// New seeds plan policies from the catalog and re-seeds them on every
// catalog reload. When a database is available the policies are also
// written to casbin_rule so operators can inspect them.
func New(p Params) (*CasbinGate, error) {
	var adapter persist.Adapter
	if p.DB != nil {
		a, err := gormadapter.NewAdapterByDB(p.DB)
		if err != nil {
			return nil, err
		}
		adapter = a
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	g := &CasbinGate{
		log:     log.Named("featuregate"),
		metrics: p.Metrics,
		adapter: adapter,
	}
	if err := g.Reload(p.Catalog.Get()); err != nil {
		return nil, err
	}

	p.Catalog.OnChange(func(catalog config.PlanCatalog) {
		if err := g.Reload(catalog); err != nil {
			g.log.Error("plan catalog reload rejected", zap.Error(err))
			return
		}
		g.log.Info("plan policies reloaded", zap.Int("plans", len(catalog.Plans)))
	})

	return g, nil
}

// NewStatic builds an in-memory gate for a fixed catalog.
func NewStatic(catalog config.PlanCatalog) (*CasbinGate, error) {
	g := &CasbinGate{log: zap.NewNop()}
	if err := g.Reload(catalog); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload swaps in a freshly built enforcer. Readers never observe a
// partially seeded policy set.
func (g *CasbinGate) Reload(catalog config.PlanCatalog) error {
	if err := config.ValidatePlanCatalog(catalog); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return err
	}
	enforcer.EnableAutoSave(false)

	for _, plan := range catalog.Plans {
		subject := planSubject(plan.Name)
		for _, capability := range plan.Capabilities {
			if _, err := enforcer.AddPolicy(subject, normalize(capability)); err != nil {
				return err
			}
		}
		for _, parent := range plan.Inherits {
			if _, err := enforcer.AddGroupingPolicy(subject, planSubject(parent)); err != nil {
				return err
			}
		}
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.adapter != nil {
		enforcer.SetAdapter(g.adapter)
		if err := enforcer.SavePolicy(); err != nil {
			return err
		}
	}
	g.enforcer.Store(enforcer)
	return nil
}

// Allows denies on any enforcement error.
func (g *CasbinGate) Allows(plan, capability string) bool {
	plan = normalize(plan)
	capability = normalize(capability)
	if plan == "" || capability == "" {
		return false
	}

	enforcer := g.enforcer.Load()
	if enforcer == nil {
		return false
	}

	allowed, err := enforcer.Enforce(planSubject(plan), capability)
	if err != nil {
		g.log.Warn("feature gate enforcement failed",
			zap.String("plan", plan),
			zap.String("capability", capability),
			zap.Error(err),
		)
		allowed = false
	}
	g.metrics.RecordGateDecision(context.Background(), plan, capability, allowed)
	return allowed
}

func planSubject(plan string) string {
	return "plan:" + normalize(plan)
}

func normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
