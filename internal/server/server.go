package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/replyflow/internal/analytics"
	automationdomain "github.com/smallbiznis/replyflow/internal/automation/domain"
	"github.com/smallbiznis/replyflow/internal/config"
	dispatchdomain "github.com/smallbiznis/replyflow/internal/dispatch/domain"
	interactiondomain "github.com/smallbiznis/replyflow/internal/interaction/domain"
	"github.com/smallbiznis/replyflow/internal/interaction/liveevents"
	"github.com/smallbiznis/replyflow/internal/observability"
	obslogger "github.com/smallbiznis/replyflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/replyflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/replyflow/internal/observability/tracing"
	userdomain "github.com/smallbiznis/replyflow/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(
		NewServer,
		func(a *analytics.Service) AnalyticsService { return a },
	),
	fx.Invoke(run),
)

// AnalyticsService is the dashboard read side used by the analytics routes.
type AnalyticsService interface {
	DailyActivity(ctx context.Context, days int) ([]analytics.DailyActivityPoint, error)
	GlobalStats(ctx context.Context) (analytics.GlobalStats, error)
	PerAutomationStats(ctx context.Context) ([]analytics.PerAutomationStat, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	log            *zap.Logger
	automationSvc  automationdomain.Service
	dispatchSvc    dispatchdomain.Service
	interactionSvc interactiondomain.Service
	userSvc        userdomain.Service
	analyticsSvc   AnalyticsService
	liveEvents     *liveevents.Hub
	httpMetrics    *obsmetrics.HTTPMetrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Log            *zap.Logger
	AutomationSvc  automationdomain.Service
	DispatchSvc    dispatchdomain.Service
	InteractionSvc interactiondomain.Service
	UserSvc        userdomain.Service
	AnalyticsSvc   AnalyticsService
	LiveEvents     *liveevents.Hub           `optional:"true"`
	HTTPMetrics    *obsmetrics.HTTPMetrics   `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		log:            p.Log.Named("http.server"),
		automationSvc:  p.AutomationSvc,
		dispatchSvc:    p.DispatchSvc,
		interactionSvc: p.InteractionSvc,
		userSvc:        p.UserSvc,
		analyticsSvc:   p.AnalyticsSvc,
		liveEvents:     p.LiveEvents,
		httpMetrics:    p.HTTPMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerIntegrationRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerAPIRoutes wires the dashboard routes. Every one of them acts on
// behalf of the user named in X-User-Id.
func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.UserContext())

	// -------- Automations --------
	api.POST("/automations/compile", s.CompileAutomation)
	api.POST("/automations", s.CreateAutomation)
	api.GET("/automations", s.ListAutomations)
	api.GET("/automations/:id", s.GetAutomation)
	api.DELETE("/automations/:id", s.DeleteAutomation)
	api.POST("/automations/:id/triggers", s.AddTrigger)
	api.POST("/automations/:id/keywords", s.AddKeyword)
	api.DELETE("/automations/:id/keywords/:keyword", s.RemoveKeyword)
	api.PUT("/automations/:id/listener", s.UpdateListener)
	api.PUT("/automations/:id/priority", s.SetPriority)
	api.POST("/automations/:id/posts", s.AddPostScope)

	// -------- Analytics --------
	api.GET("/analytics/daily", s.GetDailyActivity)
	api.GET("/analytics/global", s.GetGlobalStats)
	api.GET("/analytics/automations", s.GetPerAutomationStats)

	// -------- Interactions --------
	api.GET("/interactions", s.ListInteractions)
	api.GET("/interactions/stream", s.StreamInteractions)
}

// registerIntegrationRoutes wires the collaborator-facing routes: the
// webhook relay and the billing plan sync. They carry their own user ids.
func (s *Server) registerIntegrationRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/events", s.DispatchEvent)
	v1.PUT("/users/:id/plan", s.SetUserPlan)
}
