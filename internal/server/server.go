package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/changespage/changespage/internal/billing"
	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	"github.com/changespage/changespage/internal/cache"
	"github.com/changespage/changespage/internal/config"
	"github.com/changespage/changespage/internal/jobs"
	jobsdomain "github.com/changespage/changespage/internal/jobs/domain"
	"github.com/changespage/changespage/internal/notification"
	"github.com/changespage/changespage/internal/observability"
	obsmiddleware "github.com/changespage/changespage/internal/observability/logger"
	obsmetrics "github.com/changespage/changespage/internal/observability/metrics"
	obstracing "github.com/changespage/changespage/internal/observability/tracing"
	"github.com/changespage/changespage/internal/page"
	pagedomain "github.com/changespage/changespage/internal/page/domain"
	"github.com/changespage/changespage/internal/pagesettings"
	settingsdomain "github.com/changespage/changespage/internal/pagesettings/domain"
	"github.com/changespage/changespage/internal/post"
	postdomain "github.com/changespage/changespage/internal/post/domain"
	"github.com/changespage/changespage/internal/providers/email"
	"github.com/changespage/changespage/internal/ratelimit"
	"github.com/changespage/changespage/internal/storage"
	"github.com/changespage/changespage/internal/subscriber"
	subscriberdomain "github.com/changespage/changespage/internal/subscriber/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	page.Module,
	pagesettings.Module,
	post.Module,
	subscriber.Module,
	billing.Module,
	email.Module,
	storage.Module,
	cache.Module,
	ratelimit.Module,
	jobs.Module,
	notification.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	genID         *snowflake.Node
	postSvc       postdomain.Service
	pageSvc       pagedomain.Service
	settingsSvc   settingsdomain.Service
	subscriberSvc subscriberdomain.Service
	billingSvc    billingdomain.Service
	dispatcher    *notification.Dispatcher
	queue         jobsdomain.Queue
	settingsCache cache.SettingsResolverCache
	limiter       *ratelimit.TokenBucket
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	GenID         *snowflake.Node
	PostSvc       postdomain.Service
	PageSvc       pagedomain.Service
	SettingsSvc   settingsdomain.Service
	SubscriberSvc subscriberdomain.Service
	BillingSvc    billingdomain.Service
	Dispatcher    *notification.Dispatcher
	Queue         jobsdomain.Queue
	SettingsCache cache.SettingsResolverCache
	Limiter       *ratelimit.TokenBucket `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		postSvc:       p.PostSvc,
		pageSvc:       p.PageSvc,
		settingsSvc:   p.SettingsSvc,
		subscriberSvc: p.SubscriberSvc,
		billingSvc:    p.BillingSvc,
		dispatcher:    p.Dispatcher,
		queue:         p.Queue,
		settingsCache: p.SettingsCache,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerPublicRoutes()
	svc.registerV1Routes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	api := s.engine.Group("/api")

	api.POST("/posts/webhook", s.WebhookKeyRequired(), s.PostsWebhook)
	api.POST("/pages/webhook", s.WebhookKeyRequired(), s.PagesWebhook)
	api.POST("/pages/settings/webhook", s.WebhookKeyRequired(), s.PageSettingsWebhook)
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.POST("/pages/:slug/subscribe", s.Subscribe)
	api.GET("/subscribers/verify", s.VerifySubscriber)
	api.GET("/unsubscribe", s.Unsubscribe)
}

func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1", s.SecretKeyRequired(), s.RateLimitBySecretKey())

	v1.GET("/posts", s.ListPosts)
	v1.POST("/posts", s.CreatePost)
	v1.GET("/posts/:id", s.GetPost)
	v1.PATCH("/posts/:id", s.UpdatePost)
	v1.DELETE("/posts/:id", s.DeletePost)

	v1.GET("/page", s.GetOwnPage)
	v1.PATCH("/page", s.UpdateOwnPage)
	v1.GET("/page/settings", s.GetOwnSettings)
	v1.PATCH("/page/settings", s.UpdateOwnSettings)
	v1.POST("/page/settings/rotate-key", s.RotateOwnSecretKey)

	v1.GET("/subscribers", s.ListSubscribers)
}
