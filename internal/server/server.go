package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/licensor/internal/account"
	accountdomain "github.com/smallbiznis/licensor/internal/account/domain"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/license"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	"github.com/smallbiznis/licensor/internal/observability"
	obsmiddleware "github.com/smallbiznis/licensor/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	obstracing "github.com/smallbiznis/licensor/internal/observability/tracing"
	"github.com/smallbiznis/licensor/internal/plan"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/smallbiznis/licensor/internal/providers"
	"github.com/smallbiznis/licensor/internal/ratelimit"
	"github.com/smallbiznis/licensor/internal/site"
	sitedomain "github.com/smallbiznis/licensor/internal/site/domain"
	"github.com/smallbiznis/licensor/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/licensor/internal/subscription/domain"
	"github.com/smallbiznis/licensor/internal/subscription/stripe"
	"github.com/smallbiznis/licensor/internal/telemetry"
	telemetrydomain "github.com/smallbiznis/licensor/internal/telemetry/domain"
	"github.com/smallbiznis/licensor/internal/usage"
	usagedomain "github.com/smallbiznis/licensor/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	plan.Module,
	account.Module,
	site.Module,
	usage.Module,
	telemetry.Module,
	license.Module,
	providers.Module,
	subscription.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	clock           clock.Clock
	catalog         plandomain.Catalog
	accountSvc      accountdomain.Service
	licenseSvc      licensedomain.Service
	siteSvc         sitedomain.Service
	usageSvc        usagedomain.Service
	telemetrySvc    telemetrydomain.Service
	subscriptionSvc subscriptiondomain.Service
	webhook         *stripe.Webhook
	pluginLimiter   *ratelimit.PluginLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	Catalog         plandomain.Catalog
	AccountSvc      accountdomain.Service
	LicenseSvc      licensedomain.Service
	SiteSvc         sitedomain.Service
	UsageSvc        usagedomain.Service
	TelemetrySvc    telemetrydomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Webhook         *stripe.Webhook
	PluginLimiter   *ratelimit.PluginLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		clock:           p.Clock,
		catalog:         p.Catalog,
		accountSvc:      p.AccountSvc,
		licenseSvc:      p.LicenseSvc,
		siteSvc:         p.SiteSvc,
		usageSvc:        p.UsageSvc,
		telemetrySvc:    p.TelemetrySvc,
		subscriptionSvc: p.SubscriptionSvc,
		webhook:         p.Webhook,
		pluginLimiter:   p.PluginLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerPluginRoutes()
	svc.registerDashboardRoutes()
	svc.registerBillingRoutes()
	svc.registerNotificationRoutes()

	return svc
}

func (s *Server) registerPluginRoutes() {
	group := s.engine.Group("/api/plugin")
	group.GET("/health", s.PluginHealth)
	group.POST("/validate-license", s.PluginRateLimit(), s.ValidateLicense)
	group.POST("/track-usage", s.PluginRateLimit(), s.TrackUsage)
	group.POST("/track-event", s.PluginRateLimit(), s.TrackEvent)
}

func (s *Server) registerDashboardRoutes() {
	group := s.engine.Group("/api/dashboard", s.AccountRequired())
	group.GET("", s.DashboardOverview)
	group.GET("/license", s.GetLicense)
	group.POST("/regenerate-license", s.RegenerateLicense)
	group.GET("/sites", s.ListSites)
	group.DELETE("/sites/:site_id", s.DeactivateSite)
	group.GET("/usage", s.UsageHistory)
	group.PUT("/settings", s.UpdateSettings)
	group.DELETE("/account", s.DeleteAccount)
}

func (s *Server) registerBillingRoutes() {
	group := s.engine.Group("/api/billing")
	group.POST("/webhook/stripe", s.StripeWebhook)

	authed := group.Group("", s.AccountRequired())
	authed.GET("/subscription", s.GetSubscription)
	authed.POST("/cancel", s.CancelSubscription)
	authed.POST("/create-checkout", s.CreateCheckout)
	authed.GET("/checkout/status/:session_id", s.CheckoutStatus)
}

func (s *Server) registerNotificationRoutes() {
	group := s.engine.Group("/api/notifications")
	group.GET("/recent-purchases", s.RecentPurchases)
	group.GET("/recent", s.LatestPurchase)
}
