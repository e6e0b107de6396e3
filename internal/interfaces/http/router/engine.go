package router

import (
	"github.com/gin-gonic/gin"
	"github.com/invoicehub/backend/internal/infrastructure/auth"
	"github.com/invoicehub/backend/internal/infrastructure/config"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/interfaces/http/handler"
	"github.com/invoicehub/backend/internal/interfaces/http/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers mounted by NewEngine
type Handlers struct {
	System         *handler.SystemHandler
	Numbering      *handler.NumberingHandler
	Reconciliation *handler.ReconciliationHandler
}

// Options carries the infrastructure NewEngine wires into middleware
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	// Meter records HTTP metrics; nil disables them
	Meter metric.Meter
	// Validator verifies access tokens when JWT is enabled
	Validator *auth.JWTValidator
}

// NewEngine builds the gin engine with the middleware stack and every route.
//
// Engine middleware, in order: request id, panic recovery, tracing, request
// logging, security headers, CORS, body limit, span error marking, metrics.
// API middleware adds authentication, tenant resolution, span attributes,
// profiler labels and rate limiting.
func NewEngine(opts Options, h Handlers) *gin.Engine {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS(corsConfig))
	engine.Use(middleware.BodyLimitWithUploads(cfg.HTTP.MaxBodySize, cfg.HTTP.MaxUploadSize))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(opts.Meter))

	engine.GET("/health", h.System.Health)
	if cfg.Swagger.Enabled {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	if cfg.JWT.Enabled {
		jwtConfig := middleware.DefaultJWTConfig(opts.Validator)
		jwtConfig.Logger = log
		r.Use(middleware.JWTAuthMiddleware(jwtConfig))
	}
	r.Use(middleware.TenantMiddleware(middleware.TenantMiddlewareConfig{
		JWTEnabled:      cfg.JWT.Enabled,
		HeaderEnabled:   !cfg.JWT.Enabled,
		DefaultTenantID: cfg.App.DefaultTenant,
		SkipPaths:       []string{r.BasePath() + "/health"},
		Logger:          log,
	}))
	r.Use(middleware.TracingAttributeInjector())
	r.Use(middleware.Profiling(middleware.ProfilingConfig{Enabled: cfg.Telemetry.ProfilingEnabled}))
	if cfg.HTTP.RateLimitEnabled {
		r.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	perm := permissions(middleware.PermissionConfig{Disabled: !cfg.JWT.Enabled, Logger: log})
	r.Register(systemRoutes(h.System, perm)).
		Register(numberingRoutes(h.Numbering, perm)).
		Register(reconciliationRoutes(h.Reconciliation, perm)).
		Register(paymentRoutes(h.Reconciliation, perm))
	r.Setup()

	return engine
}

// permissions returns a shorthand that prefixes a handler with a permission check
func permissions(cfg middleware.PermissionConfig) func(gin.HandlerFunc, ...string) []gin.HandlerFunc {
	return func(fn gin.HandlerFunc, perms ...string) []gin.HandlerFunc {
		return []gin.HandlerFunc{middleware.RequireAnyPermission(cfg, perms...), fn}
	}
}

type guard = func(gin.HandlerFunc, ...string) []gin.HandlerFunc

func systemRoutes(h *handler.SystemHandler, perm guard) *DomainGroup {
	g := NewDomainGroup("system", "")
	g.GET("/health", h.Health)
	g.GET("/system/info", perm(h.GetSystemInfo, middleware.PermNumberingRead, middleware.PermReconcileRead)...)
	return g
}

func numberingRoutes(h *handler.NumberingHandler, perm guard) *DomainGroup {
	g := NewDomainGroup("numbering", "/numbering")
	g.GET("/configs", perm(h.ListConfigs, middleware.PermNumberingRead)...)
	g.GET("/configs/:document_type", perm(h.GetConfig, middleware.PermNumberingRead)...)
	g.PUT("/configs/:document_type", perm(h.UpsertConfig, middleware.PermNumberingConfigure)...)
	g.GET("/:document_type/preview", perm(h.Preview, middleware.PermNumberingRead, middleware.PermNumberingReserve)...)
	g.POST("/:document_type/reserve", perm(h.Reserve, middleware.PermNumberingReserve)...)
	g.POST("/:document_type/reset", perm(h.Reset, middleware.PermNumberingReset)...)
	return g
}

func reconciliationRoutes(h *handler.ReconciliationHandler, perm guard) *DomainGroup {
	g := NewDomainGroup("reconciliation", "/reconciliation")
	g.POST("/sessions", perm(h.CreateSession, middleware.PermReconcileMatch)...)
	g.GET("/sessions", perm(h.ListSessions, middleware.PermReconcileRead)...)
	g.GET("/sessions/:id", perm(h.GetSession, middleware.PermReconcileRead)...)
	g.GET("/sessions/:id/transactions", perm(h.ListSessionTransactions, middleware.PermReconcileRead)...)
	g.POST("/sessions/:id/auto-match", perm(h.AutoMatch, middleware.PermReconcileMatch)...)
	g.POST("/sessions/:id/complete", perm(h.CompleteSession, middleware.PermReconcileComplete)...)

	g.POST("/transactions/import", perm(h.ImportStatement, middleware.PermReconcileImport)...)
	g.GET("/transactions/:id/suggestions", perm(h.Suggestions, middleware.PermReconcileRead)...)
	g.POST("/transactions/:id/match", perm(h.Match, middleware.PermReconcileMatch)...)
	g.POST("/transactions/:id/unmatch", perm(h.Unmatch, middleware.PermReconcileMatch)...)
	g.POST("/transactions/:id/ignore", perm(h.Ignore, middleware.PermReconcileMatch)...)
	g.POST("/transactions/:id/unignore", perm(h.Unignore, middleware.PermReconcileMatch)...)
	return g
}

func paymentRoutes(h *handler.ReconciliationHandler, perm guard) *DomainGroup {
	g := NewDomainGroup("payments", "/payments")
	g.POST("", perm(h.RecordPayment, middleware.PermPaymentWrite)...)
	g.GET("", perm(h.ListPayments, middleware.PermReconcileRead, middleware.PermPaymentWrite)...)
	return g
}
