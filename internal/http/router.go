package http

import (
	"log/slog"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/docdirectory/internal/config"
	"github.com/geocoder89/docdirectory/internal/domain/listing"
	"github.com/geocoder89/docdirectory/internal/http/handlers"
	"github.com/geocoder89/docdirectory/internal/http/middlewares"
	"github.com/geocoder89/docdirectory/internal/observability"
)

type RouterDeps struct {
	Cfg      config.Config
	Log      *slog.Logger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	Verifier  middlewares.TokenVerifier
	Accounts  handlers.Accounts
	Listings  []handlers.ListingService
	Directory handlers.DirectoryReader

	// Files serves /uploads; LocalUploadDir is set for the local driver only.
	Files          handlers.FileLocator
	LocalUploadDir string

	Ready map[string]handlers.Pinger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	// X-Forwarded-For is only honoured from configured proxies; otherwise ClientIP is the peer address.
	if err := r.SetTrustedProxies(deps.Cfg.TrustedProxies); err != nil {
		deps.Log.Error("invalid trusted proxies, trusting none", "err", err)
		_ = r.SetTrustedProxies(nil)
	}

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("docdirectory-api"))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(deps.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORS(deps.Cfg.AllowedOrigins))

	// multipart bodies carry up to five images
	maxBody := deps.Cfg.MaxUploadBytes*5 + 1<<20
	r.Use(middlewares.MaxBodyBytes(maxBody))
	r.MaxMultipartMemory = 8 << 20

	// health and metrics
	health := handlers.NewHealthHandler(deps.Ready)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	authMW := middlewares.NewAuthMiddleware(deps.Verifier, deps.Cfg.CookieName)
	requireAuth := authMW.RequireAuth()

	authLimiter := middlewares.NewRateLimiter(20, time.Minute)
	writeLimiter := middlewares.NewRateLimiter(60, time.Minute)

	api := r.Group("/api")

	authH := handlers.NewAuthHandler(deps.Accounts, deps.Cfg)

	authGroup := api.Group("/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/register", middlewares.RequireJSON(), authH.Register)
		authGroup.GET("/verify-email", authH.VerifyEmail)
		authGroup.POST("/verify-email", authH.VerifyEmail)
		authGroup.POST("/login", middlewares.RequireJSON(), authH.Login)
		authGroup.POST("/logout", authH.Logout)
		authGroup.GET("/me", requireAuth, authH.Me)
		authGroup.POST("/user/forgot-password", authH.ForgotPassword)
		authGroup.POST("/user/reset-password/:token", authH.ResetPassword)
	}

	dirH := handlers.NewDirectoryHandler(deps.Directory, deps.Log)

	userGroup := api.Group("/user")
	{
		userGroup.GET("/verify-email", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authH.VerifyEmail)
		userGroup.GET("/listings", requireAuth, dirH.UserListings)
	}

	api.GET("/search", dirH.Search)

	writeLimit := writeLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP)
	for _, svc := range deps.Listings {
		registerListingRoutes(api, handlers.NewListingsHandler(svc, deps.Log), requireAuth, writeLimit)
	}

	files := handlers.NewFilesHandler(deps.LocalUploadDir, deps.Files)
	r.GET("/uploads/:name", files.Serve)

	r.NoRoute(handlers.NewSPAHandler(deps.Cfg.FrontendDir).Serve)

	return r
}

// registerListingRoutes mounts one variant under /api/<plural>.
// The first dynamic segment is shared as :key (an id or an area) so the routes can coexist.
func registerListingRoutes(api *gin.RouterGroup, h *handlers.ListingsHandler, requireAuth, writeLimit gin.HandlerFunc) {
	schema := h.Schema()
	g := api.Group("/" + schema.Plural)

	g.GET("", h.Filter)
	g.POST("", requireAuth, writeLimit, h.Create)
	g.GET("/latest", h.Latest)
	g.GET("/mine", requireAuth, h.Mine)
	g.GET("/my"+schema.Plural, requireAuth, h.Mine)

	if slices.Contains(schema.Scope, listing.KeyCategory) {
		g.GET("/:key/:category/:slug", h.GetByIdentity)
	} else {
		g.GET("/:key/:slug", h.GetByIdentity)
	}

	g.GET("/:key", h.GetByID)
	g.PUT("/:key", requireAuth, writeLimit, h.Update)
	g.DELETE("/:key", requireAuth, writeLimit, h.Delete)
}
