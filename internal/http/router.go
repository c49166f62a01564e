// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Participant identifiers never reach access logs
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/config"
	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/http/docs"
	"github.com/tbourn/go-feedback-bot/internal/http/handlers"
	"github.com/tbourn/go-feedback-bot/internal/http/middleware"
	"github.com/tbourn/go-feedback-bot/internal/repo"
	"github.com/tbourn/go-feedback-bot/internal/services"
)

// receiptShim adapts the repository receipt functions to the
// handlers.ReceiptStore interface expected by the inbound handler.
type receiptShim struct{ db *gorm.DB }

// Get proxies repo.GetReceipt.
func (s receiptShim) Get(ctx context.Context, identityID, key string, now time.Time) (*domain.InboundReceipt, error) {
	return repo.GetReceipt(ctx, s.db, identityID, key, now)
}

// Create proxies repo.CreateReceipt.
func (s receiptShim) Create(ctx context.Context, identityID, key, text string, options []string, status int, ttl time.Duration) (*domain.InboundReceipt, error) {
	return repo.CreateReceipt(ctx, s.db, identityID, key, text, options, status, ttl)
}

// exists is the idempotency lookup used by the middleware.
func (s receiptShim) exists(ctx context.Context, identityID, key string, now time.Time) (bool, error) {
	rec, err := s.Get(ctx, identityID, key, now)
	if err != nil || rec == nil {
		return false, nil
	}
	return true, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. conv drives the chat transports (inbound JSON and websocket); the
// admin API is served from db.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, security headers and compression
//
// Idempotency and rate limiting are route-level: the validator runs first so
// replays bypass the limiter, and each surface keys its own buckets.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, conv handlers.ConversationService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Telegram-Bot-Api-Secret-Token"},
		MaskQuery:   []string{"identifier"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Content-Length", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		Expose:       []string{middleware.RequestIDHeader, "Idempotency-Replayed", "Retry-After"},
	}))

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	wsPath := joinPath(apiBase, "/ws")

	// Compression; websocket upgrades and the scrape endpoint stay raw.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath, "/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	receipts := receiptShim{db: db}
	adminSvc := &services.AdminService{DB: db, CriticalThreshold: cfg.Escalate.Threshold}
	h := handlers.New(conv, adminSvc, receipts, handlers.Options{
		ReceiptTTL:     cfg.IdempotencyTTL,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Scope: handlers.InboundScope},
		receipts.exists,
	)
	inboundRL := newLimiter(cfg, middleware.KeyByIdentityOrIP())
	adminRL := newLimiter(cfg, nil)
	wsRL := newLimiter(cfg, nil)

	api := groupWithPrefix(r, apiBase)
	{
		// Chat transports
		api.POST("/inbound", idem, inboundRL, h.Inbound)
		api.GET("/ws", wsRL, h.Chat)

		// Management
		admin := api.Group("/admin", adminRL, middleware.NoStore())
		admin.GET("/feedback", h.ListFeedback)
		admin.GET("/feedback/critical", h.ListCritical)
		admin.GET("/feedback/search", h.SearchFeedback)
		admin.POST("/feedback/:id/resolve", h.ResolveFeedback)
		admin.GET("/statistics", h.Statistics)
		admin.GET("/branches", h.ListBranches)
		admin.GET("/registrations", h.Registrations)
	}
}

// newLimiter returns the rate-limit middleware for one route surface, or a
// pass-through when RATE_RPS is 0.
func newLimiter(cfg config.Config, keyFn middleware.KeyFunc) gin.HandlerFunc {
	if cfg.RateRPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, keyFn).Handler()
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
