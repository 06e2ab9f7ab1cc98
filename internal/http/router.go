// Package httpapi mounts the chat API and the realtime endpoint on a gin
// engine together with the cross-cutting middleware: tracing, correlation
// ids, scrubbed access logs, recovery, metrics, CORS, security headers,
// authentication, idempotent sends and rate limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-social-chat/internal/auth"
	"github.com/tbourn/go-social-chat/internal/config"
	_ "github.com/tbourn/go-social-chat/internal/http/docs" // registers the OpenAPI doc
	"github.com/tbourn/go-social-chat/internal/http/handlers"
	"github.com/tbourn/go-social-chat/internal/http/middleware"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	Conversations handlers.Conversations
	Messages      handlers.Messages
	// Ledger backs Idempotency-Key replay. Nil disables replay.
	Ledger   *handlers.DBLedger
	Sockets  handlers.Sockets
	Verifier *auth.Verifier
}

var (
	allowedMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	allowedHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposedHeaders = []string{"X-Request-ID", "ETag", middleware.HeaderIdempotencyReplayed, "Content-Length"}
)

// RegisterRoutes attaches middleware and endpoints to r.
//
// Engine-wide order: tracing, request id, access log, recovery, body limit,
// metrics, CORS, security headers. The API group then authenticates, marks
// idempotent replays, rate-limits and compresses. /ws authenticates and
// rate-limits but is never compressed.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(bodyLimit(cfg)))
	r.Use(middleware.Metrics())
	r.Use(corsPolicy(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.Conversations, d.Messages, ledgerOrNil(d.Ledger), d.Sockets, handlers.Uploads{
		MaxBytes: cfg.Assets.MaxUploadBytes,
		Dir:      cfg.Assets.UploadTmpDir,
	})
	requireUser := auth.Require(d.Verifier)
	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	var lookup middleware.IdempotencyLookup
	if d.Ledger != nil {
		lookup = d.Ledger.Lookup
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(
		requireUser,
		middleware.IdempotentSend(middleware.IdempotencyOptions{MaxLen: 200}, lookup),
		limiter.Handler(),
		middleware.SecurityHeaders(middleware.SecurityOptions{Private: true}),
		gzip.Gzip(gzip.DefaultCompression),
	)
	{
		api.GET("/conversations", h.ListConversations)
		api.POST("/conversations", h.OpenConversation)

		api.GET("/conversations/:id/messages", h.FetchWindow)
		api.POST("/conversations/:id/messages", h.SendMessage)
		api.GET("/conversations/:id/messages/:messageId", h.GetMessage)
		api.PATCH("/conversations/:id/messages/:messageId", h.EditMessage)
		api.DELETE("/conversations/:id/messages/:messageId", h.DeleteMessage)
	}

	r.GET("/ws", requireUser, limiter.Handler(), h.Realtime)
}

// ledgerOrNil keeps a nil *DBLedger from becoming a non-nil interface.
func ledgerOrNil(l *handlers.DBLedger) handlers.SendLedger {
	if l == nil {
		return nil
	}
	return l
}

func corsPolicy(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  allowedMethods,
		AllowHeaders:  allowedHeaders,
		ExposeHeaders: exposedHeaders,
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// bodyLimit leaves room for the multipart fields around the largest image.
func bodyLimit(cfg config.Config) int64 {
	const floor = 1 << 20
	if n := cfg.Assets.MaxUploadBytes + 64<<10; n > floor {
		return n
	}
	return floor
}

// limitBody caps every request body at maxBytes.
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
