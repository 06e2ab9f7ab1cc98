// Command server runs the social chat API: REST endpoints for conversations
// and messages plus the websocket endpoint for realtime push.
//
// @title                      Social Chat API
// @version                    1.0
// @description                Two-party conversations between friends with realtime delivery.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-social-chat/internal/assets"
	"github.com/tbourn/go-social-chat/internal/auth"
	"github.com/tbourn/go-social-chat/internal/config"
	"github.com/tbourn/go-social-chat/internal/directory"
	httpapi "github.com/tbourn/go-social-chat/internal/http"
	"github.com/tbourn/go-social-chat/internal/http/handlers"
	"github.com/tbourn/go-social-chat/internal/observability"
	"github.com/tbourn/go-social-chat/internal/presence"
	"github.com/tbourn/go-social-chat/internal/push"
	"github.com/tbourn/go-social-chat/internal/realtime"
	"github.com/tbourn/go-social-chat/internal/repo"
	"github.com/tbourn/go-social-chat/internal/retention"
	"github.com/tbourn/go-social-chat/internal/services"
	"github.com/tbourn/go-social-chat/internal/sysutil"
	"github.com/tbourn/go-social-chat/internal/typing"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := sysutil.SetupLogger("error", false)
		boot.Fatal().Err(err).Msg("config")
	}
	log := sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	dir := directory.NewStore(db)
	registry := presence.NewRegistry()

	hub := realtime.NewHub(registry, log, realtime.Options{
		SendBuffer:   cfg.Realtime.SendBuffer,
		PingInterval: cfg.Realtime.PingInterval,
		WriteTimeout: cfg.Realtime.WriteTimeout,
		CheckOrigin:  originChecker(cfg.CORS.AllowedOrigins),
	})
	dispatcher := push.NewDispatcher(registry, hub, log)

	conversations := &services.ConversationService{
		DB:       db,
		Users:    dir,
		Friends:  dir,
		Presence: registry,
		PerPage:  cfg.Chat.PageSize,
	}
	var uploader assets.Uploader
	if cfg.Assets.ServiceURL != "" {
		uploader = assets.NewHTTPUploader(cfg.Assets.ServiceURL, cfg.Assets.APIKey, cfg.Assets.UploadTimeout)
	}
	messages := &services.MessageService{
		DB:              db,
		Users:           dir,
		Posts:           dir.PostIndex(),
		Presence:        registry,
		Uploader:        uploader,
		Notifier:        dispatcher,
		MaxContentRunes: cfg.Chat.MaxContentRunes,
	}

	hub.Announce = dispatcher
	hub.Friends = dir
	hub.Typing = &typing.Relay{Conversations: conversations, Push: dispatcher, Log: log}

	if cfg.Retention.Enabled {
		job := &retention.Job{DB: db, Cron: cfg.Retention.Cron, Log: log.With().Str("component", "retention").Logger()}
		if err := job.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("retention")
		}
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Conversations: conversations,
		Messages:      messages,
		Ledger:        &handlers.DBLedger{DB: db, TTL: cfg.IdempotencyTTL},
		Sockets:       hub,
		Verifier:      auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdown(log, srv, hub, shutdownOTel)
}

func shutdown(log zerolog.Logger, srv *http.Server, hub *realtime.Hub, otelShutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// Hijacked websocket connections are not closed by srv.Shutdown.
	if err := hub.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("realtime shutdown")
	}
	if err := otelShutdown(ctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

// originChecker mirrors the CORS allow-list for websocket upgrades. An empty
// list accepts any origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		o := r.Header.Get("Origin")
		if o == "" {
			return true
		}
		_, ok := allowed[o]
		return ok
	}
}
