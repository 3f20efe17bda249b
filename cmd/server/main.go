package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/auth"
	"github.com/vipclub/access-server/internal/config"
	"github.com/vipclub/access-server/internal/database"
	"github.com/vipclub/access-server/internal/handler"
	"github.com/vipclub/access-server/internal/jobs"
	"github.com/vipclub/access-server/internal/metrics"
	"github.com/vipclub/access-server/internal/middleware"
	"github.com/vipclub/access-server/internal/redis"
	"github.com/vipclub/access-server/internal/repository"
	"github.com/vipclub/access-server/internal/service"
	"github.com/vipclub/access-server/internal/sse"
)

const devSecret = "dev-secret-change-me"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	grantRepo := repository.NewAccessGrantRepository(db.DB)
	adminSessionRepo := repository.NewAdminSessionRepository(db.DB)
	memberRepo := repository.NewMemberRepository(db.DB)

	sessionTokens := auth.NewSessionTokenManager(secretOrDev("ACCESS_SESSION_SECRET", cfg.AccessSessionSecret), cfg.AccessSessionTTL())

	broker := sse.NewBroker(redisClient.Client)
	defer broker.Close()

	accessService := service.NewAccessService(grantRepo, redisClient, sessionTokens, cfg.BaseURL()).
		WithActivity(broker)
	memberService := service.NewMemberService(memberRepo, db.WithTx)
	adminService := service.NewAdminService(
		adminSessionRepo, memberRepo, accessService,
		cfg.AdminPasswordHash, secretOrDev("ADMIN_SESSION_SECRET", cfg.AdminSessionSecret),
	)
	uploadService, err := service.NewUploadService(cfg.UploadDir, cfg.BaseURL())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload dir")
	}
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	adminSessionMiddleware := middleware.NewAdminSessionMiddleware(adminService, accessService)
	validateRateLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.ValidateRateLimit, config.ValidateRateLimitWindow, "validate",
	)
	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(middleware.DefaultMaxBodySize)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	tokenHandler := handler.NewTokenHandler(accessService, isProduction)
	accessHandler := handler.NewAccessHandler(accessService, isProduction)
	galleryHandler := handler.NewGalleryHandler(memberService, accessService)
	eventsHandler := handler.NewEventsHandler(broker)
	adminHandler := handler.NewAdminHandler(
		adminService, accessService, memberService, uploadService, adminSessionMiddleware.Handler, isProduction,
	)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	// long-lived stream, kept out of the request timeout
	r.With(adminSessionMiddleware.Handler).Get("/admin/api/events", eventsHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			status, code := "ok", http.StatusOK
			pingCtx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
			defer cancel()
			if err := db.Ping(pingCtx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(map[string]any{
				"status":    status,
				"timestamp": time.Now().UnixMilli(),
			})
		})
		r.Handle("/metrics", metrics.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Use(bodyLimitMiddleware.Handler)

			r.With(validateRateLimit.Handler).HandleFunc("/validate-token", tokenHandler.ValidateToken)
			r.With(csrfMiddleware.Handler, adminSessionMiddleware.Handler).HandleFunc("/generate-token", tokenHandler.GenerateToken)

			r.Mount("/access", accessHandler.Routes(validateRateLimit.Handler))
			r.Mount("/gallery", galleryHandler.Routes())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(csrfMiddleware.Handler)
			r.Mount("/", adminHandler.Routes())
			r.NotFound(handler.StaticFileServer(cfg.StaticDir, "").ServeHTTP)
		})

		r.Handle("/uploads/*", handler.UploadsFileServer(cfg.UploadDir))
	})

	r.NotFound(handler.StaticFileServer(cfg.StaticDir, "").ServeHTTP)

	cleanupJob := jobs.NewCleanupJob(adminSessionRepo, grantRepo, cfg.GrantRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("siteUrl", cfg.BaseURL()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// secretOrDev substitutes a fixed development secret; Validate refuses this in production.
func secretOrDev(name, value string) string {
	if value != "" {
		return value
	}
	log.Warn().Str("var", name).Msg("secret not set, using development default")
	return devSecret
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
