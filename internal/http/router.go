package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/mobtrack/backend/internal/auth"
	"github.com/mobtrack/backend/internal/cache"
	"github.com/mobtrack/backend/internal/config"
	"github.com/mobtrack/backend/internal/http/handlers"
	"github.com/mobtrack/backend/internal/http/middlewares"
	"github.com/mobtrack/backend/internal/observability"
	"github.com/mobtrack/backend/internal/queue"
	"github.com/mobtrack/backend/internal/repo/postgres"
)

const serviceName = "mobtrack-api"

// note lists are tiny; a short TTL just absorbs bursts from the UI
const notesCacheTTL = 30 * time.Second

type RouterDeps struct {
	Cfg      config.Config
	Log      *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Prom     *observability.Prom
	Registry *prometheus.Registry
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// global middleware, order matters
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(d.Prom.GinHandleMiddleware())
	r.Use(middlewares.CORSMiddleware(d.Cfg.AllowedOrigins))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1 MiB

	// health
	pingDB := func() error {
		if d.Pool == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		return d.Pool.Ping(ctx)
	}
	pingRedis := func() error {
		if d.Redis == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		return d.Redis.Ping(ctx).Err()
	}

	healthHandler := handlers.NewHealthHandler(pingDB, pingRedis)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(d.Pool, d.Prom)
	notesRepo := postgres.NewNotesRepo(d.Pool, d.Prom)
	refreshRepo := postgres.NewRefreshTokensRepo(d.Pool)

	jwtManager := auth.NewManager(
		d.Cfg.JWTSecret,
		time.Duration(d.Cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(d.Cfg.JWTRefreshTTLDays)*24*time.Hour,
		time.Duration(d.Cfg.JWTResetTTLMinutes)*time.Minute,
	)

	jobQueue := queue.New(d.Redis)
	notesCache := cache.New(notesCacheTTL)

	authHandler := handlers.NewAuthHandler(usersRepo, jwtManager, refreshRepo, jobQueue, d.Cfg, d.Log)
	profileHandler := handlers.NewProfileHandler(usersRepo)
	notesHandler := handlers.NewNotesHandler(notesRepo, notesCache, d.Log)
	adminHandler := handlers.NewAdminHandler(usersRepo, notesRepo, notesCache)

	authMW := middlewares.NewAuthMiddleware(jwtManager)

	authLimiter := middlewares.NewRateLimiter(
		d.Cfg.AuthRateLimit,
		time.Duration(d.Cfg.AuthRateWindowSecs)*time.Second,
	)

	// public auth surface, rate limited by IP
	authGroup := r.Group("/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.POST("/forgot", authHandler.Forgot)
		authGroup.POST("/reset", authHandler.Reset)
	}

	// profile
	me := r.Group("/me")
	me.Use(authMW.RequireAuth())
	{
		me.GET("", profileHandler.GetMe)
		me.PUT("", profileHandler.UpdateMe)
		me.PUT("/password", profileHandler.ChangePassword)
	}

	// notes
	api := r.Group("/api")
	api.Use(authMW.RequireAuth())
	{
		api.GET("/notes", notesHandler.List)
		api.POST("/notes", notesHandler.Upsert)
		api.DELETE("/notes", notesHandler.ClearAll)
		api.DELETE("/notes/:id", notesHandler.DeleteOne)
		api.POST("/notes/restore", notesHandler.Restore)
	}

	// admin surface
	admin := r.Group("/admin")
	admin.Use(authMW.RequireAuth(), authMW.RequireAdmin())
	{
		admin.GET("/users", adminHandler.ListUsers)
		admin.PUT("/users/:id", adminHandler.EditUser)
		admin.DELETE("/users/:id", adminHandler.DeleteUser)
		admin.POST("/users/:id/promote", adminHandler.PromoteUser)
		admin.POST("/users/:id/demote", adminHandler.DemoteUser)
		admin.GET("/users/:id/export", adminHandler.ExportUser)
	}

	return r
}
