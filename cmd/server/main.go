// Package main runs the WonderShark HTTP API with graceful shutdown.
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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wondershark/backend/config"
	"github.com/wondershark/backend/internal/agencies"
	"github.com/wondershark/backend/internal/auth"
	"github.com/wondershark/backend/internal/emaillogs"
	"github.com/wondershark/backend/internal/invitations"
	"github.com/wondershark/backend/internal/middleware"
	"github.com/wondershark/backend/internal/models"
	"github.com/wondershark/backend/internal/rbac"
	"github.com/wondershark/backend/internal/worker"
	"github.com/wondershark/backend/pkg/database"
	"github.com/wondershark/backend/pkg/mailer"
	"github.com/wondershark/backend/pkg/queue"
	"github.com/wondershark/backend/pkg/redis"
	"github.com/wondershark/backend/pkg/response"
	"github.com/wondershark/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	sender, err := mailer.New(mailer.Config{
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		Username:    cfg.Email.SMTPUser,
		Password:    cfg.Email.SMTPPass,
	}, logger)
	if err != nil {
		logger.Fatal("mailer", zap.Error(err))
	}

	// Logos are optional; without S3 the upload endpoint answers 503.
	var logos agencies.LogoStore
	if cfg.AWS.Region != "" && cfg.AWS.AssetsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AssetsBucket:         cfg.AWS.AssetsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			logos = s3Client
		}
	}

	emailLogRepo := emaillogs.NewRepository(pool)

	var (
		notifier  invitations.Notifier
		processor *worker.EmailProcessor
	)
	switch cfg.App.NotifyMode {
	case "direct":
		notifier = invitations.NewDirectNotifier(emailLogRepo, sender, logger)
	default:
		rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		jobQueue := queue.NewQueue(rdb.Client, logger)
		notifier = invitations.NewQueueNotifier(emailLogRepo, jobQueue, logger)
		if cfg.App.EmbeddedWorker {
			processor = worker.NewEmailProcessor(jobQueue, sender, emailLogRepo, logger)
		}
	}

	sessions := auth.NewSessions(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expire), cfg.JWT.CookieName, cfg.JWT.CookieSecure)
	authz := rbac.NewPostgres(pool)

	// Auth
	userRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(userRepo, authz, sessions, logger)

	// Agencies
	agencySvc := agencies.NewService(agencies.NewPostgresStore(pool), logos, logger)
	agencyHandler := agencies.NewHandler(agencySvc, logger)

	// Invitations
	invitationSvc := invitations.NewService(invitations.NewPostgresStore(pool, nil), agencySvc, notifier, invitations.Config{
		BaseURL: cfg.App.BaseURL,
		TTL:     cfg.App.InvitationTTL,
	}, logger)
	invitationHandler := invitations.NewHandler(invitationSvc, sessions, logger)

	emailLogsHandler := emaillogs.NewHandler(emailLogRepo, logger)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	public := middleware.RateLimit(limiter)

	router, err := middleware.NewEngine(cfg.Server.TrustedProxies, logger)
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", public, authHandler.Login)
		authGroup.POST("/register", public, authHandler.Register)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Invitation acceptance (public; the token is the credential)
	router.GET("/agency/invitation/accept/:token", public, invitationHandler.Show)
	router.POST("/agency/invitation/accept", public, invitationHandler.Accept)

	// Protected API (session required)
	api := router.Group("")
	api.Use(middleware.JWT(sessions))
	{
		api.GET("/auth/me", authHandler.Me)

		api.GET("/agencies", agencyHandler.ListMine)
		api.POST("/agencies", agencyHandler.Create)

		agency := api.Group("/agencies/:id", agencies.RequireAgencyAccess(agencySvc, logger))
		{
			agency.GET("", agencyHandler.Show)
			agency.GET("/members", agencyHandler.ListMembers)
			agency.POST("/members", agencyHandler.AddMember)
			agency.DELETE("/members/:userId", agencyHandler.RemoveMember)
			agency.POST("/logo/upload-url", agencyHandler.LogoUploadURL)
			agency.POST("/logo", agencyHandler.ConfirmLogo)

			agency.GET("/invitations", invitationHandler.List)
			agency.POST("/invitations", invitationHandler.Issue)
			agency.POST("/invitations/:invitationId/resend", invitationHandler.Resend)
			agency.DELETE("/invitations/:invitationId", invitationHandler.Cancel)

			agency.GET("/emails", emailLogsHandler.ListByAgency)
		}

		// Admin console
		admin := api.Group("/admin",
			middleware.RequireRole(models.RoleAdmin),
			middleware.RequirePermission(authz, rbac.PermissionAdminConsole, logger),
		)
		{
			admin.GET("/users", authHandler.List)
			admin.DELETE("/users/:id", authHandler.Delete)
			admin.GET("/invitations", invitationHandler.ListAll)
		}
	}

	handler, err := middleware.CSRF(cfg.Server.CORSAllowedOrigins, router)
	if err != nil {
		logger.Fatal("csrf", zap.Error(err))
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.CORS(cfg.Server.CORSAllowedOrigins, handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	if processor != nil {
		go processor.Run(bgCtx)
	}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup()
			}
		}
	}()

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("notify_mode", cfg.App.NotifyMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
