package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"costume-rental/config"
	"costume-rental/database"
	routes "costume-rental/internal/app/http"
	"costume-rental/internal/app/http/middleware"
	"costume-rental/internal/domain/costumes"
	"costume-rental/internal/domain/users"
	"costume-rental/internal/infra/imagestore"
	"costume-rental/internal/infra/logging"
	"costume-rental/internal/infra/security"
	"costume-rental/internal/infra/validation"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatal("❌ ", err)
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal("❌ ", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("❌ Failed to connect to database")
	}

	deps := routes.Deps{
		APIPrefix:      cfg.APIPrefix,
		DB:             db,
		MaxUploadBytes: cfg.Images.MaxBytes,
		Log:            logger,
		UploadsPrefix:  cfg.Images.URLPrefix,
	}

	var backend imagestore.Backend
	switch cfg.Images.Backend {
	case "minio":
		mb, err := imagestore.NewMinioBackend(ctx, cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
		if err != nil {
			logger.WithError(err).Fatal("❌ Failed to open object storage")
		}
		backend, deps.UploadsObjects = mb, mb
	default:
		lb, err := imagestore.NewLocalBackend(cfg.Images.Dir)
		if err != nil {
			logger.WithError(err).Fatal("❌ Failed to prepare image directory")
		}
		backend, deps.UploadsDir = lb, lb.Root()
	}

	store := imagestore.New(imagestore.Options{
		URLPrefix: cfg.Images.URLPrefix,
		MaxBytes:  cfg.Images.MaxBytes,
		Workers:   cfg.Images.Workers,
	}, backend, imagestore.NewFFmpegAVIF(cfg.Images.FFmpeg), logger)

	deps.Revocations = security.NopRevocations{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("❌ Failed to connect to redis")
		}
		defer rdb.Close()
		deps.Revocations = security.NewRedisRevocations(rdb)
	}

	validate := validation.New()
	deps.Tokens = security.NewTokenService(cfg.Auth.Secret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	deps.Users = users.NewService(db, validate, logger)
	deps.Costumes = costumes.NewService(db, store, validate, logger)

	if cfg.Admin.Email != "" {
		created, err := deps.Users.EnsureSuperAdmin(ctx, cfg.Admin.Email, cfg.Admin.Username, cfg.Admin.Password)
		if err != nil {
			logger.WithError(err).Fatal("❌ Failed to bootstrap super admin")
		}
		if created {
			logger.WithField("email", cfg.Admin.Email).Info("super admin created")
		}
	}

	r := gin.New()
	r.Use(middleware.RecoveryMiddleware(logger), middleware.LoggerMiddleware(logger))

	// CORS before the routes
	r.Use(cors.New(corsConfig(cfg.Origins)))

	routes.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", srv.Addr).Info("🚀 Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}
