package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/authcore/config"
	"github.com/oksasatya/authcore/internal/application"
	"github.com/oksasatya/authcore/internal/container"
	"github.com/oksasatya/authcore/internal/domain/notification"
	esinfra "github.com/oksasatya/authcore/internal/infrastructure/elasticsearch"
	gcsinfra "github.com/oksasatya/authcore/internal/infrastructure/gcs"
	googleinfra "github.com/oksasatya/authcore/internal/infrastructure/google"
	pginfra "github.com/oksasatya/authcore/internal/infrastructure/postgres"
	mqinfra "github.com/oksasatya/authcore/internal/infrastructure/rabbitmq"
	redisinfra "github.com/oksasatya/authcore/internal/infrastructure/redis"
	"github.com/oksasatya/authcore/internal/interface/middleware"
	"github.com/oksasatya/authcore/internal/router"
	"github.com/oksasatya/authcore/pkg/helpers"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)
	gin.SetMode(cfg.GinMode)

	if cfg.RefreshTTL <= cfg.AccessTTL {
		logger.WithFields(logrus.Fields{"access_ttl": cfg.AccessTTL, "refresh_ttl": cfg.RefreshTTL}).
			Warn("refresh token lifetime does not exceed access token lifetime")
	}

	ctx := context.Background()

	// Initialize Postgres pool
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	// Redis
	rdb := helpers.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer func() { _ = rdb.Close() }()

	// Google tokeninfo client, built once and shared
	idp, err := googleinfra.NewTokenInfoClient(ctx, googleinfra.Options{
		ClientID: cfg.GoogleClientID,
		Endpoint: cfg.GoogleTokenInfoEndpoint,
	})
	if err != nil {
		log.Fatalf("failed to init google client: %v", err)
	}
	if cfg.GoogleClientID == "" {
		logger.Warn("GOOGLE_OAUTH_CLIENT_ID not set; token audience is not checked")
	}

	hasher := helpers.NewPasswordHasher(cfg.BcryptCost)
	jwtManager := helpers.NewJWTManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	repo := pginfra.NewUserRepository(pool)

	svc := application.NewAuthService(repo, hasher, jwtManager, idp, newDispatcher(cfg, logger), logger)
	svc.Verifications = redisinfra.NewVerificationStore(rdb, cfg.VerifyTokenTTL)
	svc.StrictOAuthEmail = cfg.GoogleStrictEmail

	// Elasticsearch (optional)
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(addrs, cfg.ElasticsearchUser, cfg.ElasticsearchPass)
		if err == nil {
			err = helpers.PingES(ctx, es)
		}
		if err != nil {
			logger.WithError(err).Warn("elasticsearch disabled")
		} else {
			svc.Indexer = esinfra.NewUserIndex(es, cfg.ESUsersIndex)
		}
	}

	// GCS avatar mirror (optional)
	if cfg.GCSBucket != "" {
		gcsClient, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.WithError(err).Warn("gcs disabled")
		} else {
			defer func() { _ = gcsClient.Close() }()
			svc.Avatars = gcsinfra.NewAvatarMirror(gcsClient, cfg.GCSBucket)
		}
	}

	c := &container.Container{
		Config: cfg,
		Logger: logger,
		Redis:  rdb,
		JWT:    jwtManager,
		Auth:   svc,
	}

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP(cfg.TrustProxyHeaders))
	// CORS
	corsCfg := cors.Config{
		AllowOrigins:     cfg.CORSOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{"http://localhost:4200"}
	}
	r.Use(cors.New(corsCfg))
	if cfg.HTTPLogEnabled || cfg.Env == "development" {
		r.Use(middleware.AccessLog(logger))
	}

	// Registry: register modules from the container
	reg := router.NewRegistry(r)
	router.InitModules(reg, c)
	reg.RegisterAll()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}

	// let confirm emails, index writes and avatar copies already under way finish
	drained := make(chan struct{})
	go func() {
		svc.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctxShutdown.Done():
		logger.Warn("background side effects still running at exit")
	}
	logger.Info("server exited properly")
}

// newDispatcher connects to RabbitMQ. Registration keeps working without it; confirmation emails are then skipped.
func newDispatcher(cfg *config.Config, logger *logrus.Logger) notification.Dispatcher {
	if cfg.RabbitMQURL == "" {
		logger.Warn("RABBITMQ_URL not set; notifications disabled")
		return nil
	}
	pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL)
	if err != nil {
		logger.WithError(err).Warn("rabbitmq unavailable; notifications disabled")
		return nil
	}
	return mqinfra.NewDispatcher(pub, logger)
}
