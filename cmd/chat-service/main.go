package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"threadcast-backend/internal/handler/ws"
	"threadcast-backend/internal/middleware"
	"threadcast-backend/internal/pubsub"
	"threadcast-backend/internal/repository/cockroach"
	"threadcast-backend/internal/repository/memory"
	"threadcast-backend/internal/repository/redis"
	"threadcast-backend/internal/server"
	"threadcast-backend/internal/service/dispatch"
	"threadcast-backend/internal/service/storage"
	"threadcast-backend/pkg/config"
	"threadcast-backend/pkg/constants"
	"threadcast-backend/pkg/database"
	"threadcast-backend/pkg/jwt"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
)

func main() {
	// 1. Configuration and logging
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to read .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Redis (broker, presence, revocation, rate limiting)
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisDB, err := database.NewRedisDB(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisDB.Close()
		redisDB.StartHealthCheck(ctx, constants.RedisHealthCheckInterval)
		redisClient = redisDB.Client
		logger.Info("Connected to Redis", zap.String("host", cfg.Redis.Host))
	}

	// 3. Persistence
	var repos server.Repositories
	switch cfg.Store.Driver {
	case "memory":
		repos = server.MemoryRepositories(memory.NewStore())
		logger.Warn("Using in-memory store, data is lost on restart")
	default:
		cockroachDB, err := database.NewCockroachDB(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
		}
		defer cockroachDB.Close()

		if err := cockroach.Migrate(ctx, cockroachDB.Pool); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		repos = server.CockroachRepositories(cockroachDB.Pool)
		logger.Info("Connected to CockroachDB", zap.String("database", cfg.Database.Database))
	}

	// 4. Broker
	broker, err := newBroker(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to set up broker", zap.Error(err))
	}
	defer broker.Close()

	// 5. Object storage
	var storageSvc *storage.Service
	if cfg.MinIO.Enabled {
		storageSvc, err = storage.NewService(ctx, &cfg.MinIO)
		if err != nil {
			logger.Fatal("Failed to set up object storage", zap.Error(err))
		}
		logger.Info("Object storage ready", zap.String("bucket", cfg.MinIO.Bucket))
	}

	// 6. Services
	svcs := server.NewServices(repos, broker, storageSvc, dispatch.Options{
		Async:   cfg.Dispatch.Async,
		Timeout: cfg.Dispatch.Timeout,
	})

	// 7. Realtime hub and HTTP surface
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, constants.AccessTokenExpiry)

	hubOpts := ws.Options{AllowedOrigins: cfg.Server.AllowedOrigins, Metrics: appMetrics}
	routerOpts := server.RouterOptions{
		ServiceName:    cfg.Server.ServiceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		JWT:            jwtManager,
		Metrics:        appMetrics,
	}
	if redisClient != nil {
		presence := redis.NewPresenceRepository(redisClient)
		hubOpts.Presence = presence
		routerOpts.Presence = presence
		routerOpts.Revocation = middleware.NewRedisRevocationChecker(redisClient)
		routerOpts.RateLimiter = middleware.NewRateLimiter(redisClient, constants.RateLimitRequests, constants.RateLimitWindow)
	}

	hub := ws.NewHub(broker, svcs.Conversations, svcs.Chat, svcs.Calls, hubOpts)
	routerOpts.Hub = hub

	router := server.NewRouter(svcs, routerOpts)

	// 8. Serve
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
	}

	go func() {
		logger.Info("Chat service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("broker", cfg.Broker.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 9. Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	hub.Close()
	svcs.Dispatcher.Wait()

	logger.Info("Server exited")
}

func newBroker(cfg *config.Config, redisClient *goredis.Client) (pubsub.Broker, error) {
	switch cfg.Broker.Driver {
	case "nats":
		conn, err := pubsub.ConnectNATS(cfg.NATS.URL, cfg.NATS.Name)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
		return pubsub.NewNATSBroker(conn), nil
	case "memory":
		logger.Warn("Using in-process broker, events do not leave this instance")
		return pubsub.NewMemoryBroker(), nil
	default:
		if redisClient == nil {
			return nil, fmt.Errorf("redis broker requires REDIS_ENABLED")
		}
		return pubsub.NewRedisBroker(redisClient), nil
	}
}
