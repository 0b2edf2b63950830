package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"threadcast-backend/pkg/config"
	"threadcast-backend/pkg/logger"
)

var (
	redisDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_degraded_mode",
		Help: "1 while the last Redis health check failed, 0 otherwise",
	})
	redisHealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_health_check_total",
		Help: "Redis health checks by result",
	}, []string{"result"})
)

// RedisDB wraps a Redis client and tracks whether it is reachable
type RedisDB struct {
	Client *redis.Client

	mu       sync.RWMutex
	degraded bool
}

// NewRedisClient builds a client for cfg without connecting
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		MaxRetries:   3,
	})
}

// NewRedisDB connects to Redis and pings it once
func NewRedisDB(ctx context.Context, cfg *config.RedisConfig) (*RedisDB, error) {
	client := NewRedisClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDB{Client: client}, nil
}

// Close closes the Redis connection
func (db *RedisDB) Close() error {
	return db.Client.Close()
}

// IsDegraded reports whether the last health check failed
func (db *RedisDB) IsDegraded() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.degraded
}

// HealthCheck pings Redis and updates the degraded flag
func (db *RedisDB) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := db.Client.Ping(checkCtx).Err()
	db.setDegraded(err != nil)
	if err != nil {
		redisHealthChecks.WithLabelValues("failure").Inc()
		return fmt.Errorf("redis health check failed: %w", err)
	}
	redisHealthChecks.WithLabelValues("success").Inc()
	return nil
}

// StartHealthCheck runs HealthCheck every interval until ctx is done
func (db *RedisDB) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = db.HealthCheck(ctx)
			}
		}
	}()
}

func (db *RedisDB) setDegraded(degraded bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.degraded == degraded {
		return
	}
	db.degraded = degraded
	if degraded {
		redisDegraded.Set(1)
		logger.Named("redis").Warn("Redis unreachable, entering degraded mode")
	} else {
		redisDegraded.Set(0)
		logger.Named("redis").Info("Redis reachable again", zap.Bool("degraded", false))
	}
}
