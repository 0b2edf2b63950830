package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/response"
)

// RateLimiter implements a fixed-window Redis rate limit per user or client IP
type RateLimiter struct {
	redisClient *redis.Client
	requests    int
	window      time.Duration
	now         func() time.Time
}

// NewRateLimiter allows requests per window for each caller
func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		requests:    requests,
		window:      window,
		now:         time.Now,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			identifier = "user:" + userID.String()
		}

		count, resetAt, err := rl.hit(c.Request.Context(), identifier)
		if err != nil {
			// Fail open
			logger.FromContext(c.Request.Context()).Warn("Rate limiter unavailable",
				zap.String("identifier", identifier),
				zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if count > rl.requests {
			response.Error(c, http.StatusTooManyRequests, string(apperrors.ErrCodeRateLimited), "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}

// hit counts one request in the current window
func (rl *RateLimiter) hit(ctx context.Context, identifier string) (int, int64, error) {
	windowSecs := int64(rl.window.Seconds())
	if windowSecs < 1 {
		windowSecs = 1
	}
	windowStart := rl.now().Unix() / windowSecs * windowSecs
	key := fmt.Sprintf("threadcast:ratelimit:%s:%d", identifier, windowStart)

	pipe := rl.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return int(incr.Val()), windowStart + windowSecs, nil
}
