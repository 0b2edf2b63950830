package server

import (
	"github.com/gin-gonic/gin"

	callHandler "threadcast-backend/internal/handler/http/call"
	chatHandler "threadcast-backend/internal/handler/http/chat"
	conversationHandler "threadcast-backend/internal/handler/http/conversation"
	notificationHandler "threadcast-backend/internal/handler/http/notification"
	pollHandler "threadcast-backend/internal/handler/http/poll"
	reactionHandler "threadcast-backend/internal/handler/http/reaction"
	storageHandler "threadcast-backend/internal/handler/http/storage"
	watchHandler "threadcast-backend/internal/handler/http/watch"
	"threadcast-backend/internal/handler/ws"
	"threadcast-backend/internal/middleware"
	"threadcast-backend/pkg/jwt"
	"threadcast-backend/pkg/metrics"
)

// RouterOptions carries the cross-cutting collaborators of the HTTP surface
type RouterOptions struct {
	ServiceName    string
	AllowedOrigins []string
	JWT            *jwt.JWTManager
	Metrics        *metrics.Metrics

	// Optional collaborators; leave nil to disable
	Revocation  middleware.RevocationChecker
	RateLimiter *middleware.RateLimiter
	Presence    conversationHandler.OnlineChecker
	Hub         *ws.Hub
}

// NewRouter mounts every handler under /v1 behind authentication
func NewRouter(svcs *Services, opts RouterOptions) *gin.Engine {
	router := gin.New()

	router.Use(middleware.HealthCheck(opts.ServiceName))
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	if opts.Metrics != nil {
		router.Use(middleware.NewPrometheusMiddleware(opts.Metrics).Handler())
		router.GET("/metrics", middleware.MetricsHandler(opts.Metrics))
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.JWT, opts.Revocation))
	if opts.RateLimiter != nil {
		v1.Use(opts.RateLimiter.Middleware())
	}

	conversationHandler.NewHandler(svcs.Conversations, opts.Presence).RegisterRoutes(v1)
	chatHandler.NewHandler(svcs.Chat).RegisterRoutes(v1)
	callHandler.NewHandler(svcs.Calls).RegisterRoutes(v1)
	pollHandler.NewHandler(svcs.Polls).RegisterRoutes(v1)
	watchHandler.NewHandler(svcs.Watch).RegisterRoutes(v1)
	reactionHandler.NewHandler(svcs.Reactions).RegisterRoutes(v1)
	notificationHandler.NewHandler(svcs.Notifications).RegisterRoutes(v1)
	if svcs.Storage != nil {
		storageHandler.NewHandler(svcs.Storage).RegisterRoutes(v1)
	}
	if opts.Hub != nil {
		v1.GET("/ws", opts.Hub.ServeWS)
	}

	return router
}
