// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// ReadHeaderTimeout bounds how long a client may take to send headers
	ReadHeaderTimeout = 10 * time.Second

	// RedisHealthCheckInterval is how often Redis reachability is probed
	RedisHealthCheckInterval = 10 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the access token lifetime issued by the auth service
	AccessTokenExpiry = 15 * time.Minute
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Rate limiting constants
const (
	// RateLimitRequests is the number of API requests allowed per window
	RateLimitRequests = 120

	// RateLimitWindow is the fixed window requests are counted in
	RateLimitWindow = time.Minute
)
