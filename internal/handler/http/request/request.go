// Package request holds the parameter parsing shared by the HTTP handlers.
// Each helper writes the error response itself and reports false on failure.
package request

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"threadcast-backend/internal/middleware"
	"threadcast-backend/pkg/response"
)

// UserID returns the authenticated caller
func UserID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	return id, true
}

// PathUUID parses a uuid path parameter
func PathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.ValidationError(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// Caller returns the authenticated caller and a uuid path parameter
func Caller(c *gin.Context, param string) (userID, id uuid.UUID, ok bool) {
	if userID, ok = UserID(c); !ok {
		return
	}
	id, ok = PathUUID(c, param)
	return
}

// Limit reads the limit query parameter. Zero means the service default.
func Limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		response.ValidationError(c, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
