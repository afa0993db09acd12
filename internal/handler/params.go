package handler

import (
	"net/http"
	"strconv"

	"campus_social/internal/middleware"
	apperrors "campus_social/pkg/errors"

	"github.com/gin-gonic/gin"
)

// caller returns the authenticated user id, or aborts with 401.
func caller(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.NewAPIError("user not authenticated", http.StatusUnauthorized))
		return 0, false
	}
	return userID, true
}

// idParam parses a positive int64 path parameter. On failure it records a
// validation error for ErrorHandler.
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, apperrors.Validationf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return value
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
