package middleware

import (
	"net/http"

	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Internal failures are logged and shown to the client as a generic message.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		statusCode := apperrors.HTTPStatusFromError(err)
		if statusCode == http.StatusInternalServerError {
			log.Error("Unhandled error", "error", err, "path", c.FullPath(), "request_id", c.GetString(ContextRequestID))
		}

		c.JSON(statusCode, apperrors.NewAPIError(apperrors.PublicMessage(err), statusCode))
	}
}
