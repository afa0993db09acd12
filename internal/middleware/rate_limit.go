package middleware

import (
	"net/http"
	"strconv"
	"time"

	"campus_social/internal/service"
	"campus_social/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Identifier resolves the caller of a request, if any.
type Identifier func(c *gin.Context) (int64, bool)

// RateLimitMiddleware caps requests per caller, or per client IP when the
// request carries no valid identity, in a fixed window. It is mounted ahead of
// RequireAuth so rejected tokens are limited too. A limiter backend failure
// lets the request through.
type RateLimitMiddleware struct {
	rateLimitService service.RateLimitService
	limit            int
	window           time.Duration
	identify         Identifier
	log              logger.Logger
}

// NewRateLimitMiddleware falls back to the caller set by RequireAuth when
// identify is nil.
func NewRateLimitMiddleware(rateLimitService service.RateLimitService, limit int, window time.Duration, identify Identifier, log logger.Logger) *RateLimitMiddleware {
	if identify == nil {
		identify = UserID
	}
	return &RateLimitMiddleware{
		rateLimitService: rateLimitService,
		limit:            limit,
		window:           window,
		identify:         identify,
		log:              log,
	}
}

func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID, ok := m.identify(c); ok {
			key = "user:" + strconv.FormatInt(userID, 10)
		}

		allowed, err := m.rateLimitService.Allow(c.Request.Context(), "http:"+key, m.limit, m.window)
		if err != nil {
			m.log.Warn("Rate limit check failed", "error", err, "key", key)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(m.limit))
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded", "code": http.StatusTooManyRequests})
			return
		}

		c.Next()
	}
}
