package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// Claims are issued by the account service. Only the caller's id and role are
// consumed here.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
	issuer string
	log    logger.Logger
}

func NewAuthMiddleware(cfg config.JWTConfig, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		log:    log,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, reason := m.bearerClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason, "code": http.StatusUnauthorized})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// Identify resolves the caller from the bearer token without rejecting the
// request, for middleware that runs ahead of RequireAuth.
func (m *AuthMiddleware) Identify(c *gin.Context) (int64, bool) {
	if id, ok := UserID(c); ok {
		return id, true
	}
	claims, _ := m.bearerClaims(c)
	if claims == nil {
		return 0, false
	}
	return claims.UserID, true
}

// bearerClaims returns the token's claims, or nil and the reason it was refused.
func (m *AuthMiddleware) bearerClaims(c *gin.Context) (*Claims, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, "Authorization header required"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, "Invalid authorization header format"
	}

	claims, err := m.ParseToken(parts[1])
	if err != nil {
		m.log.Debug("Token validation failed", "error", err)
		return nil, "Invalid or expired token"
	}
	return claims, ""
}

// RequireRole must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextUserRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions", "code": http.StatusForbidden})
			return
		}
		c.Next()
	}
}

// ParseToken validates an HS256 token and returns its claims.
func (m *AuthMiddleware) ParseToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("token has no user id")
	}
	if claims.Role == "" {
		claims.Role = domain.RoleUser
	}
	return claims, nil
}

// UserID returns the authenticated caller set by RequireAuth.
func UserID(c *gin.Context) (int64, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok && id > 0
}
