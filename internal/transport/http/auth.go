package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"exam-ledger-service/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID   = "user_id"
	ctxUserName = "user_name"
	ctxRole     = "role"

	// RoleAdmin may grant badges, challenge progress and practice sets to
	// any user.
	RoleAdmin = "admin"
)

// Claims identifies the caller. Tokens are issued elsewhere; this service
// only verifies them.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	secret []byte
	log    *logger.Logger
}

func NewAuthMiddleware(secret string, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthMiddleware{secret: []byte(secret), log: log}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}
		claims, err := am.parse(token)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxUserName, claims.Name)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (am *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != role {
			respondError(c, http.StatusForbidden, "forbidden", role+" role required")
			return
		}
		c.Next()
	}
}

func (am *AuthMiddleware) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// IssueToken signs a token for userID. Used by tests and local tooling.
func IssueToken(secret, userID, name, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// extractToken reads the bearer header, falling back to the token query
// parameter since browsers cannot set headers on websocket upgrades.
func extractToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

func callerID(c *gin.Context) string { return c.GetString(ctxUserID) }
