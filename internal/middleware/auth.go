package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/jwt"
	"voicelink-backend/pkg/response"
)

// Context keys set by the auth middleware
const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// Auth validates the access token and stores the authenticated identity in
// the request context. The credential is resolved from, in order: the token
// query parameter, the token or access_token cookie, the Authorization
// header. Query first because browser WebSocket clients cannot set headers.
func Auth(jwtManager *jwt.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.Unauthorized(c, "Authentication required")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}

	for _, name := range []string{"token", "access_token"} {
		if token, err := c.Cookie(name); err == nil && token != "" {
			return token
		}
	}

	authHeader := c.GetHeader("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}

	return ""
}

// Identity returns the authenticated user stored by Auth
func Identity(c *gin.Context) (domain.User, bool) {
	rawID, ok := c.Get(ContextUserIDKey)
	if !ok {
		return domain.User{}, false
	}
	userID, ok := rawID.(uuid.UUID)
	if !ok {
		return domain.User{}, false
	}

	username, _ := c.Get(ContextUsernameKey)
	name, _ := username.(string)

	return domain.User{UserID: userID, Username: name}, true
}
