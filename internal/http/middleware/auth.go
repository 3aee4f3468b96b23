package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tetris_together/internal/service"
)

// Context keys set by JWT.
const (
	CtxParticipant = "participant_id"
	CtxSession     = "session"
)

// JWT accepts a participant token from the Authorization header or the token
// query parameter. When the route has a :session parameter the token must be
// scoped to it.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		claims, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if s := c.Param("session"); s != "" && s != claims.Session {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token not valid for this session"})
			return
		}

		c.Set(CtxParticipant, claims.Participant)
		c.Set(CtxSession, claims.Session)
		c.Next()
	}
}
