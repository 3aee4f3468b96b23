package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tetris_together/internal/service"
)

// HandleWS upgrades a participant holding a session token and attaches it to the
// session room. The session query parameter, when present, must match the token.
func HandleWS(hub *Hub, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		claims, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if s := c.Query("session"); s != "" && s != claims.Session {
			c.JSON(http.StatusForbidden, gin.H{"error": "token not valid for this session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("HandleWS: upgrade failed", "error", err)
			return
		}

		client := NewClient(claims.Participant, claims.Session, conn, hub)
		go client.Run()
	}
}
