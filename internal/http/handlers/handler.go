package handlers

import (
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"tetris_together/internal/http/middleware"
	"tetris_together/internal/ws"
)

type HandlerConfig struct {
	BoardHeight int
}

type Handler struct {
	Hub         *ws.Hub
	Redis       *redis.Client
	BoardHeight int
}

func NewHandler(hub *ws.Hub, rdb *redis.Client, cfg HandlerConfig) *Handler {
	if cfg.BoardHeight <= 0 {
		cfg.BoardHeight = 20
	}
	return &Handler{
		Hub:         hub,
		Redis:       rdb,
		BoardHeight: cfg.BoardHeight,
	}
}

// getParticipant extracts the participant id set by the JWT middleware.
func getParticipant(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.CtxParticipant)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
