package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"tetris_together/internal/config"
	"tetris_together/internal/http/handlers"
	"tetris_together/internal/http/middleware"
	"tetris_together/internal/ws"
)

// RegisterRoutes wires the relay's HTTP surface onto r. rdb may be nil.
func RegisterRoutes(r *gin.Engine, hub *ws.Hub, rdb *redis.Client, version string, cfg *config.Config) {
	h := handlers.NewHandler(hub, rdb, handlers.HandlerConfig{BoardHeight: cfg.BoardHeight})
	healthHandler := handlers.NewHealthHandler(hub, rdb, version)

	joinRateLimit := cfg.JoinRateLimit
	if joinRateLimit <= 0 {
		joinRateLimit = 30
	}
	joinRateWindow := cfg.JoinRateWindow
	if joinRateWindow <= 0 {
		joinRateWindow = time.Minute
	}

	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/sessions", middleware.RedisRateLimit(joinRateLimit, joinRateWindow, middleware.ByIP), h.CreateSession)
	v1.POST("/sessions/:session/join", middleware.RedisRateLimit(joinRateLimit, joinRateWindow, middleware.BySession), h.Join)
	v1.GET("/sessions/:session", middleware.JWT(), h.Session)

	r.GET("/ws", ws.HandleWS(hub, cfg.AllowedOrigin))
}
