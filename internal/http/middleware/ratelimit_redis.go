package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"tetris_together/internal/logger"
)

var redisClient *redis.Client

// InitRedisRateLimiter installs the Redis client shared by the limiters. A nil
// client, or one that does not answer a ping, leaves the in-memory limiter in charge.
func InitRedisRateLimiter(client *redis.Client) {
	redisClient = nil
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("InitRedisRateLimiter: redis unavailable, using in-memory limiter", "error", err)
		return
	}
	redisClient = client
}

// KeyFunc picks what a limiter counts requests by.
type KeyFunc func(c *gin.Context) string

func ByIP(c *gin.Context) string { return c.ClientIP() }

// BySession counts per session path parameter and client address.
func BySession(c *gin.Context) string { return c.Param("session") + ":" + c.ClientIP() }

// RedisRateLimit implements a fixed-window limiter with Redis INCR/EXPIRE.
// key format: rl:<window_seconds>:<key>
// Without Redis it falls back to SimpleRateLimit; on Redis errors it fails open.
func RedisRateLimit(maxRequests int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByIP
	}
	fallback := SimpleRateLimit(maxRequests, window, key)

	return func(c *gin.Context) {
		if redisClient == nil {
			fallback(c)
			return
		}

		k := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + key(c)
		ctx := c.Request.Context()

		val, err := redisClient.Incr(ctx, k).Result()
		if err != nil {
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}
		if val == 1 {
			redisClient.Expire(ctx, k, window)
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		if val > int64(maxRequests) {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
