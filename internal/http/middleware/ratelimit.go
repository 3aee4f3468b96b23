package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type clientInfo struct {
	start time.Time
	count int
}

// SimpleRateLimit is the in-process fixed-window limiter.
func SimpleRateLimit(maxRequests int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByIP
	}
	var mu sync.Mutex
	clients := make(map[string]*clientInfo)
	lastSweep := time.Now()

	return func(c *gin.Context) {
		k := key(c)
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > window {
			for id, ci := range clients {
				if now.Sub(ci.start) > window {
					delete(clients, id)
				}
			}
			lastSweep = now
		}
		ci, ok := clients[k]
		if !ok || now.Sub(ci.start) > window {
			ci = &clientInfo{start: now}
			clients[k] = ci
		}
		ci.count++
		count := ci.count
		mu.Unlock()

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		if count > maxRequests {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
