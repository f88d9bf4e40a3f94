// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/heroarena/game-server/internal/v1/config"
	"github.com/heroarena/game-server/internal/v1/logging"
	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// RateLimiter holds the rate limiter instances.
// Three scopes: websocket connects per IP, websocket connects per user,
// and chat messages per sender.
type RateLimiter struct {
	wsIP   *limiter.Limiter
	wsUser *limiter.Limiter
	chat   *limiter.Limiter
	store  limiter.Store
}

// NewRateLimiter creates a new RateLimiter instance. With a nil redis
// client it falls back to an in-memory store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	wsUserRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsUser)
	if err != nil {
		return nil, fmt.Errorf("invalid WS User rate: %w", err)
	}

	chatRate, err := limiter.NewRateFromFormatted(cfg.RateLimitChat)
	if err != nil {
		return nil, fmt.Errorf("invalid chat rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "✅ Rate limiter using Redis store")
	} else {
		// Fallback to memory store if Redis is disabled (e.g. dev mode without redis)
		store = memory.NewStore()
		logging.Warn(context.Background(), "⚠️  Rate limiter using Memory store (Redis disabled or unavailable)")
	}

	return &RateLimiter{
		wsIP:   limiter.New(store, wsIPRate),
		wsUser: limiter.New(store, wsUserRate),
		chat:   limiter.New(store, chatRate),
		store:  store,
	}, nil
}

// CheckWebSocket checks if a WebSocket connection should be allowed based
// on the client IP. Returns true if allowed, false if the limit was
// exceeded (and writes the error response).
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS Rate limiter store failed (IP)", zap.Error(err))
		return true // Fail open
	}

	metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}

// CheckWebSocketUser checks the user-specific connect limit.
// Call this after successfully authenticating the user.
func (rl *RateLimiter) CheckWebSocketUser(ctx context.Context, userID string) error {
	userContext, err := rl.wsUser.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "WS Rate limiter store failed (User)", zap.Error(err))
		return nil // Fail open
	}

	if userContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "user").Inc()
		return fmt.Errorf("rate limit exceeded for user")
	}

	return nil
}

// AllowChat reports whether the sender identified by key may send another
// chat message inside the configured window.
func (rl *RateLimiter) AllowChat(ctx context.Context, key string) bool {
	chatContext, err := rl.chat.Get(ctx, "chat:"+key)
	if err != nil {
		logging.Error(ctx, "Chat rate limiter store failed", zap.Error(err))
		return true // Fail open
	}

	metrics.RateLimitRequests.WithLabelValues("chat").Inc()

	if chatContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("chat", "conn").Inc()
		return false
	}
	return true
}
