package transport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/heroarena/game-server/internal/v1/auth"
	"github.com/heroarena/game-server/internal/v1/game"
	"github.com/heroarena/game-server/internal/v1/logging"
	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/heroarena/game-server/internal/v1/ratelimit"
	"go.uber.org/zap"
)

// TokenValidator validates bearer tokens into claims. Satisfied by
// auth.Validator and auth.MockValidator.
type TokenValidator interface {
	ValidateToken(token string) (*auth.CustomClaims, error)
}

// Hub is the WebSocket front door: it authenticates connections, upgrades
// them, and hands the resulting clients to the game registry.
type Hub struct {
	registry    *game.Registry
	validator   TokenValidator
	rateLimiter *ratelimit.RateLimiter
	devMode     bool // allow guest connections without a token
}

// NewHub creates a Hub wired to the registry.
func NewHub(registry *game.Registry, validator TokenValidator, rateLimiter *ratelimit.RateLimiter, devMode bool) *Hub {
	return &Hub{
		registry:    registry,
		validator:   validator,
		rateLimiter: rateLimiter,
		devMode:     devMode,
	}
}

// ServeWs authenticates the user and upgrades to a WebSocket connection.
func (h *Hub) ServeWs(c *gin.Context) {
	// Rate limiting first, before any other work.
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return // Response already written by CheckWebSocket
	}

	var claims *auth.CustomClaims
	tokenResult, err := h.extractToken(c)
	switch {
	case err == nil:
		claims, err = h.authenticateUser(tokenResult.Token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if h.rateLimiter != nil {
			if err := h.rateLimiter.CheckWebSocketUser(c.Request.Context(), claims.Subject); err != nil {
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections for this user"})
				return
			}
		}
	case h.devMode:
		// Guest connection; identity is synthesized below.
		tokenResult = &tokenExtractionResult{}
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	if err := validateOrigin(c.Request, allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	conn, err := h.upgradeWebSocket(c, allowedOrigins, tokenResult)
	if err != nil {
		return
	}

	h.HandleConnection(c, conn, claims)
}

// HandleConnection takes an established WebSocket connection, builds the
// client, and starts its pumps. The connection joins rooms via events, not
// the URL.
func (h *Hub) HandleConnection(c *gin.Context, conn wsConnection, claims *auth.CustomClaims) {
	username := c.Query("username")
	identity := auth.ResolveIdentity(claims, username)
	connID := game.ConnID(uuid.NewString())

	client := newClient(conn, h.registry, connID, identity)

	metrics.IncConnection()
	logging.Info(c.Request.Context(), "Client connected",
		zap.String("connId", string(connID)),
		zap.String("displayName", identity.DisplayName),
		zap.Bool("guest", identity.Guest))

	go client.writePump()
	go client.readPump()
}

// Shutdown gracefully closes all rooms and their connections.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down Hub...")
	return h.registry.Shutdown(ctx)
}
