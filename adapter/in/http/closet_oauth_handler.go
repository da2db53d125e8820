package http

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"closet_server/core/service/token"
	"closet_server/pkg/cache"
	"closet_server/pkg/logger"
	"closet_server/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	oauthStateKey = "oauth:state:"
	oauthStateTTL = 10 * time.Minute
)

// OAuthHandler exposes the Gmail connect/disconnect flow.
type OAuthHandler struct {
	tokens     *token.Service
	stateCache *cache.RedisCache
}

// NewOAuthHandler creates the handler. stateCache may be nil; the state
// then falls back to carrying the user id without replay protection.
func NewOAuthHandler(tokens *token.Service, stateCache *cache.RedisCache) *OAuthHandler {
	return &OAuthHandler{tokens: tokens, stateCache: stateCache}
}

// Register mounts the authenticated routes. The callback is mounted
// separately without auth because Google redirects the browser there.
func (h *OAuthHandler) Register(app fiber.Router) {
	auth := app.Group("/auth/gmail")
	auth.Get("/connect", h.Connect)
	auth.Get("/status", h.Status)
	auth.Post("/refresh", h.ForceRefresh)
	app.Delete("/auth/gmail", h.Disconnect)
}

// Connect returns the consent URL the client should open.
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return response.InternalError(c, "failed to generate state")
	}
	state := userID.String() + ":" + hex.EncodeToString(nonce)

	if h.stateCache != nil {
		if err := h.stateCache.Set(c.Context(), oauthStateKey+state, userID.String(), oauthStateTTL); err != nil {
			logger.WithError(err).Error("[OAuthHandler.Connect] Failed to store state")
			return response.InternalError(c, "failed to store state")
		}
	}

	return response.OK(c, fiber.Map{
		"auth_url": h.tokens.BuildAuthURL(state),
		"state":    state,
	})
}

// Callback handles the provider redirect and stores the credential.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("[OAuthHandler.Callback] Provider error: %s", errParam)
		return response.BadRequest(c, "oauth error: "+errParam)
	}
	if code == "" {
		return response.BadRequest(c, "missing code")
	}
	if state == "" {
		return response.BadRequest(c, "missing state")
	}

	userID, err := h.resolveState(c, state)
	if err != nil {
		logger.WithError(err).Warn("[OAuthHandler.Callback] State validation failed")
		return response.BadRequest(c, "invalid state")
	}

	cred, err := h.tokens.HandleCallback(c.Context(), userID, code)
	if err != nil {
		logger.WithError(err).Error("[OAuthHandler.Callback] Callback handling failed")
		return AppErrorResponse(c, err)
	}

	return response.OK(c, fiber.Map{
		"connected": true,
		"email":     cred.Email,
	})
}

// Status reports the current connection state.
func (h *OAuthHandler) Status(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	status, err := h.tokens.Status(c.Context(), userID.String())
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, status)
}

// ForceRefresh refreshes the access token regardless of expiry, for
// operator-triggered recovery.
func (h *OAuthHandler) ForceRefresh(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	if err := h.tokens.ForceRefresh(c.Context(), userID.String()); err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, fiber.Map{"refreshed": true})
}

// Disconnect drops the stored credential. Idempotent.
func (h *OAuthHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	if err := h.tokens.Disconnect(c.Context(), userID.String()); err != nil {
		return AppErrorResponse(c, err)
	}
	return response.NoContent(c)
}

// resolveState validates the state against the cache when available and
// falls back to the embedded user id otherwise.
func (h *OAuthHandler) resolveState(c *fiber.Ctx, state string) (uuid.UUID, error) {
	if h.stateCache != nil {
		stored, err := h.stateCache.Get(c.Context(), oauthStateKey+state)
		if err != nil {
			return uuid.Nil, err
		}
		// One-shot: a replayed state must not validate again.
		if delErr := h.stateCache.Delete(c.Context(), oauthStateKey+state); delErr != nil {
			logger.Debug("[OAuthHandler] Failed to delete used state: %v", delErr)
		}
		return uuid.Parse(stored)
	}

	parts := strings.SplitN(state, ":", 2)
	return uuid.Parse(parts[0])
}
