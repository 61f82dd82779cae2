package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voxrelay/server/internal/auth"
	"github.com/voxrelay/server/internal/config"
	"github.com/voxrelay/server/internal/websocket"
)

// metadataFile describes this deployment, served verbatim from its [meta]
// table.
const metadataFile = "deepgram.toml"

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, authn *auth.SessionAuthenticator, cfg *config.Config, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voxrelay-server",
		})
	})

	// Prometheus scrape endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session token issuance, unprotected by design: the token only
	// gates the WebSocket endpoint against drive-by connections.
	e.GET("/api/session", func(c echo.Context) error {
		return getSession(c, authn, logger)
	})

	e.GET("/api/metadata", func(c echo.Context) error {
		return getMetadata(c, logger)
	})

	// WebSocket endpoint with session token validation
	e.GET("/api/live-transcription", func(c echo.Context) error {
		return liveTranscription(hub, c, authn, cfg, logger)
	})
}

func getSession(c echo.Context, authn *auth.SessionAuthenticator, logger *zap.Logger) error {
	token, err := authn.IssueToken()
	if err != nil {
		logger.Error("Failed to issue session token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	return c.JSON(http.StatusOK, SessionTokenResponse{Token: token})
}

func getMetadata(c echo.Context, logger *zap.Logger) error {
	data, err := os.ReadFile(metadataFile)
	if err != nil {
		logger.Error("Failed to read metadata file", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "INTERNAL_SERVER_ERROR",
			Message: metadataFile + " file not found",
		})
	}

	var doc struct {
		Meta map[string]interface{} `toml:"meta"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		logger.Error("Failed to parse metadata file", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "INTERNAL_SERVER_ERROR",
			Message: "Failed to read metadata from " + metadataFile,
		})
	}

	if doc.Meta == nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "INTERNAL_SERVER_ERROR",
			Message: "Missing [meta] section in " + metadataFile,
		})
	}

	return c.JSON(http.StatusOK, doc.Meta)
}

// liveTranscription validates the token carried in the WebSocket
// subprotocol list and hands the connection to the relay hub.
func liveTranscription(hub *websocket.Hub, c echo.Context, authn *auth.SessionAuthenticator, cfg *config.Config, logger *zap.Logger) error {
	proto, err := authn.NegotiateSubprotocol(c.Request().Header.Get("Sec-WebSocket-Protocol"))
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			logger.Warn("WebSocket connection rejected: missing token")
		} else {
			logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		}
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "A valid session token is required",
		})
	}

	return websocket.HandleWebSocket(hub, c, cfg.DefaultAudio, proto, logger)
}
