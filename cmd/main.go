package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/voxrelay/server/adapters/stt"
	"github.com/voxrelay/server/internal/api"
	"github.com/voxrelay/server/internal/auth"
	"github.com/voxrelay/server/internal/config"
	"github.com/voxrelay/server/internal/websocket"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load .env file, without overriding existing environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env file", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize adapters
	transcriber := stt.NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramURL, logger)
	authn := auth.NewSessionAuthenticator(cfg.SessionSecret, cfg.TokenTTL)

	// Initialize relay hub
	hub := websocket.NewHub(transcriber, cfg.ConnectTimeout, logger)
	go hub.Run()

	// Initialize API routes
	api.InitRoutes(e, hub, authn, cfg, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Relay server started",
		zap.String("addr", cfg.Addr()),
		zap.String("model", cfg.DefaultAudio.Model),
		zap.String("language", cfg.DefaultAudio.Language))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
