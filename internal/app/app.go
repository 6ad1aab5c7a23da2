// Package app provides application lifecycle management for the bridge.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/toolhive-registry-bridge/internal/config"
)

// BridgeApp encapsulates all components needed to run the bridge.
// It provides lifecycle management and graceful shutdown capabilities.
type BridgeApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the coordinator in the background and then the HTTP server.
// This method blocks until the HTTP server stops or encounters an error.
func (app *BridgeApp) Start() error {
	go func() {
		if err := app.components.Coordinator.Start(app.ctx); err != nil {
			slog.Error("Bridge coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// Channels are closed before the HTTP server shuts down; the sink and telemetry are released last.
func (app *BridgeApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down bridge")

	if err := app.components.Coordinator.Stop(); err != nil {
		slog.Error("Failed to stop bridge coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	app.components.release(shutdownCtx)

	slog.Info("Bridge shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *BridgeApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *BridgeApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the wired components
func (app *BridgeApp) GetComponents() *AppComponents {
	return app.components
}
