package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/talentgate/config"
	"github.com/target/talentgate/internal/adapters/devbackend"
	httpx "github.com/target/talentgate/internal/http"
)

// NewHTTPHandler builds the router and middleware stack for the configured services.
func NewHTTPHandler(cfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) (http.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gate := httpx.NewGate(httpx.GateConfig{
		Table:    services.Table,
		Verifier: services.Verifier,
		Metrics:  services.Metrics,
		Logger:   logger,
	})

	var compression *httpx.CompressionConfig
	if cfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", cfg.HTTP.CompressionLevel)
		compression = &httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel, Logger: logger}
	}

	var extra map[string]http.Handler
	if dev := services.Backend.Dev; dev != nil && cfg.Backend.Dev.OAuthEnabled {
		extra = map[string]http.Handler{"GET " + devbackend.OAuthPath: dev.OAuthHandler("/")}
		logger.Info("dev OAuth simulator mounted", "pattern", devbackend.OAuthPath)
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:          services.Auth,
		Viewer:        services.Viewer,
		Switcher:      services.Switcher,
		Table:         services.Table,
		Gate:          gate,
		Tokens:        services.Tokens,
		Cache:         services.Cache,
		TemplateDir:   cfg.HTTP.TemplateDir,
		CookieDomain:  cfg.HTTP.CookieDomain,
		SecureCookies: cfg.HTTP.SecureCookies,
		CSRF:          cfg.HTTP.CSRFEnabled,
		Compression:   compression,
		Extra:         extra,
		Logger:        logger,
	})
}

// NewHTTPServer wraps handler in a server with the configured timeouts.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Serve runs server until ctx is done, SIGINT/SIGTERM arrives, or the listener fails, then
// shuts it down gracefully.
func Serve(ctx context.Context, server *http.Server, httpCfg config.HTTPConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
		logger.Info("shutting down HTTP server")
	case <-ctx.Done():
		logger.Info("shutting down HTTP server", "reason", ctx.Err())
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		logger.Error("HTTP server failed", "error", err)
		serveErr = err
	}

	if err := ShutdownHTTPServer(ShutdownConfig{
		Server:  server,
		Timeout: httpCfg.ShutdownTimeout,
		Logger:  logger,
	}); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Shutdown runs on a fresh context so an already-canceled parent does not cut it short.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}
	return nil
}
