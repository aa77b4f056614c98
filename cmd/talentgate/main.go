package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/target/talentgate/config"
	"github.com/target/talentgate/internal/bootstrap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(slog.LevelInfo)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.Observability.Logging.SlogLevel())

	if err = bootstrap.EnsureDevSecret(&cfg, logger); err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	sink, closeMetrics := bootstrap.BuildMetrics(ctx, cfg.Observability.Metrics, logger)
	defer func() {
		if cerr := closeMetrics(); cerr != nil {
			logger.ErrorContext(ctx, "close metrics failed", "error", cerr)
		}
	}()

	redisClient, err := bootstrap.ConnectOptionalRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		RedisClient: redisClient,
		Metrics:     sink,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	handler, err := bootstrap.NewHTTPHandler(&cfg, services, logger)
	if err != nil {
		return err
	}

	server := bootstrap.NewHTTPServer(cfg.HTTP, handler)
	if services.Reaper == nil {
		return bootstrap.Serve(ctx, server, cfg.HTTP, logger)
	}

	// The reaper stops when the server returns.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return bootstrap.Serve(gctx, server, cfg.HTTP, logger)
	})
	g.Go(func() error { return services.Reaper.Run(gctx) })
	return g.Wait()
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting talentgate",
		"addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev,
		"backend_mode", cfg.Backend.Mode,
		"backend_url", cfg.Backend.BaseURL,
		"redis", cfg.Redis.Enabled(),
		"jwt_verification", cfg.Auth.VerificationEnabled(),
		"route_table", routeTableSource(cfg.RouteTableFile))
}

func routeTableSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
