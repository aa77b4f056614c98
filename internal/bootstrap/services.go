package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/talentgate/config"
	"github.com/target/talentgate/internal/adapters/reaper"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/observability/statsd"
	"github.com/target/talentgate/internal/ports"
	"github.com/target/talentgate/internal/routeaccess"
	"github.com/target/talentgate/internal/service"
	"github.com/target/talentgate/internal/tokenstore"
)

// ServiceContainer holds the wired application services and the adapters behind them.
type ServiceContainer struct {
	Auth     *service.AuthService
	Viewer   *service.ViewerService
	Switcher *service.RoleSwitcher

	Table    *routeaccess.Table
	Verifier *jwtverify.Verifier
	Tokens   tokenstore.Backend
	Cache    ports.CacheRepository
	Backend  Backend
	Metrics  statsd.Sink
	// Reaper is nil when nothing needs sweeping: Redis-backed stores in dev backend mode.
	Reaper *reaper.Runner
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// NewServices builds the adapters and services described by the configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := deps.Metrics
	if sink == nil {
		sink = statsd.Discard
	}

	table, err := routeaccess.Load(routeaccess.LoadOptions{Path: cfg.RouteTableFile})
	if err != nil {
		return ServiceContainer{}, err
	}
	if cfg.RouteTableFile != "" {
		logger.Info("route table loaded", "path", cfg.RouteTableFile, "rules", len(table.Rules()))
	}

	verifier, err := BuildVerifier(cfg.Auth)
	if err != nil {
		return ServiceContainer{}, err
	}

	backend, err := BuildBackend(BackendDeps{
		Backend: cfg.Backend,
		Auth:    cfg.Auth,
		Metrics: sink,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build backend: %w", err)
	}

	cache := BuildCache(deps.RedisClient, cfg)
	auth := service.NewAuthService(service.AuthServiceOptions{
		API:         backend.Auth,
		Verifier:    verifier,
		Metrics:     sink,
		Logger:      logger,
		RefreshSkew: cfg.Auth.RefreshSkew,
	})
	viewer := service.NewViewerService(service.ViewerServiceOptions{
		Auth:      auth,
		Profiles:  backend.Profiles,
		Cache:     cache,
		FreshFor:  cfg.Cache.ProfileFresh,
		RetainFor: cfg.Cache.ProfileRetain,
		Logger:    logger,
	})

	tokens := BuildTokenBackend(deps.RedisClient, cfg, logger)
	var cookies reaper.IdlePruner
	if backend.Client != nil {
		cookies = backend.Client
	}
	sweeper, err := BuildReaper(ReaperDeps{
		Tokens:   tokens,
		Cache:    cache,
		Cookies:  cookies,
		MaxIdle:  cfg.Auth.SessionTTL,
		Interval: cfg.Cache.SweepInterval,
		Metrics:  sink,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{
		Auth:     auth,
		Viewer:   viewer,
		Switcher: service.NewRoleSwitcher(service.RoleSwitcherOptions{Auth: auth, Viewer: viewer, Logger: logger}),
		Table:    table,
		Verifier: verifier,
		Tokens:   tokens,
		Cache:    cache,
		Backend:  backend,
		Metrics:  sink,
		Reaper:   sweeper,
	}, nil
}
