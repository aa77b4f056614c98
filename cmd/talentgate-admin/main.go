package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/target/talentgate/config"
	"github.com/target/talentgate/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
	In     io.Reader

	// connectRedis is swapped out in tests.
	connectRedis func(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error)
}

func main() {
	logger := bootstrap.InitLogger(slog.LevelInfo)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := newCommandContext(context.Background(), logger, cfg)
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newCommandContext(ctx context.Context, logger *slog.Logger, cfg config.AppConfig) *commandContext {
	return &commandContext{
		Ctx:          ctx,
		Logger:       logger,
		Config:       cfg,
		Out:          os.Stdout,
		In:           os.Stdin,
		connectRedis: bootstrap.ConnectOptionalRedis,
	}
}

func commands() map[string]command {
	return map[string]command{
		"routes": {
			name:        "routes",
			description: "Print the route access table in match order",
			run:         runRoutes,
		},
		"check-route": {
			name:        "check-route",
			description: "Explain how a path is gated for a set of roles",
			run:         runCheckRoute,
		},
		"inspect-token": {
			name:        "inspect-token",
			description: "Decode an access token and verify it with JWT_SECRET when set",
			run:         runInspectToken,
		},
		"dev-accounts": {
			name:        "dev-accounts",
			description: "List the accounts seeded into the in-process dev backend",
			run:         runDevAccounts,
		},
		"list-sessions": {
			name:        "list-sessions",
			description: "List device sessions stored in Redis",
			run:         runListSessions,
		},
		"session-show": {
			name:        "session-show",
			description: "Show the stored session for one device",
			run:         runSessionShow,
		},
		"session-clear": {
			name:        "session-clear",
			description: "Delete the stored session for one device",
			run:         runSessionClear,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: talentgate-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-18s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
