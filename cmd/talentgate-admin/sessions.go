package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	redisadapter "github.com/target/talentgate/internal/adapters/redis"
	"github.com/target/talentgate/internal/jwtverify"
	"github.com/target/talentgate/internal/tokenstore"
)

var errRedisNotConfigured = errors.New("redis not configured; device sessions live in the server's memory")

// withTokenBackend connects to Redis and runs fn against the device session backend.
func withTokenBackend(cmdCtx *commandContext, fn func(ctx context.Context, b *redisadapter.TokenBackend) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	client, err := cmdCtx.connectRedis(ctx, cmdCtx.Config.Redis, cmdCtx.Logger)
	if err != nil {
		return err
	}
	if client == nil {
		return errRedisNotConfigured
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	backend := redisadapter.NewTokenBackend(client, redisadapter.TokenBackendOptions{
		Prefix: cmdCtx.Config.Redis.KeyPrefix + "device:",
		TTL:    cmdCtx.Config.Auth.SessionTTL,
	})
	return fn(ctx, backend)
}

func runListSessions(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-sessions", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 100, "maximum number of devices to list (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withTokenBackend(cmdCtx, func(ctx context.Context, b *redisadapter.TokenBackend) error {
		ids, err := b.Devices(ctx, *limit)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return writeln(cmdCtx.Out, "No device sessions stored")
		}

		tw := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
		if err = writef(tw, "DEVICE\tUSER\tROLE\tSIGNED IN\tTTL\n"); err != nil {
			return err
		}
		for _, id := range ids {
			sess, loadErr := b.Load(ctx, id)
			if errors.Is(loadErr, tokenstore.ErrNotFound) {
				continue
			}
			if loadErr != nil {
				return loadErr
			}
			ttl, ttlErr := b.TTL(ctx, id)
			if ttlErr != nil {
				return ttlErr
			}
			if err = writef(tw, "%s\t%s\t%s\t%t\t%s\n",
				id, orDash(sess.UserID), orDash(string(sess.ActiveRole)), sess.Authenticated(), ttl.Round(time.Second)); err != nil {
				return err
			}
		}
		return tw.Flush()
	})
}

func runSessionShow(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("session-show", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: session-show <device-id>")
	}
	deviceID := fs.Arg(0)

	return withTokenBackend(cmdCtx, func(ctx context.Context, b *redisadapter.TokenBackend) error {
		sess, err := b.Load(ctx, deviceID)
		if errors.Is(err, tokenstore.ErrNotFound) {
			return writef(cmdCtx.Out, "No session stored for device %s\n", deviceID)
		}
		if err != nil {
			return err
		}
		ttl, err := b.TTL(ctx, deviceID)
		if err != nil {
			return err
		}

		lines := []struct{ k, v string }{
			{"Device", sess.DeviceID},
			{"User", orDash(sess.UserID)},
			{"Active role", orDash(string(sess.ActiveRole))},
			{"Access token", redact(sess.AccessToken)},
			{"Refresh token", redact(sess.RefreshToken)},
			{"Access expires", tokenExpiry(sess.AccessToken)},
			{"Updated", sess.UpdatedAt.UTC().Format(time.RFC3339)},
			{"Record TTL", ttl.Round(time.Second).String()},
		}
		for _, l := range lines {
			if err = writef(cmdCtx.Out, "%-15s %s\n", l.k+":", l.v); err != nil {
				return err
			}
		}
		return nil
	})
}

func runSessionClear(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("session-clear", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: session-clear [--yes] <device-id>")
	}
	deviceID := fs.Arg(0)

	if !*yes {
		ok, err := confirm(cmdCtx, fmt.Sprintf("About to sign out device %s.", deviceID))
		if err != nil {
			return err
		}
		if !ok {
			return writeln(cmdCtx.Out, "Aborted")
		}
	}

	return withTokenBackend(cmdCtx, func(ctx context.Context, b *redisadapter.TokenBackend) error {
		if err := b.Delete(ctx, deviceID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		cmdCtx.Logger.Info("device session cleared", "device_id", deviceID)
		return writef(cmdCtx.Out, "Cleared session for device %s\n", deviceID)
	})
}

func confirm(cmdCtx *commandContext, prompt string) (bool, error) {
	if err := writef(cmdCtx.Out, "%s\nContinue? [y/N]: ", prompt); err != nil {
		return false, fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := bufio.NewReader(cmdCtx.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	return resp == "y" || resp == "yes", nil
}

func redact(token string) string {
	if token == "" {
		return "-"
	}
	if len(token) <= 12 {
		return "****"
	}
	return token[:6] + "…" + token[len(token)-4:]
}

func tokenExpiry(token string) string {
	exp, ok := jwtverify.PeekExpiry(token)
	if !ok {
		return "-"
	}
	return exp.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
