package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/target/talentgate/internal/adapters/devbackend"
	"github.com/target/talentgate/internal/bootstrap"
	"github.com/target/talentgate/internal/jwtverify"
)

func runInspectToken(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("inspect-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: inspect-token <jwt>")
	}
	token := strings.TrimSpace(fs.Arg(0))

	verifier, err := bootstrap.BuildVerifier(cmdCtx.Config.Auth)
	if err != nil {
		return err
	}
	return printTokenReport(cmdCtx.Out, verifier, token, time.Now())
}

func printTokenReport(w io.Writer, verifier *jwtverify.Verifier, token string, now time.Time) error {
	res := verifier.Verify(token)
	if err := writef(w, "Status:    %s\n", res.Status); err != nil {
		return err
	}
	if res.Err != nil {
		if err := writef(w, "Reason:    %v\n", res.Err); err != nil {
			return err
		}
	}

	if res.Valid() {
		if err := writef(w, "User:      %s\n", res.Claims.UserID); err != nil {
			return err
		}
		if err := writef(w, "Roles:     %s\n", res.Claims.Roles); err != nil {
			return err
		}
	} else {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
			if err = writef(w, "Subject:   %v (unverified)\n", claims["sub"]); err != nil {
				return err
			}
			if err = writef(w, "Roles:     %s (unverified)\n", verifier.ExtractRoles(claims)); err != nil {
				return err
			}
		}
	}

	exp, ok := jwtverify.PeekExpiry(token)
	if !ok {
		return writeln(w, "Expires:   unknown")
	}
	left := exp.Sub(now).Round(time.Second)
	if left <= 0 {
		return writef(w, "Expires:   %s (expired %s ago)\n", exp.UTC().Format(time.RFC3339), -left)
	}
	return writef(w, "Expires:   %s (in %s)\n", exp.UTC().Format(time.RFC3339), left)
}

func runDevAccounts(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("dev-accounts", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	seedFile := fs.String("seed", cmdCtx.Config.Backend.Dev.SeedFile, "seed YAML (defaults to the embedded seed)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var seed []byte
	if *seedFile != "" {
		b, err := os.ReadFile(*seedFile)
		if err != nil {
			return fmt.Errorf("read seed: %w", err)
		}
		seed = b
	}
	// The secret only signs tokens this process never hands out.
	dev, err := devbackend.New(devbackend.Config{Secret: "dev-accounts", Seed: seed, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}

	emails := dev.Accounts()
	sort.Strings(emails)
	for _, email := range emails {
		if err = writeln(cmdCtx.Out, email); err != nil {
			return fmt.Errorf("print account: %w", err)
		}
	}
	return nil
}
