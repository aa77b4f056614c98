package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	domainauth "github.com/target/talentgate/internal/domain/auth"
	"github.com/target/talentgate/internal/routeaccess"
)

func loadTable(cmdCtx *commandContext) (*routeaccess.Table, error) {
	return routeaccess.Load(routeaccess.LoadOptions{Path: cmdCtx.Config.RouteTableFile})
}

func runRoutes(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("routes", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return err
	}

	table, err := loadTable(cmdCtx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 4, 2, ' ', 0)
	if err = writef(tw, "ORDER\tPREFIX\tROLES\n"); err != nil {
		return fmt.Errorf("print routes header: %w", err)
	}
	for i, rule := range table.Rules() {
		if err = writef(tw, "%d\t%s\t%s\n", i+1, rule.Prefix, rule.Roles); err != nil {
			return fmt.Errorf("print route: %w", err)
		}
	}
	if err = tw.Flush(); err != nil {
		return fmt.Errorf("flush routes: %w", err)
	}

	if err = writeln(cmdCtx.Out); err != nil {
		return err
	}
	if err = writeln(cmdCtx.Out, "Public prefixes:"); err != nil {
		return err
	}
	for _, p := range table.Public() {
		if err = writef(cmdCtx.Out, "  %s\n", p); err != nil {
			return fmt.Errorf("print public prefix: %w", err)
		}
	}
	return nil
}

type checkRouteOptions struct {
	Path  string
	Roles domainauth.Roles
}

func parseCheckRouteFlags(args []string) (checkRouteOptions, error) {
	fs := flag.NewFlagSet("check-route", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	roles := fs.String("roles", "", "comma-separated roles held by the viewer")
	if err := fs.Parse(args); err != nil {
		return checkRouteOptions{}, err
	}
	if fs.NArg() != 1 {
		return checkRouteOptions{}, errors.New("usage: check-route [--roles talent,mentor] <path>")
	}
	return checkRouteOptions{Path: fs.Arg(0), Roles: domainauth.ParseRoleList(*roles)}, nil
}

func runCheckRoute(cmdCtx *commandContext, args []string) error {
	opts, err := parseCheckRouteFlags(args)
	if err != nil {
		return err
	}
	table, err := loadTable(cmdCtx)
	if err != nil {
		return err
	}
	return printRouteCheck(cmdCtx.Out, table, opts)
}

func printRouteCheck(w io.Writer, table *routeaccess.Table, opts checkRouteOptions) error {
	if err := writef(w, "Path:      %s\n", opts.Path); err != nil {
		return err
	}
	if err := writef(w, "Roles:     %s\n", opts.Roles); err != nil {
		return err
	}
	if table.IsPublicRoute(opts.Path) {
		return writeln(w, "Decision:  public (no role check)")
	}
	rule, ok := table.Match(opts.Path)
	if !ok {
		return writeln(w, "Decision:  unprotected (no rule matches)")
	}
	if err := writef(w, "Rule:      %s %s\n", rule.Prefix, rule.Roles); err != nil {
		return err
	}
	if table.CanAccessRoute(opts.Path, opts.Roles) {
		return writeln(w, "Decision:  allowed")
	}
	return writef(w, "Decision:  denied, redirect to %s\n", routeaccess.GetRedirectForRole(opts.Roles))
}
