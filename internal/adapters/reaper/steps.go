package reaper

import (
	"context"
	"time"
)

// IdlePruner drops records not used since a cutoff.
type IdlePruner interface {
	PruneIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpiredPurger drops entries whose TTL has passed.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// IdleStep removes records of p idle for longer than maxIdle.
func IdleStep(name string, p IdlePruner, maxIdle time.Duration) Step {
	return Step{Name: name, Sweep: func(ctx context.Context, now time.Time) (int64, error) {
		return p.PruneIdle(ctx, now.Add(-maxIdle))
	}}
}

// SessionStep removes device sessions idle for longer than maxIdle.
func SessionStep(p IdlePruner, maxIdle time.Duration) Step {
	return IdleStep("sessions", p, maxIdle)
}

// CookieStep removes backend cookie jars of devices idle for longer than maxIdle.
func CookieStep(p IdlePruner, maxIdle time.Duration) Step {
	return IdleStep("backend_cookies", p, maxIdle)
}

// CacheStep removes expired profile cache entries.
func CacheStep(p ExpiredPurger) Step {
	return Step{Name: "profile_cache", Sweep: func(ctx context.Context, _ time.Time) (int64, error) {
		return p.PurgeExpired(ctx)
	}}
}
