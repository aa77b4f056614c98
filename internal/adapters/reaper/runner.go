// Package reaper sweeps the in-process fallbacks (memory device sessions, local profile
// cache) so they stay bounded when Redis is not configured.
package reaper

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	obserrors "github.com/target/talentgate/internal/observability/errors"
	"github.com/target/talentgate/internal/observability/statsd"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 5 * time.Minute

// SweepFunc removes stale entries and reports how many were dropped.
type SweepFunc func(ctx context.Context, now time.Time) (int64, error)

// Step is one named sweep.
type Step struct {
	Name  string
	Sweep SweepFunc
}

// Options configures NewRunner.
type Options struct {
	Steps    []Step
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Now      func() time.Time
}

// Runner runs its steps once at start and then on every tick until the context ends.
type Runner struct {
	steps    []Step
	interval time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time
}

// NewRunner validates opts and builds a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if len(opts.Steps) == 0 {
		return nil, errors.New("at least one sweep step is required")
	}
	for i, s := range opts.Steps {
		if s.Name == "" || s.Sweep == nil {
			return nil, fmt.Errorf("sweep step %d needs a name and a function", i)
		}
	}
	r := &Runner{
		steps:    append([]Step(nil), opts.Steps...),
		interval: opts.Interval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "reaper")
	if r.metrics == nil {
		r.metrics = statsd.Discard
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Run blocks until ctx is canceled. Cancellation is a clean stop and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper", "interval", r.interval, "steps", len(r.steps))
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs every step once. Failures are logged and counted; later steps still run.
func (r *Runner) Sweep(ctx context.Context) map[string]int64 {
	now := r.now()
	out := make(map[string]int64, len(r.steps))
	for _, s := range r.steps {
		start := time.Now()
		n, err := s.Sweep(ctx, now)
		tags := map[string]string{"step": s.Name, "result": "ok"}
		if err != nil {
			tags["result"] = "error"
			tags["error_class"] = obserrors.Classify(err)
			r.logger.ErrorContext(ctx, "sweep failed", "step", s.Name, "error", err)
		} else if n > 0 {
			r.logger.DebugContext(ctx, "sweep removed entries", "step", s.Name, "removed", n)
		}
		r.metrics.Count("reaper.removed", n, tags)
		r.metrics.Timing("reaper.duration", time.Since(start), tags)
		out[s.Name] = n
	}
	return out
}

// waitWithJitter spreads the first sweep of replicas started together.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
