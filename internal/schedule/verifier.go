// Package schedule walks the registration ledger on a fixed cadence and
// re-runs reconciliation per entry, catching rank drift and departures that
// happen without any user action.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"clanbridge/internal/guild"
	"clanbridge/internal/platform/metrics"
	"clanbridge/internal/registry"
)

// Session exposes the liveness check the verifier gates each pass on.
type Session interface {
	Alive() bool
}

// Reconciler reconciles a single ledger entry.
type Reconciler interface {
	Reconcile(ctx context.Context, memberID, expectedTag string) error
}

// Verifier owns the periodic verification loop. A single instance runs per
// process and never overlaps with itself.
type Verifier struct {
	cfg        *registry.Config
	ledger     *registry.Ledger
	session    Session
	guild      guild.Guild
	reconciler Reconciler
	logger     *slog.Logger
	metrics    *metrics.Metrics

	interval time.Duration
	pacing   time.Duration

	running atomic.Bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the verifier logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithInterval overrides the pass cadence.
func WithInterval(d time.Duration) Option {
	return func(v *Verifier) { v.interval = d }
}

// WithPacing overrides the delay between ledger entries. The delay trades
// pass latency for staying inside the clan API rate limits.
func WithPacing(d time.Duration) Option {
	return func(v *Verifier) { v.pacing = d }
}

// New constructs a Verifier.
func New(cfg *registry.Config, ledger *registry.Ledger, session Session, g guild.Guild, reconciler Reconciler, opts ...Option) *Verifier {
	v := &Verifier{
		cfg:        cfg,
		ledger:     ledger,
		session:    session,
		guild:      g,
		reconciler: reconciler,
		logger:     slog.Default(),
		interval:   time.Hour,
		pacing:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run ticks until the context ends. The first pass happens one interval
// after start, matching the foreground-driven nature of fresh deployments.
func (v *Verifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v.RunPass(ctx)
		}
	}
}

// RunPass executes one verification pass. Re-entrant calls are rejected so
// a slow pass is never overlapped by the next tick.
func (v *Verifier) RunPass(ctx context.Context) {
	if !v.running.CompareAndSwap(false, true) {
		v.logger.Warn("verification pass already running, skipping tick")
		return
	}
	defer v.running.Store(false)

	if !v.session.Alive() {
		v.logger.Warn("skipping verification pass: clan API session not established")
		return
	}
	if v.cfg.Current() == nil {
		v.logger.Warn("skipping verification pass: bot not configured")
		return
	}
	if !v.guild.Connected() {
		v.logger.Warn("skipping verification pass: no guild known")
		return
	}

	// Iterate a snapshot so approvals landing mid-pass cannot corrupt the
	// walk.
	entries := v.ledger.Snapshot()
	v.logger.Info("verification pass started", "registrations", len(entries))
	start := time.Now()
	verified := 0

	for memberID, tag := range entries {
		if ctx.Err() != nil {
			v.logger.Info("verification pass cancelled")
			return
		}

		if _, err := v.guild.Member(ctx, memberID); err != nil {
			if errors.Is(err, guild.ErrMemberNotFound) {
				// The guild is the source of truth for membership: a member
				// who left takes their registration with them.
				v.logger.Warn("registered member no longer in guild, pruning",
					"member", memberID, "tag", tag)
				if _, err := v.ledger.Remove(memberID); err != nil {
					v.logger.Error("failed to persist ledger prune", "member", memberID, "error", err)
					if v.metrics != nil {
						v.metrics.PersistenceFailures.Inc()
					}
				} else if v.metrics != nil {
					v.metrics.RegistrationsDropped.Inc()
				}
				continue
			}
			v.logger.Error("member lookup failed", "member", memberID, "error", err)
			continue
		}

		if err := v.reconciler.Reconcile(ctx, memberID, tag); err != nil {
			v.logger.Warn("reconcile failed, next pass will retry",
				"member", memberID, "tag", tag, "error", err)
		}
		verified++
		if v.metrics != nil {
			v.metrics.MembersVerified.Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(v.pacing):
		}
	}

	if v.metrics != nil {
		v.metrics.ReconcilePasses.Inc()
	}
	v.logger.Info("verification pass finished",
		"verified", verified, "duration", time.Since(start))
}
