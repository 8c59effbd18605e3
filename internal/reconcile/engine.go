// Package reconcile brings one guild member's roles into agreement with
// their current clan status, or removes them when that status is gone.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clanbridge/internal/clan"
	"clanbridge/internal/guild"
	"clanbridge/internal/platform/metrics"
	"clanbridge/internal/registry"
	dErrors "clanbridge/pkg/domain-errors"
)

// KickReason is the fixed audit-log reason attached to forced removals.
const KickReason = "Not found in the clan during verification."

// ClanSession is the slice of the clan session the engine depends on.
type ClanSession interface {
	Alive() bool
	Clan(ctx context.Context, tag string) (*clan.Snapshot, error)
	ResetAsync(ctx context.Context)
}

// Emitter posts best-effort messages to the operator log channel.
type Emitter interface {
	Emit(text string)
}

// Engine reconciles individual members. It is safe for concurrent use: all
// ledger access goes through the Ledger's own lock.
type Engine struct {
	cfg     *registry.Config
	ledger  *registry.Ledger
	session ClanSession
	guild   guild.Guild
	emitter Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics

	clanTimeout time.Duration
	kickPause   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClanTimeout bounds the roster fetch.
func WithClanTimeout(d time.Duration) Option {
	return func(e *Engine) { e.clanTimeout = d }
}

// WithKickPause sets the pause between the farewell DM and the kick, shrunk
// in tests.
func WithKickPause(d time.Duration) Option {
	return func(e *Engine) { e.kickPause = d }
}

// New constructs an Engine.
func New(cfg *registry.Config, ledger *registry.Ledger, session ClanSession, g guild.Guild, emitter Emitter, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		ledger:      ledger,
		session:     session,
		guild:       g,
		emitter:     emitter,
		logger:      slog.Default(),
		clanTimeout: 20 * time.Second,
		kickPause:   time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile fetches the clan roster, diffs the member's managed roles
// against the rank their registered tag currently holds, and applies the
// minimal correction. A tag absent from the roster removes the member's
// managed roles, deletes their ledger entry, and kicks them.
//
// Running it twice with no external change performs no mutation the second
// time. External API failures are logged and returned without touching any
// state; the next scheduled pass is the retry mechanism.
func (e *Engine) Reconcile(ctx context.Context, memberID, expectedTag string) error {
	settings := e.cfg.Current()
	if settings == nil {
		return dErrors.New(dErrors.CodeConfigIncomplete, "bot is not configured")
	}
	if !e.session.Alive() {
		return dErrors.New(dErrors.CodeExternalTransient, "clan API session not established")
	}

	snapCtx, cancel := context.WithTimeout(ctx, e.clanTimeout)
	snap, err := e.session.Clan(snapCtx, settings.ClanTag)
	cancel()
	if err != nil {
		return e.handleClanError(ctx, err, memberID)
	}

	member, err := e.guild.Member(ctx, memberID)
	if err != nil {
		return fmt.Errorf("resolve guild member %s: %w", memberID, err)
	}

	managed := settings.ManagedRoleIDs()
	var heldManaged []string
	for _, id := range member.RoleIDs {
		if _, ok := managed[id]; ok {
			heldManaged = append(heldManaged, id)
		}
	}

	if data, found := snap.MemberByTag(expectedTag); found {
		return e.alignRoles(ctx, settings, member, heldManaged, data)
	}
	return e.removeDeparted(ctx, settings, member, heldManaged, expectedTag)
}

// alignRoles handles the found branch: the member is still in the clan, so
// their managed-role set must converge to exactly the role their rank maps
// to.
func (e *Engine) alignRoles(ctx context.Context, settings *registry.Settings, member *guild.Member, heldManaged []string, data clan.Member) error {
	expectedRole, ok := settings.RoleFor(data.Role)
	if !ok {
		e.logger.Error("clan rank has no configured role mapping",
			"member", member.ID, "rank", data.Role)
		e.emitter.Emit(fmt.Sprintf("⚠️ Clan rank `%s` (member <@%s>) has no configured guild role. Check the /setup role mappings.", data.Role, member.ID))
		return nil
	}

	var stale []string
	for _, id := range heldManaged {
		if id != expectedRole {
			stale = append(stale, id)
		}
	}

	// Revokes are always attempted; grants only under hierarchy sufficiency.
	if len(stale) > 0 {
		e.logger.Info("removing stale managed roles",
			"member", member.ID, "roles", stale, "rank", data.Role)
		if err := e.guild.RemoveRoles(ctx, member.ID, stale, "Role correction during clan verification"); err != nil {
			e.logger.Error("failed to remove stale roles", "member", member.ID, "error", err)
		} else if e.metrics != nil {
			e.metrics.RolesRevoked.Add(float64(len(stale)))
		}
	}

	if member.HasRole(expectedRole) {
		return nil
	}

	above, err := e.guild.BotAbove(ctx, expectedRole)
	if err != nil {
		if errors.Is(err, guild.ErrRoleNotFound) {
			e.logger.Error("configured role missing from guild", "role", expectedRole, "rank", data.Role)
			e.emitter.Emit(fmt.Sprintf("⚠️ Configured role for rank `%s` no longer exists in the guild. Re-run /setup.", data.Role))
			return nil
		}
		return fmt.Errorf("hierarchy check for role %s: %w", expectedRole, err)
	}
	if !above {
		// Never fail loudly to the end user in the background path.
		e.logger.Warn("hierarchy insufficient to grant role",
			"member", member.ID, "role", expectedRole)
		return nil
	}

	if err := e.guild.AddRole(ctx, member.ID, expectedRole, fmt.Sprintf("Holds clan rank %s", data.Role)); err != nil {
		e.logger.Error("failed to grant role", "member", member.ID, "role", expectedRole, "error", err)
		return nil
	}
	e.logger.Info("granted role", "member", member.ID, "role", expectedRole, "rank", data.Role)
	if e.metrics != nil {
		e.metrics.RolesGranted.Inc()
	}
	return nil
}

// removeDeparted handles the not-found branch: strip managed roles, drop the
// ledger entry, notify, and kick.
func (e *Engine) removeDeparted(ctx context.Context, settings *registry.Settings, member *guild.Member, heldManaged []string, expectedTag string) error {
	e.logger.Info("member no longer in clan", "member", member.ID, "tag", expectedTag)

	if len(heldManaged) > 0 {
		if err := e.guild.RemoveRoles(ctx, member.ID, heldManaged, "No longer in the clan"); err != nil {
			e.logger.Error("failed to remove managed roles", "member", member.ID, "error", err)
		} else if e.metrics != nil {
			e.metrics.RolesRevoked.Add(float64(len(heldManaged)))
		}
	}

	removed, err := e.ledger.Remove(member.ID)
	if err != nil {
		// Roles are already gone but the durable record may still hold the
		// entry. This divergence repairs itself only partially on the next
		// pass, so it is escalated loudly.
		e.logger.Error("ledger write failed after role removal", "member", member.ID, "error", err)
		e.emitter.Emit(fmt.Sprintf("🆘 **Persistence failure:** roles for <@%s> were removed but the registration file could not be written. Manual check required.", member.ID))
		if e.metrics != nil {
			e.metrics.PersistenceFailures.Inc()
		}
	} else if removed && e.metrics != nil {
		e.metrics.RegistrationsDropped.Inc()
	}

	kickMsg := settings.KickMessage
	if kickMsg == "" {
		kickMsg = registry.DefaultKickMessage
	}
	if err := e.guild.DM(ctx, member.ID, kickMsg); err != nil {
		e.logger.Warn("could not DM member before kick", "member", member.ID, "error", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.kickPause):
	}

	if err := e.guild.Kick(ctx, member.ID, KickReason); err != nil {
		e.logger.Error("failed to kick member", "member", member.ID, "error", err)
		e.emitter.Emit(fmt.Sprintf("⚠️ Failed to kick <@%s> (`%s`). Check the bot's permissions and role hierarchy.", member.ID, member.Username))
		return nil
	}
	e.logger.Info("kicked member", "member", member.ID, "tag", expectedTag)
	e.emitter.Emit(fmt.Sprintf("👢 Member <@%s> (`%s`) was removed automatically: tag `%s` is no longer in the clan.", member.ID, member.Username, expectedTag))
	if e.metrics != nil {
		e.metrics.MembersKicked.Inc()
	}
	return nil
}

// handleClanError maps roster-fetch failures onto the recovery policy: auth
// failures trigger an asynchronous session reset, everything else waits for
// the next pass.
func (e *Engine) handleClanError(ctx context.Context, err error, memberID string) error {
	switch {
	case dErrors.HasCode(err, dErrors.CodeExternalAuth):
		e.logger.Error("clan API authentication failed during reconcile, resetting session", "member", memberID, "error", err)
		e.countAPIError("auth")
		e.session.ResetAsync(context.WithoutCancel(ctx))
	case dErrors.HasCode(err, dErrors.CodeExternalNotFound):
		e.logger.Warn("configured clan not found", "member", memberID, "error", err)
		e.countAPIError("not_found")
	default:
		e.logger.Warn("clan lookup failed", "member", memberID, "error", err)
		e.countAPIError("transient")
	}
	return err
}

func (e *Engine) countAPIError(kind string) {
	if e.metrics != nil {
		e.metrics.ClanAPIErrors.WithLabelValues(kind).Inc()
	}
}
