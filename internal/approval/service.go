// Package approval implements the registration workflow: a member declares
// a clan tag, an admin approves or denies it, and approval writes the
// ledger. Requests are durable only as approval-channel messages; restarts
// reconstruct them by re-issuing /register.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"clanbridge/internal/clan"
	"clanbridge/internal/guild"
	"clanbridge/internal/platform/metrics"
	"clanbridge/internal/registry"
	dErrors "clanbridge/pkg/domain-errors"
)

// ClanSession is the slice of the clan session the workflow depends on.
type ClanSession interface {
	Alive() bool
	Clan(ctx context.Context, tag string) (*clan.Snapshot, error)
	ResetAsync(ctx context.Context)
}

// Emitter posts best-effort messages to the operator log channel.
type Emitter interface {
	Emit(text string)
}

// Reconciler runs a foreground reconcile for the already-registered
// short-circuit.
type Reconciler interface {
	Reconcile(ctx context.Context, memberID, expectedTag string) error
}

// Service drives the request/approve/deny state machine.
type Service struct {
	cfg        *registry.Config
	ledger     *registry.Ledger
	session    ClanSession
	guild      guild.Guild
	emitter    Emitter
	reconciler Reconciler
	logger     *slog.Logger
	metrics    *metrics.Metrics

	clanTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClanTimeout bounds roster fetches in the foreground command path.
func WithClanTimeout(d time.Duration) Option {
	return func(s *Service) { s.clanTimeout = d }
}

// New constructs a Service.
func New(cfg *registry.Config, ledger *registry.Ledger, session ClanSession, g guild.Guild, emitter Emitter, reconciler Reconciler, opts ...Option) *Service {
	s := &Service{
		cfg:         cfg,
		ledger:      ledger,
		session:     session,
		guild:       g,
		emitter:     emitter,
		reconciler:  reconciler,
		logger:      slog.Default(),
		clanTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request handles a self-service registration: validate the claimed tag,
// verify it against the clan roster, and post a pending request to the
// approval channel. A tag already claimed by a different member is a hard
// conflict here; only Approve may override bindings.
func (s *Service) Request(ctx context.Context, requesterID, channelID, rawTag string) (string, error) {
	settings := s.cfg.Current()
	if settings == nil {
		return "", dErrors.New(dErrors.CodeConfigIncomplete,
			"The bot is not fully configured yet. Ask an admin to run /setup.")
	}
	if !s.session.Alive() {
		return "", dErrors.New(dErrors.CodeExternalTransient,
			"The clan API connection is still being established. Try again in a minute.")
	}
	if channelID != settings.RegistrationChannelID {
		return "", dErrors.Newf(dErrors.CodeValidation,
			"Use this command in <#%s>.", settings.RegistrationChannelID)
	}

	tag := clan.NormalizeTag(rawTag)
	if !clan.ValidTag(tag) {
		return "", dErrors.Newf(dErrors.CodeValidation,
			"The tag `%s` looks invalid. Use the #TAG format.", rawTag)
	}

	if existing, ok := s.ledger.Get(requesterID); ok {
		if existing == tag {
			// Already registered with this exact tag: re-verify now instead
			// of opening a duplicate request.
			if err := s.reconciler.Reconcile(ctx, requesterID, tag); err != nil {
				s.logger.Warn("foreground reconcile after re-register failed",
					"member", requesterID, "error", err)
			}
			return fmt.Sprintf("You are already registered with the tag `%s`.", tag), nil
		}
		s.logger.Warn("registered member requesting a different tag",
			"member", requesterID, "registered", existing, "requested", tag)
	}

	if owner, ok := s.ledger.Owner(tag); ok && owner != requesterID {
		s.logger.Warn("tag already registered to another member",
			"tag", tag, "owner", owner, "requester", requesterID)
		return "", dErrors.Newf(dErrors.CodeConflict,
			"The tag `%s` is already registered to <@%s>. If this is a mistake, contact an administrator.", tag, owner)
	}

	snap, err := s.fetchClan(ctx, settings.ClanTag)
	if err != nil {
		return "", err
	}

	data, found := snap.MemberByTag(tag)
	if !found {
		s.logger.Info("requested tag not in clan", "tag", tag, "requester", requesterID)
		s.emitter.Emit(fmt.Sprintf("⚠️ Registration request from <@%s> failed: tag `%s` not found in clan `%s`.", requesterID, tag, settings.ClanTag))
		return "", dErrors.Newf(dErrors.CodeExternalNotFound,
			"No player with tag `%s` was found in clan **%s** (`%s`). Check the tag and your clan membership.",
			tag, snap.Name, settings.ClanTag)
	}

	requestID := uuid.NewString()
	pending := fmt.Sprintf(
		"📝 **Pending registration** `%s`\n\n"+
			"👤 **Member:** <@%s> (`%s`)\n"+
			"🏷️ **Tag:** `%s`\n"+
			"🔖 **In-game name:** `%s`\n"+
			"👑 **Clan rank:** %s\n\n"+
			"▶️ Approve with `/approve member:@user tag:%s`\n"+
			"❌ Deny with `/deny member:@user tag:%s reason:[optional]`",
		requestID[:8], requesterID, requesterID, tag, data.Name, clan.DisplayRank(data.Role), tag, tag)

	if err := s.guild.ChannelSend(ctx, settings.ApprovalChannelID, pending); err != nil {
		s.logger.Error("failed to post approval request", "request_id", requestID, "error", err)
		s.emitter.Emit(fmt.Sprintf("🆘 Could not post a registration request for <@%s> to the approval channel. Check my permissions.", requesterID))
		return "", dErrors.Wrap(err, dErrors.CodePermissionDenied,
			"I could not post your request to the approval channel. Contact an admin.")
	}

	s.logger.Info("registration request posted",
		"request_id", requestID, "requester", requesterID, "tag", tag, "rank", data.Role)
	return fmt.Sprintf("✅ Your registration request for `%s` (`%s`) was sent for approval. You will be notified of the outcome.", tag, data.Name), nil
}

// Approve re-validates the tag against the clan (status may have changed
// since request time), applies the mapped role, and persists the binding.
// Unlike Request, a tag held by a different member does not block: the
// binding is overwritten last-writer-wins and logged.
func (s *Service) Approve(ctx context.Context, adminID, memberID, rawTag string) (string, error) {
	settings := s.cfg.Current()
	if settings == nil {
		return "", dErrors.New(dErrors.CodeConfigIncomplete,
			"The bot is not configured. Run /setup first.")
	}
	if !s.session.Alive() {
		return "", dErrors.New(dErrors.CodeExternalTransient,
			"The clan API session is not ready. Try again shortly.")
	}

	tag := clan.NormalizeTag(rawTag)
	if !clan.ValidTag(tag) {
		return "", dErrors.Newf(dErrors.CodeValidation, "The tag `%s` looks invalid.", rawTag)
	}

	var overwritten string
	if owner, ok := s.ledger.Owner(tag); ok && owner != memberID {
		// Admin override: the previous binding is superseded, not revoked.
		s.logger.Warn("approval overwrites existing binding",
			"tag", tag, "previous", owner, "member", memberID, "admin", adminID)
		overwritten = owner
	}

	snap, err := s.fetchClan(ctx, settings.ClanTag)
	if err != nil {
		return "", err
	}

	data, found := snap.MemberByTag(tag)
	if !found {
		s.emitter.Emit(fmt.Sprintf("❌ Approval by <@%s> failed: <@%s> (tag `%s`) is not in clan `%s` right now.", adminID, memberID, tag, settings.ClanTag))
		return "", dErrors.Newf(dErrors.CodeExternalNotFound,
			"Player `%s` is **not in the clan right now**. Ask the member to register again once they rejoin.", tag)
	}

	roleID, ok := settings.RoleFor(data.Role)
	if !ok {
		s.emitter.Emit(fmt.Sprintf("⚠️ Approval failed: clan rank `%s` has no configured guild role (member <@%s>, tag `%s`).", data.Role, memberID, tag))
		return "", dErrors.Newf(dErrors.CodeConfigIncomplete,
			"The clan rank `%s` has no configured guild role. Check the /setup role mappings.", data.Role)
	}

	roleName, err := s.guild.RoleName(ctx, roleID)
	if err != nil {
		if errors.Is(err, guild.ErrRoleNotFound) {
			s.emitter.Emit(fmt.Sprintf("🆘 Approval failed: configured role `%s` for rank `%s` no longer exists.", roleID, data.Role))
			return "", dErrors.Newf(dErrors.CodeConfigIncomplete,
				"The configured role for rank `%s` no longer exists in this guild. Re-run /setup.", data.Role)
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "role lookup failed")
	}

	above, err := s.guild.BotAbove(ctx, roleID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "hierarchy check failed")
	}
	if !above {
		return "", dErrors.Newf(dErrors.CodePermissionDenied,
			"I cannot assign **%s** because my highest role is not above it. Move my role up and retry.", roleName)
	}

	member, err := s.guild.Member(ctx, memberID)
	if err != nil {
		if errors.Is(err, guild.ErrMemberNotFound) {
			return "", dErrors.New(dErrors.CodeValidation, "That member is no longer in this guild.")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "member lookup failed")
	}

	managed := settings.ManagedRoleIDs()
	var stale []string
	for _, id := range member.RoleIDs {
		if _, isManaged := managed[id]; isManaged && id != roleID {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.guild.RemoveRoles(ctx, memberID, stale, fmt.Sprintf("Stale roles cleared before approval by %s", adminID)); err != nil {
			s.logger.Error("failed to clear stale roles during approval", "member", memberID, "error", err)
		} else if s.metrics != nil {
			s.metrics.RolesRevoked.Add(float64(len(stale)))
		}
	}

	if !member.HasRole(roleID) {
		if err := s.guild.AddRole(ctx, memberID, roleID, fmt.Sprintf("Registration approved by %s, tag %s", adminID, tag)); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodePermissionDenied,
				"I could not assign the role. Check my permissions and the role hierarchy.")
		}
		if s.metrics != nil {
			s.metrics.RolesGranted.Inc()
		}
	}

	if err := s.ledger.Assign(memberID, tag); err != nil {
		// The role is already granted; the durable record is not. Loudest
		// possible escalation short of crashing.
		s.logger.Error("ledger write failed after approval", "member", memberID, "tag", tag, "error", err)
		s.emitter.Emit(fmt.Sprintf("🆘 **Persistence failure:** approval of <@%s> (`%s`) granted the role but the registration file could not be written!", memberID, tag))
		if s.metrics != nil {
			s.metrics.PersistenceFailures.Inc()
		}
		return "", dErrors.Wrap(err, dErrors.CodePersistence,
			"The role was granted but saving the registration failed. The registration may be lost on restart.")
	}

	s.logger.Info("registration approved",
		"admin", adminID, "member", memberID, "tag", tag, "rank", data.Role)

	logMsg := fmt.Sprintf("✅ <@%s> approved the registration of <@%s> (`%s`) with tag `%s` as **%s**.",
		adminID, memberID, memberID, tag, clan.DisplayRank(data.Role))
	if overwritten != "" {
		logMsg += fmt.Sprintf(" (Overwrote the previous binding of <@%s>.)", overwritten)
	}
	s.emitter.Emit(logMsg)

	if err := s.guild.DM(ctx, memberID, fmt.Sprintf(
		"🎉 Your registration in **%s** was approved! You received the **%s** role for tag `%s` (`%s`).",
		s.guild.Name(), roleName, tag, data.Name)); err != nil {
		s.logger.Warn("could not DM approval notice", "member", memberID, "error", err)
	}

	reply := fmt.Sprintf("✅ Registered <@%s> with tag `%s` (`%s`) as **%s**.", memberID, tag, data.Name, roleName)
	if overwritten != "" {
		reply += fmt.Sprintf("\n⚠️ This tag was previously registered to <@%s>; the binding was overwritten.", overwritten)
	}
	return reply, nil
}

// Deny rejects a pending request. Purely a notification action: the ledger
// is never touched.
func (s *Service) Deny(ctx context.Context, adminID, memberID, rawTag, reason string) string {
	tag := clan.NormalizeTag(rawTag)

	s.logger.Info("registration denied",
		"admin", adminID, "member", memberID, "tag", tag, "reason", reason)

	logMsg := fmt.Sprintf("❌ <@%s> denied the registration request of <@%s> (`%s`) for tag `%s`.", adminID, memberID, memberID, tag)
	if reason != "" {
		logMsg += "\n> Reason: " + reason
	}
	s.emitter.Emit(logMsg)

	dm := fmt.Sprintf("ℹ️ Your registration request in **%s** for tag `%s` was denied by an administrator.", s.guild.Name(), tag)
	if reason != "" {
		dm += "\n\n**Reason:** " + reason
	}
	if err := s.guild.DM(ctx, memberID, dm); err != nil {
		s.logger.Warn("could not DM denial notice", "member", memberID, "error", err)
	}

	return fmt.Sprintf("✅ Denied the registration request of <@%s> for tag `%s`.", memberID, tag)
}

// fetchClan wraps the roster read with the foreground timeout and the
// shared error policy: auth failures kick off a session reset and report a
// transient problem to the caller.
func (s *Service) fetchClan(ctx context.Context, clanTag string) (*clan.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.clanTimeout)
	defer cancel()

	snap, err := s.session.Clan(fetchCtx, clanTag)
	if err == nil {
		return snap, nil
	}
	switch {
	case dErrors.HasCode(err, dErrors.CodeExternalAuth):
		s.logger.Error("clan API authentication failed, resetting session", "error", err)
		s.session.ResetAsync(context.WithoutCancel(ctx))
		return nil, dErrors.New(dErrors.CodeExternalTransient,
			"Temporary clan API connection problem. Please try again in a moment.")
	case dErrors.HasCode(err, dErrors.CodeExternalNotFound):
		s.logger.Error("configured clan not found", "clan", clanTag, "error", err)
		return nil, dErrors.Newf(dErrors.CodeExternalNotFound,
			"The configured clan `%s` was not found. Ask an admin to verify the /setup clan tag.", clanTag)
	default:
		s.logger.Warn("clan lookup failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeExternalTransient,
			"The clan API did not respond in time. Try again later.")
	}
}
