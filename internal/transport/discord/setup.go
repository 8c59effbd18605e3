package discordtransport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"clanbridge/internal/clan"
	"clanbridge/internal/guild"
	"clanbridge/internal/registry"
	domainerrors "clanbridge/pkg/domain-errors"
)

// ClanSession is the clan API surface setup uses to verify the linked tag.
type ClanSession interface {
	Alive() bool
	Clan(ctx context.Context, tag string) (*clan.Snapshot, error)
}

// Emitter publishes operational announcements to the log channel.
type Emitter interface {
	Emit(text string)
}

// Setup validates and applies the server configuration.
type Setup struct {
	cfg     *registry.Config
	guild   guild.Guild
	session ClanSession
	emitter Emitter
	logger  *slog.Logger
}

// NewSetup constructs the setup service.
func NewSetup(cfg *registry.Config, g guild.Guild, session ClanSession, emitter Emitter, logger *slog.Logger) *Setup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Setup{cfg: cfg, guild: g, session: session, emitter: emitter, logger: logger}
}

type setupParams struct {
	ClanTag             string
	RegistrationChannel string
	LogChannel          string
	ApprovalChannel     string
	MemberRole          string
	ElderRole           string
	CoLeaderRole        string
	KickMessage         string
}

func setupParamsFrom(opts []*discordgo.ApplicationCommandInteractionDataOption) setupParams {
	return setupParams{
		ClanTag:             optString(opts, "clan-tag"),
		RegistrationChannel: optChannel(opts, "registration-channel"),
		LogChannel:          optChannel(opts, "log-channel"),
		ApprovalChannel:     optChannel(opts, "approval-channel"),
		MemberRole:          optRole(opts, "member-role"),
		ElderRole:           optRole(opts, "elder-role"),
		CoLeaderRole:        optRole(opts, "coleader-role"),
		KickMessage:         optString(opts, "kick-message"),
	}
}

// Apply validates every referenced channel and role against the bot's actual
// permissions before any of it is persisted, so a half-working configuration
// can never be saved.
func (s *Setup) Apply(ctx context.Context, adminID string, p setupParams) (string, error) {
	tag := clan.NormalizeTag(p.ClanTag)
	if !clan.ValidTag(tag) {
		return "", domainerrors.Newf(domainerrors.CodeValidation,
			"%q is not a valid clan tag.", p.ClanTag)
	}

	clanName := tag
	if snap, err := s.verifyClan(ctx, tag); err != nil {
		return "", err
	} else if snap != nil {
		clanName = fmt.Sprintf("%s (%s)", snap.Name, tag)
	}

	channels := []struct{ label, id string }{
		{"registration", p.RegistrationChannel},
		{"log", p.LogChannel},
		{"approval", p.ApprovalChannel},
	}
	for _, ch := range channels {
		ok, err := s.guild.CanSend(ctx, ch.id)
		if err != nil {
			return "", domainerrors.Wrap(err, domainerrors.CodeInternal,
				fmt.Sprintf("failed to inspect the %s channel", ch.label))
		}
		if !ok {
			return "", domainerrors.Newf(domainerrors.CodePermissionDenied,
				"I can't send messages in <#%s>, pick another %s channel or adjust my permissions.", ch.id, ch.label)
		}
	}

	roles := []struct{ label, id string }{
		{"member", p.MemberRole},
		{"elder", p.ElderRole},
		{"co-leader", p.CoLeaderRole},
	}
	var roleNames []string
	for _, r := range roles {
		name, err := s.guild.RoleName(ctx, r.id)
		if err != nil {
			return "", domainerrors.Newf(domainerrors.CodeValidation,
				"the %s role does not exist in this server.", r.label)
		}
		above, err := s.guild.BotAbove(ctx, r.id)
		if err != nil {
			return "", domainerrors.Wrap(err, domainerrors.CodeInternal,
				fmt.Sprintf("failed to inspect the %s role", r.label))
		}
		if !above {
			return "", domainerrors.Newf(domainerrors.CodePermissionDenied,
				"my highest role sits below %q, so I would be unable to manage it. Move my role above it and retry.", name)
		}
		roleNames = append(roleNames, name)
	}

	settings := registry.Settings{
		ClanTag:               tag,
		RegistrationChannelID: p.RegistrationChannel,
		LogChannelID:          p.LogChannel,
		ApprovalChannelID:     p.ApprovalChannel,
		Roles: registry.RoleMap{
			Member:   p.MemberRole,
			Admin:    p.ElderRole,
			Elder:    p.ElderRole,
			CoLeader: p.CoLeaderRole,
			Leader:   p.CoLeaderRole,
		},
		KickMessage: strings.TrimSpace(p.KickMessage),
	}
	if settings.KickMessage == "" {
		settings.KickMessage = registry.DefaultKickMessage
	}

	if err := s.cfg.Replace(settings); err != nil {
		return "", err
	}

	s.logger.Info("configuration replaced",
		"admin", adminID, "clan", tag, "roles", roleNames)
	s.emitter.Emit(fmt.Sprintf("⚙️ <@%s> linked this server to clan %s.", adminID, clanName))

	return fmt.Sprintf("Configuration saved. This server is now linked to clan %s; "+
		"members can register in <#%s>.", clanName, p.RegistrationChannel), nil
}

// verifyClan checks the tag against the clan API when a session is
// available. A transient outage does not block setup, only a definitive
// not-found does.
func (s *Setup) verifyClan(ctx context.Context, tag string) (*clan.Snapshot, error) {
	if !s.session.Alive() {
		s.logger.Warn("clan API session down, saving configuration unverified", "clan", tag)
		return nil, nil
	}
	snap, err := s.session.Clan(ctx, tag)
	switch {
	case err == nil:
		return snap, nil
	case domainerrors.HasCode(err, domainerrors.CodeExternalNotFound):
		return nil, domainerrors.Newf(domainerrors.CodeValidation,
			"no clan with tag %s exists.", tag)
	default:
		s.logger.Warn("clan lookup failed, saving configuration unverified",
			"clan", tag, "error", err)
		return nil, nil
	}
}
