package discordtransport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"clanbridge/internal/clan"
	"clanbridge/internal/guild/guildtest"
	"clanbridge/internal/registry"
	"clanbridge/internal/storage"
	domainerrors "clanbridge/pkg/domain-errors"
)

type stubSession struct {
	alive bool
	snap  *clan.Snapshot
	err   error
}

func (s *stubSession) Alive() bool { return s.alive }

func (s *stubSession) Clan(context.Context, string) (*clan.Snapshot, error) {
	return s.snap, s.err
}

type memoryEmitter struct {
	mu    sync.Mutex
	texts []string
}

func (e *memoryEmitter) Emit(text string) {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()
}

func validParams() setupParams {
	return setupParams{
		ClanTag:             "#2PPL029",
		RegistrationChannel: "chan-reg",
		LogChannel:          "chan-log",
		ApprovalChannel:     "chan-approval",
		MemberRole:          "role-member",
		ElderRole:           "role-elder",
		CoLeaderRole:        "role-coleader",
	}
}

func newSetup(t *testing.T) (*Setup, *registry.Config, *guildtest.Fake, *stubSession, *memoryEmitter) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.New(t.TempDir(), logger)
	require.NoError(t, err)
	cfg := registry.LoadConfig(store, logger)

	g := guildtest.NewFake()
	g.PutRole("role-member", "Clan Member")
	g.PutRole("role-elder", "Clan Elder")
	g.PutRole("role-coleader", "Clan Co-Leader")

	session := &stubSession{
		alive: true,
		snap:  &clan.Snapshot{Tag: "#2PPL029", Name: "Night Raiders"},
	}
	emitter := &memoryEmitter{}
	return NewSetup(cfg, g, session, emitter, logger), cfg, g, session, emitter
}

func TestSetupApply_SavesConfiguration(t *testing.T) {
	setup, cfg, _, _, emitter := newSetup(t)

	reply, err := setup.Apply(context.Background(), "admin-1", validParams())
	require.NoError(t, err)
	require.Contains(t, reply, "Night Raiders")
	require.Contains(t, reply, "<#chan-reg>")

	settings := cfg.Current()
	require.NotNil(t, settings)
	require.Equal(t, "#2PPL029", settings.ClanTag)
	require.Equal(t, registry.DefaultKickMessage, settings.KickMessage)

	// The in-game ranks admin and elder share one role, as do coLeader and
	// leader.
	for rank, want := range map[string]string{
		"member":   "role-member",
		"admin":    "role-elder",
		"elder":    "role-elder",
		"coLeader": "role-coleader",
		"leader":   "role-coleader",
	} {
		got, ok := settings.RoleFor(rank)
		require.True(t, ok, rank)
		require.Equal(t, want, got, rank)
	}
	require.NotEmpty(t, emitter.texts)
}

func TestSetupApply_CustomKickMessage(t *testing.T) {
	setup, cfg, _, _, _ := newSetup(t)
	p := validParams()
	p.KickMessage = "  so long  "

	_, err := setup.Apply(context.Background(), "admin-1", p)
	require.NoError(t, err)
	require.Equal(t, "so long", cfg.Current().KickMessage)
}

func TestSetupApply_RejectsMalformedTag(t *testing.T) {
	setup, cfg, _, _, _ := newSetup(t)
	p := validParams()
	p.ClanTag = "!!"

	_, err := setup.Apply(context.Background(), "admin-1", p)
	require.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
	require.Nil(t, cfg.Current(), "a rejected setup must not persist anything")
}

func TestSetupApply_RejectsUnknownClan(t *testing.T) {
	setup, cfg, _, session, _ := newSetup(t)
	session.snap = nil
	session.err = domainerrors.New(domainerrors.CodeExternalNotFound, "no such clan")

	_, err := setup.Apply(context.Background(), "admin-1", validParams())
	require.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
	require.Nil(t, cfg.Current())
}

func TestSetupApply_ClanAPIOutageDoesNotBlock(t *testing.T) {
	setup, cfg, _, session, _ := newSetup(t)
	session.alive = false

	reply, err := setup.Apply(context.Background(), "admin-1", validParams())
	require.NoError(t, err)
	require.Contains(t, reply, "#2PPL029")
	require.NotNil(t, cfg.Current())
}

func TestSetupApply_RejectsBlockedChannel(t *testing.T) {
	setup, cfg, g, _, _ := newSetup(t)
	g.BlockedChannels = map[string]bool{"chan-approval": true}

	_, err := setup.Apply(context.Background(), "admin-1", validParams())
	require.True(t, domainerrors.HasCode(err, domainerrors.CodePermissionDenied))
	require.Contains(t, err.Error(), "chan-approval")
	require.Nil(t, cfg.Current())
}

func TestSetupApply_RejectsUnreachableRole(t *testing.T) {
	setup, cfg, g, _, _ := newSetup(t)
	g.BelowRoles = map[string]bool{"role-coleader": true}

	_, err := setup.Apply(context.Background(), "admin-1", validParams())
	require.True(t, domainerrors.HasCode(err, domainerrors.CodePermissionDenied))
	require.Contains(t, err.Error(), "Clan Co-Leader")
	require.Nil(t, cfg.Current())
}

func TestSetupApply_RejectsMissingRole(t *testing.T) {
	setup, cfg, _, _, _ := newSetup(t)
	p := validParams()
	p.ElderRole = "role-ghost"

	_, err := setup.Apply(context.Background(), "admin-1", p)
	require.True(t, domainerrors.HasCode(err, domainerrors.CodeValidation))
	require.Nil(t, cfg.Current())
}

func TestUserMessage_ShieldsInternals(t *testing.T) {
	err := domainerrors.New(domainerrors.CodeInternal, "pointer dereference in role cache")
	require.NotContains(t, userMessage(err), "pointer")

	err = domainerrors.New(domainerrors.CodeValidation, "\"!!\" is not a valid player tag.")
	require.Contains(t, userMessage(err), "not a valid player tag")
}
