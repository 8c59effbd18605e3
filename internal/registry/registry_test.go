package registry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clanbridge/internal/storage"
)

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.New(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func completeSettings() Settings {
	return Settings{
		ClanTag:               "#2PPL029",
		RegistrationChannelID: "chan-reg",
		LogChannelID:          "chan-log",
		ApprovalChannelID:     "chan-approval",
		Roles: RoleMap{
			Member:   "role-member",
			Admin:    "role-elder",
			Elder:    "role-elder",
			CoLeader: "role-coleader",
			Leader:   "role-coleader",
		},
		KickMessage: DefaultKickMessage,
	}
}

func TestSettings_RoleFor(t *testing.T) {
	s := completeSettings()

	cases := []struct {
		rank string
		want string
	}{
		{"member", "role-member"},
		{"Member", "role-member"},
		{"admin", "role-elder"},
		{"elder", "role-elder"},
		{"coLeader", "role-coleader"},
		{"leader", "role-coleader"},
	}
	for _, tc := range cases {
		got, ok := s.RoleFor(tc.rank)
		assert.True(t, ok, "rank %q", tc.rank)
		assert.Equal(t, tc.want, got, "rank %q", tc.rank)
	}

	_, ok := s.RoleFor("warlord")
	assert.False(t, ok, "unknown rank must not resolve")
}

func TestSettings_ManagedRoleIDsDeduplicates(t *testing.T) {
	s := completeSettings()
	ids := s.ManagedRoleIDs()
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, "role-member")
	assert.Contains(t, ids, "role-elder")
	assert.Contains(t, ids, "role-coleader")
}

func TestSettings_Complete(t *testing.T) {
	s := completeSettings()
	assert.True(t, s.Complete())

	partial := completeSettings()
	partial.ApprovalChannelID = ""
	assert.False(t, partial.Complete())

	var nilSettings *Settings
	assert.False(t, nilSettings.Complete())
}

func TestConfig_ReplaceRoundTrips(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := LoadConfig(store, logger)
	assert.Nil(t, cfg.Current(), "fresh data dir starts unconfigured")

	want := completeSettings()
	require.NoError(t, cfg.Replace(want))
	require.NotNil(t, cfg.Current())

	// A fresh load from the same directory yields the same document.
	reloaded := LoadConfig(store, logger)
	require.NotNil(t, reloaded.Current())
	assert.Equal(t, want, *reloaded.Current())
}

func TestLedger_AssignRemoveRoundTrip(t *testing.T) {
	store := testStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := LoadLedger(store, logger)
	require.NoError(t, l.Assign("111", "#PYL029"))

	tag, ok := l.Get("111")
	require.True(t, ok)
	assert.Equal(t, "#PYL029", tag)

	owner, ok := l.Owner("#PYL029")
	require.True(t, ok)
	assert.Equal(t, "111", owner)

	// Survives a reload.
	reloaded := LoadLedger(store, logger)
	tag, ok = reloaded.Get("111")
	require.True(t, ok)
	assert.Equal(t, "#PYL029", tag)

	removed, err := reloaded.Remove("111")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = reloaded.Remove("111")
	require.NoError(t, err)
	assert.False(t, removed, "removing an absent entry is a no-op")
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l := LoadLedger(testStore(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, l.Assign("111", "#PYL029"))

	snap := l.Snapshot()
	require.NoError(t, l.Assign("222", "#2PP"))

	assert.Len(t, snap, 1, "snapshot must not see later mutations")
	assert.Equal(t, 2, l.Len())
}
