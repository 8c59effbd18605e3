package reconcile_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clanbridge/internal/clan"
	"clanbridge/internal/guild/guildtest"
	"clanbridge/internal/reconcile"
	"clanbridge/internal/registry"
	"clanbridge/internal/storage"
	dErrors "clanbridge/pkg/domain-errors"
)

type fakeSession struct {
	mu         sync.Mutex
	alive      bool
	snap       *clan.Snapshot
	err        error
	resetCalls int
}

func (f *fakeSession) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeSession) Clan(_ context.Context, _ string) (*clan.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeSession) ResetAsync(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	f.err = nil
}

func (f *fakeSession) resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetCalls
}

type fakeEmitter struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeEmitter) Emit(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeEmitter) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fixture struct {
	cfg     *registry.Config
	ledger  *registry.Ledger
	session *fakeSession
	guild   *guildtest.Fake
	emitter *fakeEmitter
	engine  *reconcile.Engine
}

func newFixture(t *testing.T, snap *clan.Snapshot) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.New(t.TempDir(), logger)
	require.NoError(t, err)

	cfg := registry.LoadConfig(store, logger)
	require.NoError(t, cfg.Replace(registry.Settings{
		ClanTag:               "#2PPL029",
		RegistrationChannelID: "chan-reg",
		LogChannelID:          "chan-log",
		ApprovalChannelID:     "chan-approval",
		Roles: registry.RoleMap{
			Member:   "role-member",
			Admin:    "role-elder",
			Elder:    "role-elder",
			CoLeader: "role-coleader",
			Leader:   "role-coleader",
		},
		KickMessage: "farewell",
	}))

	f := &fixture{
		cfg:     cfg,
		ledger:  registry.LoadLedger(store, logger),
		session: &fakeSession{alive: true, snap: snap},
		guild:   guildtest.NewFake(),
		emitter: &fakeEmitter{},
	}
	f.guild.PutRole("role-member", "Member")
	f.guild.PutRole("role-elder", "Elder")
	f.guild.PutRole("role-coleader", "Co-Leader")

	f.engine = reconcile.New(f.cfg, f.ledger, f.session, f.guild, f.emitter,
		reconcile.WithLogger(logger),
		reconcile.WithKickPause(time.Millisecond),
	)
	return f
}

func TestReconcile_RankChangeConvergesToExactRole(t *testing.T) {
	// Ledger says member 111 is #ABC; the clan now lists #ABC as elder while
	// the member still wears the leader-mapped role.
	f := newFixture(t, &clan.Snapshot{
		Name:    "The Clan",
		Members: []clan.Member{{Tag: "#ABC", Name: "Player", Role: "elder"}},
	})
	require.NoError(t, f.ledger.Assign("111", "#ABC"))
	f.guild.PutMember("111", "somebody", "role-coleader", "unmanaged-role")

	require.NoError(t, f.engine.Reconcile(context.Background(), "111", "#ABC"))

	roles := f.guild.MemberRoles("111")
	assert.ElementsMatch(t, []string{"role-elder", "unmanaged-role"}, roles,
		"managed-role set must be exactly the elder role; unmanaged roles untouched")

	_, ok := f.ledger.Get("111")
	assert.True(t, ok, "ledger entry stays while the member is in the clan")
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t, &clan.Snapshot{
		Members: []clan.Member{{Tag: "#ABC", Name: "Player", Role: "member"}},
	})
	require.NoError(t, f.ledger.Assign("111", "#ABC"))
	f.guild.PutMember("111", "somebody")

	require.NoError(t, f.engine.Reconcile(context.Background(), "111", "#ABC"))
	addsAfterFirst := len(f.guild.Added)
	removesAfterFirst := len(f.guild.Removed)
	require.Equal(t, []string{"role-member"}, f.guild.MemberRoles("111"))

	// Second run with no external change performs zero role mutations.
	require.NoError(t, f.engine.Reconcile(context.Background(), "111", "#ABC"))
	assert.Equal(t, addsAfterFirst, len(f.guild.Added))
	assert.Equal(t, removesAfterFirst, len(f.guild.Removed))
}

func TestReconcile_DepartedMemberIsRemoved(t *testing.T) {
	f := newFixture(t, &clan.Snapshot{
		Members: []clan.Member{{Tag: "#OTHER", Name: "Someone", Role: "member"}},
	})
	require.NoError(t, f.ledger.Assign("222", "#XYZ"))
	f.guild.PutMember("222", "departed", "role-member")

	require.NoError(t, f.engine.Reconcile(context.Background(), "222", "#XYZ"))

	_, ok := f.ledger.Get("222")
	assert.False(t, ok, "ledger entry must be deleted")
	assert.Equal(t, []string{"222"}, f.guild.Kicked)
	require.Len(t, f.guild.DMs, 1)
	assert.Equal(t, "farewell", f.guild.DMs[0].Content)
	assert.NotEmpty(t, f.emitter.all(), "a log-channel message must be produced")
}

func TestReconcile_DepartedKickFailureIsSurfacedNotFatal(t *testing.T) {
	f := newFixture(t, &clan.Snapshot{})
	require.NoError(t, f.ledger.Assign("222", "#XYZ"))
	f.guild.PutMember("222", "departed", "role-member")
	f.guild.KickErr = assert.AnError

	require.NoError(t, f.engine.Reconcile(context.Background(), "222", "#XYZ"))

	_, ok := f.ledger.Get("222")
	assert.False(t, ok, "ledger cleanup happens even when the kick fails")
	assert.Empty(t, f.guild.Kicked)
	assert.NotEmpty(t, f.emitter.all())
}

func TestReconcile_DMRefusalDoesNotBlockKick(t *testing.T) {
	f := newFixture(t, &clan.Snapshot{})
	require.NoError(t, f.ledger.Assign("222", "#XYZ"))
	f.guild.PutMember("222", "departed")
	f.guild.DMErr = assert.AnError

	require.NoError(t, f.engine.Reconcile(context.Background(), "222", "#XYZ"))
	assert.Equal(t, []string{"222"}, f.guild.Kicked)
}

func TestReconcile_HierarchyInsufficiencySkipsGrant(t *testing.T) {
	f := newFixture(t, &clan.Snapshot{
		Members: []clan.Member{{Tag: "#ABC", Name: "Player", Role: "leader"}},
	})
	require.NoError(t, f.ledger.Assign("111", "#ABC"))
	f.guild.PutMember("111", "somebody", "role-member")
	f.guild.BelowRoles["role-coleader"] = true

	require.NoError(t, f.engine.Reconcile(context.Background(), "111", "#ABC"))

	// The revoke still happened, the grant did not.
	assert.Empty(t, f.guild.Added)
	assert.NotContains(t, f.guild.MemberRoles("111"), "role-coleader")
}

func TestReconcile_UnmappedRankSurfacesConfigProblem(t *testing.T) {
	f := newFixture(t, &clan.Snapshot{
		Members: []clan.Member{{Tag: "#ABC", Name: "Player", Role: "warlord"}},
	})
	require.NoError(t, f.ledger.Assign("111", "#ABC"))
	f.guild.PutMember("111", "somebody", "role-member")

	require.NoError(t, f.engine.Reconcile(context.Background(), "111", "#ABC"))

	assert.Empty(t, f.guild.Added)
	assert.Empty(t, f.guild.Removed, "no mutation on a configuration error")
	assert.NotEmpty(t, f.emitter.all(), "the humans who own /setup get told")
}

func TestReconcile_AuthFailureTriggersSessionReset(t *testing.T) {
	f := newFixture(t, nil)
	f.session.err = dErrors.New(dErrors.CodeExternalAuth, "rejected")
	require.NoError(t, f.ledger.Assign("111", "#ABC"))
	f.guild.PutMember("111", "somebody", "role-member")

	err := f.engine.Reconcile(context.Background(), "111", "#ABC")
	require.Error(t, err)
	assert.Equal(t, 1, f.session.resets())
	assert.Empty(t, f.guild.Added)
	assert.Empty(t, f.guild.Removed)

	_, ok := f.ledger.Get("111")
	assert.True(t, ok, "no state mutation on an API failure")
}

func TestReconcile_TransientFailureLeavesStateAlone(t *testing.T) {
	f := newFixture(t, nil)
	f.session.err = dErrors.New(dErrors.CodeExternalTransient, "timeout")
	require.NoError(t, f.ledger.Assign("111", "#ABC"))
	f.guild.PutMember("111", "somebody", "role-coleader")

	err := f.engine.Reconcile(context.Background(), "111", "#ABC")
	require.Error(t, err)
	assert.Equal(t, 0, f.session.resets(), "transient errors do not reset the session")
	assert.Equal(t, []string{"role-coleader"}, f.guild.MemberRoles("111"))
}

func TestReconcile_DeadSessionShortCircuits(t *testing.T) {
	f := newFixture(t, nil)
	f.session.alive = false

	err := f.engine.Reconcile(context.Background(), "111", "#ABC")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalTransient))
}
