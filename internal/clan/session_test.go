package clan_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"clanbridge/internal/clan"
	"clanbridge/internal/clan/mocks"
	dErrors "clanbridge/pkg/domain-errors"
)

func TestSession_ConnectRetriesTransientFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	gomock.InOrder(
		api.EXPECT().Login(gomock.Any()).Return(dErrors.New(dErrors.CodeExternalTransient, "timeout")),
		api.EXPECT().Login(gomock.Any()).Return(dErrors.New(dErrors.CodeExternalTransient, "timeout")),
		api.EXPECT().Login(gomock.Any()).Return(nil),
	)

	s := clan.NewSession(api, clan.WithBackoffUnit(time.Millisecond))
	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.Alive())
}

func TestSession_ConnectAbortsOnAuthFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	// A credential rejection is not retried.
	api.EXPECT().Login(gomock.Any()).Return(dErrors.New(dErrors.CodeExternalAuth, "bad credentials")).Times(1)

	s := clan.NewSession(api, clan.WithBackoffUnit(time.Millisecond))
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalAuth))
	assert.False(t, s.Alive())
}

func TestSession_ConnectGivesUpAfterThreeAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().Login(gomock.Any()).Return(dErrors.New(dErrors.CodeExternalTransient, "timeout")).Times(3)

	s := clan.NewSession(api, clan.WithBackoffUnit(time.Millisecond))
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, s.Alive())
}

func TestSession_ClanRequiresLiveSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	s := clan.NewSession(api, clan.WithBackoffUnit(time.Millisecond))
	_, err := s.Clan(context.Background(), "#PYL029")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExternalTransient))
}

func TestSession_AuthFailureMarksSessionDead(t *testing.T) {
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)

	api.EXPECT().Login(gomock.Any()).Return(nil)
	api.EXPECT().Clan(gomock.Any(), "#PYL029").Return(nil, dErrors.New(dErrors.CodeExternalAuth, "rejected"))

	s := clan.NewSession(api, clan.WithBackoffUnit(time.Millisecond))
	require.NoError(t, s.Connect(context.Background()))

	_, err := s.Clan(context.Background(), "#PYL029")
	require.Error(t, err)
	assert.False(t, s.Alive(), "session must be marked unusable after an auth rejection")
}

func TestDisplayRank(t *testing.T) {
	assert.Equal(t, "Co-Leader", clan.DisplayRank("coLeader"))
	assert.Equal(t, "Elder", clan.DisplayRank("admin"))
	assert.Equal(t, "Leader", clan.DisplayRank("leader"))
	assert.Equal(t, "Member", clan.DisplayRank("member"))
}
