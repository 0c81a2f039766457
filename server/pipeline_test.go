package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnpong/game"
)

func TestPipeline_DropsUnauthorized(t *testing.T) {
	tests := []struct {
		name    string
		session *fakeSession
	}{
		{
			name:    "anonymous",
			session: newFakeSession(0, ""),
		},
		{
			name: "expired token",
			session: func() *fakeSession {
				s := newFakeSession(7, "late")
				s.expiry = time.Now().Add(-time.Second).Unix()
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, game.Options{})
			env.connect(tt.session)

			env.emit(t, tt.session, game.EventStart, struct{}{})
			env.emit(t, tt.session, game.EventFriendStart, game.FriendStart{FriendNickname: "bob"})

			assert.Empty(t, tt.session.events(), "nothing is sent back to an unauthorized session")
			assert.Equal(t, 0, env.coordinator.Queue().Len())
		})
	}
}

func TestPipeline_ConnectSendsConnected(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice := newFakeSession(1, "alice")
	env.connect(alice)

	connected := Connected{}
	alice.last(t, game.EventConnected, &connected)
	assert.Equal(t, alice.connectionID(), connected.ConnectionID)
	assert.Equal(t, "alice", connected.Nickname)
	assert.Empty(t, connected.GameRoom)

	user, err := env.directory.Get(1)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Nickname)
}

func TestPipeline_RandomMatch(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(alice)
	env.connect(bob)
	alice.reset()
	bob.reset()

	env.emit(t, alice, game.EventStart, struct{}{})
	assert.Equal(t, []string{game.EventLoading}, alice.events())
	assert.Empty(t, bob.events())

	env.emit(t, bob, game.EventStart, struct{}{})
	for _, s := range []*fakeSession{alice, bob} {
		started := game.MatchStarted{}
		s.last(t, game.EventRandomStart, &started)
		assert.Equal(t, alice.connectionID(), started.Player1ID)
		assert.Equal(t, bob.connectionID(), started.Player2ID)
	}

	for _, intraID := range []int64{1, 2} {
		user, err := env.directory.Get(intraID)
		require.NoError(t, err)
		assert.Equal(t, "game-alice:bob", user.GameRoom)
	}
}

func TestPipeline_StartWhileInRoomIsIgnored(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice, _ := env.matchAliceBob(t)

	env.emit(t, alice, game.EventStart, struct{}{})
	assert.Empty(t, alice.events())
	assert.Equal(t, 0, env.coordinator.Queue().Len())
}

func TestPipeline_KeyEventRelay(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice, bob := env.matchAliceBob(t)

	env.emit(t, alice, game.EventKeyEvent, game.KeyEvent{
		OpponentID:   bob.connectionID(),
		PlayerNumber: game.Player1,
		Message:      "upKeyDown",
		Step:         12,
		Velocity:     3,
	})

	assert.Empty(t, alice.events())
	relay := game.KeyEventRelay{}
	bob.last(t, game.EventKeyEvent, &relay)
	assert.Equal(t, game.KeyEventRelay{OpponentNumber: game.Player1, Message: "upKeyDown", Step: 12, Velocity: 3}, relay)
}

func TestPipeline_ScoreWinner(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice, bob := env.matchAliceBob(t)

	final := game.Score{P1: 5, P2: 1}
	env.emit(t, alice, game.EventScore, game.ScoreReport{PlayerNumber: game.Player1, Score: final})
	assert.Empty(t, alice.events(), "score waits for both reports")

	env.emit(t, bob, game.EventScore, game.ScoreReport{PlayerNumber: game.Player2, Score: final})
	for _, s := range []*fakeSession{alice, bob} {
		result := game.ScoreResult{}
		s.last(t, game.EventScore, &result)
		assert.Equal(t, game.ScoreResult{RealScore: final, WinnerNickname: "alice"}, result)
	}

	assert.Equal(t, 0, env.coordinator.Store().Len())
	for _, intraID := range []int64{1, 2} {
		user, err := env.directory.Get(intraID)
		require.NoError(t, err)
		assert.False(t, user.InRoom())
	}

	games, err := env.results.ListByIntraID(2)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "alice", games[0].WinnerNickname)
	assert.Equal(t, int64(2), games[0].LoserIntraID)
	assert.Equal(t, 5, games[0].Player1Score)
	assert.Equal(t, game.ModeRank, games[0].Mode)
}

func TestPipeline_ScoreWithoutWinner(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice, bob := env.matchAliceBob(t)

	env.emit(t, alice, game.EventScore, game.ScoreReport{PlayerNumber: game.Player1, Score: game.Score{P1: 1}})
	env.emit(t, bob, game.EventScore, game.ScoreReport{PlayerNumber: game.Player2, Score: game.Score{P1: 1}})

	result := game.ScoreResult{}
	bob.last(t, game.EventScore, &result)
	assert.Equal(t, "", result.WinnerNickname)
	assert.Equal(t, 1, env.coordinator.Store().Len())

	games, err := env.results.ListByIntraID(1)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestPipeline_BallCorrection(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice, bob := env.matchAliceBob(t)

	ball := func(x float64) game.BallInfo {
		return game.BallInfo{Position: game.Vector{X: x, Y: 10}, Velocity: game.Vector{X: 1, Y: 1}}
	}

	env.emit(t, alice, game.EventBall, ball(0))
	env.emit(t, bob, game.EventBall, ball(0.05))
	assert.Empty(t, alice.events())
	assert.Empty(t, bob.events())

	env.emit(t, bob, game.EventBall, ball(4))
	for _, s := range []*fakeSession{alice, bob} {
		got := game.BallInfo{}
		s.last(t, game.EventBall, &got)
		assert.Equal(t, ball(4), got)
	}
}

func TestPipeline_MalformedPayloadIsDropped(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice, bob := env.matchAliceBob(t)

	require.True(t, env.pipeline.handleSocketRequests(alice, &Envelope{Event: game.EventScore, Data: []byte(`{"playerNumber":`)}))
	require.True(t, env.pipeline.handleSocketRequests(alice, &Envelope{Event: game.EventBall}))
	require.True(t, env.pipeline.handleSocketRequests(alice, &Envelope{Event: "game-unknown", Data: []byte(`{}`)}))

	assert.Empty(t, alice.events())
	assert.Empty(t, bob.events())
	assert.Equal(t, 1, env.coordinator.Store().Len())
}

func TestPipeline_FriendMatchWithInvite(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(alice)
	env.connect(bob)
	alice.reset()
	bob.reset()

	env.emit(t, alice, game.EventFriendStart, game.FriendStart{FriendNickname: "bob"})
	assert.Equal(t, []string{game.EventLoading}, alice.events())

	invite := game.Invite{}
	bob.last(t, game.EventInvite, &invite)
	assert.Equal(t, "alice", invite.FromNickname)

	env.emit(t, bob, game.EventFriendStart, game.FriendStart{FriendNickname: "alice"})
	for _, s := range []*fakeSession{alice, bob} {
		started := game.MatchStarted{}
		s.last(t, game.EventFriendStart, &started)
		assert.Equal(t, alice.connectionID(), started.Player1ID)
		assert.Equal(t, bob.connectionID(), started.Player2ID)
	}

	room, ok := env.coordinator.Room("game-alice:bob")
	require.True(t, ok)
	assert.Equal(t, game.ModeFriend, room.Mode)
}

func TestPipeline_DisconnectWhileQueued(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice := newFakeSession(1, "alice")
	env.connect(alice)

	env.emit(t, alice, game.EventStart, struct{}{})
	require.Equal(t, 1, env.coordinator.Queue().Len())

	env.disconnect(alice)
	assert.Equal(t, 0, env.coordinator.Queue().Len())
}

func TestPipeline_DisconnectAndRejoin(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice, bob := env.matchAliceBob(t)

	env.disconnect(alice)

	disconnected := game.Disconnected{}
	bob.last(t, game.EventDisconnect, &disconnected)
	assert.Equal(t, "alice", disconnected.DisconnectNickname)
	assert.Equal(t, "game-alice:bob", disconnected.GameInfo.RoomName)
	assert.Len(t, bob.events(), 1, "exactly one disconnect event")

	// alice comes back on a new connection and takes her slot again
	alice2 := newFakeSession(1, "alice")
	env.connect(alice2)
	connected := Connected{}
	alice2.last(t, game.EventConnected, &connected)
	assert.Equal(t, "game-alice:bob", connected.GameRoom)

	env.emit(t, alice2, game.EventKeyEvent, game.KeyEvent{OpponentID: bob.connectionID(), PlayerNumber: game.Player1, Message: "downKeyDown"})
	bob.last(t, game.EventKeyEvent, &game.KeyEventRelay{})

	// Room goes away once both connections are gone
	env.disconnect(alice2)
	env.disconnect(bob)
	assert.Equal(t, 0, env.coordinator.Store().Len())
	for _, intraID := range []int64{1, 2} {
		user, err := env.directory.Get(intraID)
		require.NoError(t, err)
		assert.False(t, user.InRoom())
	}

	games, err := env.results.ListByIntraID(1)
	require.NoError(t, err)
	assert.Empty(t, games, "abandoned rooms are not recorded")
}

func TestPipeline_DisconnectBeforeRoomAssignment(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	alice := newFakeSession(1, "alice")
	bob := newFakeSession(2, "bob")
	env.connect(alice)
	env.connect(bob)
	bob.reset()

	// Room formed but not yet written to the directory
	_, _, err := env.coordinator.StartRandom(alice.connectionID(), game.Identity{IntraID: 1, Nickname: "alice"})
	require.NoError(t, err)
	match, _, err := env.coordinator.StartRandom(bob.connectionID(), game.Identity{IntraID: 2, Nickname: "bob"})
	require.NoError(t, err)
	require.NotNil(t, match)
	user, err := env.directory.Get(1)
	require.NoError(t, err)
	require.False(t, user.InRoom())

	env.disconnect(alice)

	disconnected := game.Disconnected{}
	bob.last(t, game.EventDisconnect, &disconnected)
	assert.Equal(t, "alice", disconnected.DisconnectNickname)
	_, ok := env.coordinator.Store().RoomOf(alice.connectionID())
	assert.False(t, ok, "the departed connection leaves the room")

	env.disconnect(bob)
	assert.Equal(t, 0, env.coordinator.Store().Len(), "room goes away with its last subscriber")
}

func TestPipeline_ConnectClearsStaleRoom(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	require.NoError(t, env.directory.AssignRoom(1, "game-alice:ghost"))

	alice := newFakeSession(1, "alice")
	env.connect(alice)

	connected := Connected{}
	alice.last(t, game.EventConnected, &connected)
	assert.Empty(t, connected.GameRoom)

	user, err := env.directory.Get(1)
	require.NoError(t, err)
	assert.False(t, user.InRoom())
}

func TestPipeline_ExpireIdle(t *testing.T) {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, game.Options{Now: func() time.Time { return now }})
	env.config.GameConfig.RoomIdleTimeout = 30
	env.matchAliceBob(t)

	assert.Equal(t, 0, env.pipeline.ExpireIdle())

	now = now.Add(time.Minute)
	assert.Equal(t, 1, env.pipeline.ExpireIdle())
	assert.Equal(t, 0, env.coordinator.Store().Len())

	user, err := env.directory.Get(1)
	require.NoError(t, err)
	assert.False(t, user.InRoom())
}

func TestSweeper_DisabledByDefault(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	sweeper := NewSweeper(env.config, env.pipeline)
	sweeper.Start()
	sweeper.Stop()
	sweeper.Stop()
}

func TestPipeline_Overview(t *testing.T) {
	env := newTestEnv(t, game.Options{})
	env.matchAliceBob(t)
	carol := newFakeSession(3, "carol")
	env.connect(carol)
	env.emit(t, carol, game.EventStart, struct{}{})

	overview := env.pipeline.Overview()
	assert.Equal(t, 1, overview.QueueLength)
	assert.Equal(t, 1, overview.ActiveRooms)
	assert.Equal(t, 3, overview.Connections)
	require.Len(t, overview.Rooms, 1)
	assert.Equal(t, "game-alice:bob", overview.Rooms[0].RoomName)
}
