package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDirectory_Register(t *testing.T) {
	d := NewLocalDirectory()

	user, err := d.Get(1)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = d.Register(1, "alice")
	require.NoError(t, err)
	require.NoError(t, d.AssignRoom(1, "game-alice:bob"))

	// A nickname change keeps the room
	user, err = d.Register(1, "alicia")
	require.NoError(t, err)
	assert.Equal(t, "game-alice:bob", user.GameRoom)

	found, err := d.FindByNickname("alicia")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(1), found.IntraID)

	found, err = d.FindByNickname("alice")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestLocalDirectory_ClearRoomIsConditional(t *testing.T) {
	d := NewLocalDirectory()
	_, err := d.Register(1, "alice")
	require.NoError(t, err)
	require.NoError(t, d.AssignRoom(1, "game-alice:carol"))

	cleared, err := d.ClearRoom(1, "game-alice:bob")
	require.NoError(t, err)
	assert.False(t, cleared, "a newer assignment must survive")

	user, _ := d.Get(1)
	assert.Equal(t, "game-alice:carol", user.GameRoom)

	cleared, err = d.ClearRoom(1, "game-alice:carol")
	require.NoError(t, err)
	assert.True(t, cleared)

	cleared, err = d.ClearRoom(404, "game-alice:carol")
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestLocalDirectory_ReturnsCopies(t *testing.T) {
	d := NewLocalDirectory()
	user, err := d.Register(1, "alice")
	require.NoError(t, err)

	user.GameRoom = "mutated"
	stored, _ := d.Get(1)
	assert.Empty(t, stored.GameRoom)
}
