package gateway

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peer(userID string) *Peer {
	return &Peer{UserID: userID, conn: newFakeConn()}
}

func TestRegistryRooms(t *testing.T) {
	r := NewRegistry()
	a1, a2, b := peer("a"), peer("a"), peer("b")
	assert.Equal(t, 1, r.Add(a1))
	assert.Equal(t, 2, r.Add(a2))
	assert.Equal(t, 1, r.Add(b))

	assert.True(t, r.Join(a1.ID(), "room"))
	assert.False(t, r.Join(a1.ID(), "room"))
	assert.True(t, r.Join(a2.ID(), "room"))
	assert.True(t, r.Join(b.ID(), "room"))
	assert.False(t, r.Join("missing", "room"))

	users := r.UsersInRoom("room")
	sort.Strings(users)
	assert.Equal(t, []string{"a", "b"}, users)
	assert.Len(t, r.RoomPeers("room"), 3)

	left := r.LeaveUser("a", "room")
	assert.Len(t, left, 2)
	assert.Equal(t, []string{"b"}, r.UsersInRoom("room"))

	assert.True(t, r.Leave(b.ID(), "room"))
	assert.False(t, r.Leave(b.ID(), "room"))
	assert.Empty(t, r.RoomPeers("room"))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	a1, a2 := peer("a"), peer("a")
	r.Add(a1)
	r.Add(a2)
	r.Join(a1.ID(), "x")
	r.Join(a1.ID(), "y")

	p, rooms, remaining, ok := r.Remove(a1.ID())
	require.True(t, ok)
	assert.Same(t, a1, p)
	sort.Strings(rooms)
	assert.Equal(t, []string{"x", "y"}, rooms)
	assert.Equal(t, 1, remaining)
	assert.False(t, r.InRoom(a1.ID(), "x"))
	assert.True(t, r.IsOnline("a"))

	_, _, _, ok = r.Remove(a1.ID())
	assert.False(t, ok)

	_, _, remaining, ok = r.Remove(a2.ID())
	require.True(t, ok)
	assert.Zero(t, remaining)
	assert.False(t, r.IsOnline("a"))
	assert.Zero(t, r.Len())
}
