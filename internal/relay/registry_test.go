package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	s := &Session{}

	require.True(t, r.Join(s, "u1", 42))
	require.False(t, r.Join(s, "u1", 42))

	assert.Len(t, r.MembersOf(42), 1)
	assert.True(t, r.HasConnection("u1", s))
}

func TestRegistry_SameUserTwoConnections(t *testing.T) {
	r := NewRegistry()
	s1 := &Session{}
	s2 := &Session{}

	require.True(t, r.Join(s1, "u1", 42))
	require.True(t, r.Join(s2, "u1", 42))
	assert.Len(t, r.MembersOf(42), 2)

	require.True(t, r.Leave(s1, "u1", 42))
	assert.True(t, r.HasConnection("u1", s2))
	assert.False(t, r.HasConnection("u1", s1))

	// Last connection gone: the user key disappears entirely.
	require.True(t, r.Leave(s2, "u1", 42))
	r.mu.RLock()
	_, present := r.userConns["u1"]
	r.mu.RUnlock()
	assert.False(t, present)
}

func TestRegistry_LeaveNonMember(t *testing.T) {
	r := NewRegistry()
	s := &Session{}

	assert.False(t, r.Leave(s, "u1", 42))

	require.True(t, r.Join(s, "u1", 42))
	assert.False(t, r.Leave(s, "u1", 7), "wrong room must not match")
	assert.True(t, r.HasConnection("u1", s))
}

func TestRegistry_EmptyRoomIsDropped(t *testing.T) {
	r := NewRegistry()
	s := &Session{}

	require.True(t, r.Join(s, "u1", 42))
	require.True(t, r.Leave(s, "u1", 42))

	r.mu.RLock()
	_, present := r.rooms[42]
	r.mu.RUnlock()
	assert.False(t, present)
	assert.Empty(t, r.MembersOf(42))
}

func TestRegistry_MembersOfIsASnapshot(t *testing.T) {
	r := NewRegistry()
	s1 := &Session{}
	s2 := &Session{}

	require.True(t, r.Join(s1, "u1", 42))
	require.True(t, r.Join(s2, "u2", 42))

	snapshot := r.MembersOf(42)
	require.True(t, r.Leave(s2, "u2", 42))

	// The snapshot taken before the leave is unaffected.
	assert.Len(t, snapshot, 2)
	assert.Len(t, r.MembersOf(42), 1)
}
