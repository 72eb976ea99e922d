package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMember(t *Table, roomID, userID, nickname string) (*Conn, *fakeTransport) {
	tr := &fakeTransport{}
	c := newConn(tr)
	t.Join(roomID, userID, nickname, c)
	return c, tr
}

func TestJoinCreatesRoomImplicitly(t *testing.T) {
	table := NewTable()

	newMember(table, "grief-support", "u1", "Ash")

	assert.Equal(t, 1, table.UniqueUserCount("grief-support"))
	assert.Len(t, table.Transports("grief-support"), 1)
}

func TestUniqueUserCountUnknownRoom(t *testing.T) {
	table := NewTable()

	assert.Equal(t, 0, table.UniqueUserCount("nowhere"))
	assert.Empty(t, table.Transports("nowhere"))
}

func TestJoinEvictsExistingSessionForUser(t *testing.T) {
	table := NewTable()

	_, tr1 := newMember(table, "grief-support", "u1", "Ash")
	_, tr2 := newMember(table, "grief-support", "u1", "Ash")

	assert.True(t, tr1.isClosed(), "superseded transport should be closed")
	assert.False(t, tr2.isClosed())
	assert.Equal(t, 1, table.UniqueUserCount("grief-support"))
	assert.Len(t, table.Transports("grief-support"), 1)
}

func TestRejoinFromSameConnectionKeepsItOpen(t *testing.T) {
	table := NewTable()

	tr := &fakeTransport{}
	c := newConn(tr)
	table.Join("grief-support", "u1", "Ash", c)
	table.Join("grief-support", "u1", "Ashley", c)

	assert.False(t, tr.isClosed())
	assert.Equal(t, 1, table.UniqueUserCount("grief-support"))
	assert.Len(t, table.Transports("grief-support"), 1)
}

func TestRemoveMatchesByConnectionIdentity(t *testing.T) {
	table := NewTable()

	c1, _ := newMember(table, "grief-support", "u1", "Ash")
	newMember(table, "grief-support", "u1", "Ash")

	// The stale disconnect from the superseded connection must not remove
	// the user's newer session.
	nickname, removed := table.Remove("grief-support", c1)
	assert.False(t, removed)
	assert.Empty(t, nickname)
	assert.Equal(t, 1, table.UniqueUserCount("grief-support"))
}

func TestRemoveIsIdempotent(t *testing.T) {
	table := NewTable()

	c, _ := newMember(table, "grief-support", "u1", "Ash")

	nickname, removed := table.Remove("grief-support", c)
	assert.True(t, removed)
	assert.Equal(t, "Ash", nickname)

	nickname, removed = table.Remove("grief-support", c)
	assert.False(t, removed)
	assert.Empty(t, nickname)
}

func TestRemoveUnknownRoomIsNoop(t *testing.T) {
	table := NewTable()
	c := newConn(&fakeTransport{})

	_, removed := table.Remove("nowhere", c)
	assert.False(t, removed)
}

func TestEmptyRoomIsDropped(t *testing.T) {
	table := NewTable()

	c, _ := newMember(table, "grief-support", "u1", "Ash")
	_, removed := table.Remove("grief-support", c)
	require.True(t, removed)

	table.mu.Lock()
	_, exists := table.rooms["grief-support"]
	table.mu.Unlock()
	assert.False(t, exists, "room with zero members must not linger")
}

func TestUniqueUserCountEvictsDeadMembers(t *testing.T) {
	table := NewTable()

	newMember(table, "grief-support", "u1", "Ash")
	_, tr2 := newMember(table, "grief-support", "u2", "Blair")
	newMember(table, "grief-support", "u3", "Cas")

	tr2.Close()

	assert.Equal(t, 2, table.UniqueUserCount("grief-support"))
	assert.Len(t, table.Transports("grief-support"), 2, "dead member should be evicted from the set")
}

func TestUniqueUserCountDropsRoomWhenAllDead(t *testing.T) {
	table := NewTable()

	_, tr := newMember(table, "grief-support", "u1", "Ash")
	tr.Close()

	assert.Equal(t, 0, table.UniqueUserCount("grief-support"))

	table.mu.Lock()
	_, exists := table.rooms["grief-support"]
	table.mu.Unlock()
	assert.False(t, exists)
}

// Regression test: evicting dead members while iterating must not skip live
// members that happen to follow a dead one in iteration order. Map iteration
// order is randomized, so run many fresh tables.
func TestLazyEvictionDoesNotSkipLiveMembers(t *testing.T) {
	for i := 0; i < 100; i++ {
		table := NewTable()
		var liveTransports []*fakeTransport
		for j := 0; j < 6; j++ {
			_, tr := newMember(table, "room", fmt.Sprintf("u%d", j), fmt.Sprintf("nick%d", j))
			if j%2 == 0 {
				tr.Close()
			} else {
				liveTransports = append(liveTransports, tr)
			}
		}

		require.Equal(t, 3, table.UniqueUserCount("room"), "iteration %d", i)
		require.Len(t, table.Transports("room"), len(liveTransports), "iteration %d", i)
	}
}

func TestConcurrentJoinRemoveCount(t *testing.T) {
	table := NewTable()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr := &fakeTransport{}
				c := newConn(tr)
				userID := fmt.Sprintf("u%d-%d", g, i%5)
				table.Join("room", userID, "nick", c)
				table.UniqueUserCount("room")
				table.Remove("room", c)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 0, table.UniqueUserCount("room"))
}

func TestOperationsOnDisjointRoomsAreIndependent(t *testing.T) {
	table := NewTable()

	newMember(table, "grief-support", "u1", "Ash")
	c2, _ := newMember(table, "anxiety", "u1", "Ash")

	assert.Equal(t, 1, table.UniqueUserCount("grief-support"))
	assert.Equal(t, 1, table.UniqueUserCount("anxiety"))

	_, removed := table.Remove("anxiety", c2)
	assert.True(t, removed)
	assert.Equal(t, 1, table.UniqueUserCount("grief-support"))
	assert.Equal(t, 0, table.UniqueUserCount("anxiety"))
}
