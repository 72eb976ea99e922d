package chat

import "sync"

type member struct {
	conn     *Conn
	userID   string
	nickname string
}

// Table is the authoritative registry of which connections belong to which
// room. All mutations run under a single mutex; no lock is ever held across
// transport or store I/O, so closing superseded connections happens after the
// critical section.
type Table struct {
	mu    sync.Mutex
	rooms map[string]map[*member]struct{}
}

func NewTable() *Table {
	return &Table{rooms: make(map[string]map[*member]struct{})}
}

// Join inserts the connection into the room, creating the room implicitly.
// Any existing member with the same user id is removed first and its transport
// closed once the lock is released (single active session per user per room).
func (t *Table) Join(roomID, userID, nickname string, c *Conn) {
	var superseded []Transport

	t.mu.Lock()
	room, ok := t.rooms[roomID]
	if !ok {
		room = make(map[*member]struct{})
		t.rooms[roomID] = room
	}
	for m := range room {
		if m.userID != userID {
			continue
		}
		delete(room, m)
		// Re-join from the same connection just replaces the record;
		// closing it here would kill the connection we are inserting.
		if m.conn != c {
			superseded = append(superseded, m.conn.transport)
		}
	}
	room[&member{conn: c, userID: userID, nickname: nickname}] = struct{}{}
	t.mu.Unlock()

	for _, tr := range superseded {
		if tr.IsOpen() {
			tr.Close()
		}
	}
}

// Remove deletes the record for exactly this connection. Matching by
// connection identity rather than user id means a stale disconnect from an
// already-superseded connection cannot evict the user's newer session.
// It reports whether a record was removed and, if so, its nickname.
func (t *Table) Remove(roomID string, c *Conn) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return "", false
	}
	for m := range room {
		if m.conn == c {
			delete(room, m)
			if len(room) == 0 {
				delete(t.rooms, roomID)
			}
			return m.nickname, true
		}
	}
	return "", false
}

// UniqueUserCount returns the number of distinct user ids in the room.
// Members whose transport is no longer open are evicted as a side effect.
// The member list is snapshotted before mutating the set: deleting from the
// live map while ranging over it can silently skip elements.
func (t *Table) UniqueUserCount(roomID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return 0
	}

	snapshot := make([]*member, 0, len(room))
	for m := range room {
		snapshot = append(snapshot, m)
	}

	users := make(map[string]struct{})
	for _, m := range snapshot {
		if !m.conn.transport.IsOpen() {
			delete(room, m)
			continue
		}
		users[m.userID] = struct{}{}
	}
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}

	return len(users)
}

// Transports snapshots the transports of every current member of the room,
// for fan-out outside the lock. Unknown rooms yield an empty slice.
func (t *Table) Transports(roomID string) []Transport {
	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	transports := make([]Transport, 0, len(room))
	for m := range room {
		transports = append(transports, m.conn.transport)
	}
	return transports
}
