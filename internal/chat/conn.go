package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Transport is the outbound half of a client connection. Implementations must
// be safe for concurrent use: the dispatcher, the broadcaster, and the
// heartbeat sweep all write through it.
type Transport interface {
	WriteMessage(data []byte) error
	WritePing() error
	Close() error
	IsOpen() bool
}

// Conn is one live client connection and its attached metadata. The session
// fields are written on join and cleared on leave; they are guarded because
// the heartbeat sweep can reap a connection while its read loop is still
// handling a frame.
type Conn struct {
	transport Transport
	alive     atomic.Bool

	mu       sync.Mutex
	joined   bool
	roomID   string
	userID   string
	nickname string
}

func newConn(t Transport) *Conn {
	c := &Conn{transport: t}
	c.alive.Store(true)
	return c
}

// MarkAlive records a pong from the peer, deferring termination past the next
// heartbeat sweep.
func (c *Conn) MarkAlive() {
	c.alive.Store(true)
}

func (c *Conn) setSession(roomID, userID, nickname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = true
	c.roomID = roomID
	c.userID = userID
	c.nickname = nickname
}

func (c *Conn) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = false
	c.roomID = ""
	c.userID = ""
	c.nickname = ""
}

func (c *Conn) session() (roomID, userID, nickname string, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.userID, c.nickname, c.joined
}

// wsTransport adapts a gorilla connection to Transport. gorilla allows only
// one concurrent writer, so every write takes the mutex.
type wsTransport struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newWSTransport(ws *websocket.Conn) *wsTransport {
	return &wsTransport{ws: ws}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) WritePing() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return t.ws.WriteMessage(websocket.PingMessage, nil)
}

func (t *wsTransport) Close() error {
	t.closed.Store(true)
	return t.ws.Close()
}

func (t *wsTransport) IsOpen() bool {
	return !t.closed.Load()
}
