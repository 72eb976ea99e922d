// Package chat implements the real-time room server: connection lifecycle,
// room membership with single-session-per-user semantics, message broadcast,
// heartbeat-based dead-peer reclamation, and the bridge that publishes live
// occupancy counts for the polling HTTP surface.
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"peersupport/internal/database"
	"peersupport/internal/models"
	"peersupport/internal/presence"
	"peersupport/pkg/logger"

	"github.com/gorilla/websocket"
)

type Config struct {
	HeartbeatInterval time.Duration
	HistoryLimit      int
	StoreTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
}

type Server struct {
	table     *Table
	occupancy *presence.Occupancy
	store     database.MessageRepository
	cfg       Config

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewServer(store database.MessageRepository, occupancy *presence.Occupancy, cfg Config) *Server {
	cfg.applyDefaults()
	return &Server{
		table:     NewTable(),
		occupancy: occupancy,
		store:     store,
		cfg:       cfg,
		conns:     make(map[*Conn]struct{}),
	}
}

// Serve owns the connection's read loop and blocks until the connection dies.
// All events from a single connection are handled strictly in arrival order.
func (s *Server) Serve(ws *websocket.Conn) {
	c := s.register(newWSTransport(ws))
	defer s.disconnect(c)

	ws.SetReadDeadline(time.Now().Add(2 * s.cfg.HeartbeatInterval))
	ws.SetPongHandler(func(string) error {
		c.MarkAlive()
		ws.SetReadDeadline(time.Now().Add(2 * s.cfg.HeartbeatInterval))
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket read error: %v", err)
			}
			return
		}
		s.handleFrame(c, data)
	}
}

// Run drives the heartbeat monitor until the context is cancelled.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) register(t Transport) *Conn {
	c := newConn(t)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *Server) unregister(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) connSnapshot() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

// sweep terminates connections that failed to pong since the previous sweep
// and arms the rest for the next one. A peer is therefore reaped at most two
// heartbeat periods after it goes silent, never on its first missed ping.
func (s *Server) sweep() {
	for _, c := range s.connSnapshot() {
		if !c.alive.Load() {
			s.disconnect(c)
			continue
		}
		c.alive.Store(false)
		if err := c.transport.WritePing(); err != nil {
			s.disconnect(c)
		}
	}
}

// disconnect is the terminal path for a connection: transport close, registry
// removal, membership reap. Safe to call more than once; the read loop and the
// heartbeat sweep may both get here for the same connection.
func (s *Server) disconnect(c *Conn) {
	c.transport.Close()
	s.unregister(c)
	s.reapMembership(c)
}

func (s *Server) handleFrame(c *Conn, data []byte) {
	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn("Dropping malformed frame: %v", err)
		return
	}

	switch frame.Type {
	case models.FrameTypeJoin:
		s.handleJoin(c, &frame)
	case models.FrameTypeLeave:
		s.handleLeave(c)
	case models.FrameTypeChat:
		s.handleChat(c, &frame)
	case models.FrameTypeTyping:
		s.handleTyping(c, &frame)
	default:
		logger.Warn("Dropping frame with unknown type %q", frame.Type)
	}
}

func (s *Server) handleJoin(c *Conn, frame *models.Frame) {
	if frame.RoomID == "" || frame.UserID == "" || frame.Nickname == "" {
		return
	}
	if _, _, _, joined := c.session(); joined {
		// Joining is only valid from the unjoined state; a connection
		// must leave before entering another room.
		return
	}

	c.setSession(frame.RoomID, frame.UserID, frame.Nickname)
	s.table.Join(frame.RoomID, frame.UserID, frame.Nickname, c)

	count := s.reconcile(frame.RoomID)

	s.sendHistory(c, frame.RoomID)

	s.broadcastToRoom(frame.RoomID, models.OnlineCountFrame{
		Type:  models.FrameTypeOnlineCount,
		Count: count,
	})
	s.broadcastToRoom(frame.RoomID, models.PresenceFrame{
		Type:      models.FrameTypeJoin,
		UserID:    frame.UserID,
		Nickname:  frame.Nickname,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})

	logger.Info("%s joined room %s", frame.Nickname, frame.RoomID)
}

func (s *Server) handleLeave(c *Conn) {
	s.reapMembership(c)
}

func (s *Server) handleChat(c *Conn, frame *models.Frame) {
	roomID, userID, nickname, _ := c.session()
	if frame.Content == "" || roomID == "" || userID == "" {
		return
	}

	// Classification is an external collaborator; everything is stored
	// unclassified for now.
	const riskLevel = "none"

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	msg, err := s.store.Append(ctx, roomID, userID, frame.Content, riskLevel)
	if err != nil {
		// Persistence failure drops the message: no retry, no broadcast,
		// no error frame back to the sender.
		logger.Error("Error saving message: %v", err)
		return
	}

	s.broadcastToRoom(roomID, models.ChatFrame{
		Type:      models.FrameTypeChat,
		UserID:    msg.UserID,
		Nickname:  nickname,
		Content:   msg.Content,
		Timestamp: msg.CreatedAt.Format(time.RFC3339),
		RiskLevel: msg.RiskLevel,
	})
}

func (s *Server) handleTyping(c *Conn, frame *models.Frame) {
	roomID, userID, sessionNickname, _ := c.session()
	if roomID == "" || userID == "" {
		return
	}
	nickname := frame.Nickname
	if nickname == "" {
		nickname = sessionNickname
	}
	s.broadcastToRoom(roomID, models.TypingFrame{
		Type:     models.FrameTypeTyping,
		UserID:   userID,
		Nickname: nickname,
	})
}

// reapMembership removes the connection's membership record and, when one was
// actually removed, publishes the new occupancy and notifies the room. The
// user id is captured from the connection's metadata before removal; the
// record itself is gone by the time the leave frame is built.
func (s *Server) reapMembership(c *Conn) {
	roomID, userID, _, _ := c.session()
	if roomID == "" {
		return
	}

	nickname, removed := s.table.Remove(roomID, c)
	if !removed {
		return
	}
	c.clearSession()

	count := s.reconcile(roomID)

	s.broadcastToRoom(roomID, models.OnlineCountFrame{
		Type:  models.FrameTypeOnlineCount,
		Count: count,
	})
	if nickname != "" {
		s.broadcastToRoom(roomID, models.PresenceFrame{
			Type:      models.FrameTypeLeave,
			UserID:    userID,
			Nickname:  nickname,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		logger.Info("%s left room %s", nickname, roomID)
	}
}

// reconcile recomputes the room's unique-user count and overwrites the shared
// occupancy cache entry so the polling API sees it.
func (s *Server) reconcile(roomID string) int {
	count := s.table.UniqueUserCount(roomID)
	s.occupancy.Set(roomID, count)
	return count
}

func (s *Server) sendHistory(c *Conn, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreTimeout)
	defer cancel()

	messages, err := s.store.RecentByRoom(ctx, roomID, s.cfg.HistoryLimit)
	if err != nil {
		logger.Error("Error loading history for room %s: %v", roomID, err)
		messages = nil
	}

	// The store returns newest first; the client wants chronological order.
	chronological := make([]*models.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		chronological = append(chronological, messages[i])
	}

	s.send(c.transport, models.HistoryFrame{
		Type:     models.FrameTypeHistory,
		Messages: chronological,
	})
}

// broadcastToRoom serializes the frame once and fans it out to every member
// whose transport is still open. Sends to closed transports are skipped, not
// queued or retried; an empty or unknown room is a no-op.
func (s *Server) broadcastToRoom(roomID string, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Error marshaling broadcast frame: %v", err)
		return
	}
	for _, tr := range s.table.Transports(roomID) {
		if !tr.IsOpen() {
			continue
		}
		if err := tr.WriteMessage(data); err != nil {
			logger.Debug("Broadcast write failed: %v", err)
		}
	}
}

func (s *Server) send(tr Transport, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Error marshaling frame: %v", err)
		return
	}
	if !tr.IsOpen() {
		return
	}
	if err := tr.WriteMessage(data); err != nil {
		logger.Debug("Unicast write failed: %v", err)
	}
}
