package handlers

import (
	"net/http"

	"peersupport/internal/chat"
	"peersupport/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	chatServer *chat.Server
	upgrader   websocket.Upgrader
}

func NewWebSocketHandler(chatServer *chat.Server) *WebSocketHandler {
	return &WebSocketHandler{
		chatServer: chatServer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	// Serve blocks for the lifetime of the connection and cleans up
	// membership on exit.
	h.chatServer.Serve(conn)
}
