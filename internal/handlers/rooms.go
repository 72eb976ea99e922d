package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"peersupport/internal/database"
	"peersupport/internal/models"
	"peersupport/internal/presence"
	"peersupport/pkg/logger"

	"github.com/gorilla/mux"
)

const defaultMessageLimit = 50

type RoomHandlers struct {
	db           database.Database
	occupancy    *presence.Occupancy
	queryTimeout time.Duration
}

func NewRoomHandlers(db database.Database, occupancy *presence.Occupancy, queryTimeout time.Duration) *RoomHandlers {
	return &RoomHandlers{
		db:           db,
		occupancy:    occupancy,
		queryTimeout: queryTimeout,
	}
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	rooms, err := h.db.ListRooms(ctx)
	if err != nil {
		logger.Error("Error fetching rooms: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch rooms")
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}

	writeJSON(w, http.StatusOK, rooms)
}

// GetRoomActivity serves the live occupancy count for a room. It reads only
// the shared occupancy cache written by the chat server; it never touches the
// membership table or the database.
func (h *RoomHandlers) GetRoomActivity(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	writeJSON(w, http.StatusOK, map[string]int{
		"count": h.occupancy.Get(roomID),
	})
}

func (h *RoomHandlers) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	messages, err := h.db.RecentByRoom(ctx, roomID, limit)
	if err != nil {
		logger.Error("Error fetching messages for room %s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	// Store order is newest first; respond in chronological order.
	chronological := make([]*models.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		chronological = append(chronological, messages[i])
	}

	writeJSON(w, http.StatusOK, chronological)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
