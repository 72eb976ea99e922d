package database

import (
	"context"

	"peersupport/internal/models"
)

type MessageRepository interface {
	// Append persists a chat message and returns the stored record with its
	// server-assigned id and creation timestamp.
	Append(ctx context.Context, roomID, userID, content, riskLevel string) (*models.Message, error)
	// RecentByRoom returns up to limit messages for the room, newest first.
	RecentByRoom(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
}

type RoomRepository interface {
	ListRooms(ctx context.Context) ([]*models.Room, error)
}

type Database interface {
	MessageRepository
	RoomRepository
	Close() error
}
