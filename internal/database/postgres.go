package database

import (
	"context"
	"fmt"

	"peersupport/internal/models"
	"peersupport/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Message Repository Implementation
func (db *PostgresDB) Append(ctx context.Context, roomID, userID, content, riskLevel string) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, room_id, user_id, content, risk_level, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`

	msg := &models.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		RiskLevel: riskLevel,
	}
	if err := db.pool.QueryRow(ctx, query, msg.ID, roomID, userID, content, riskLevel).Scan(&msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return msg, nil
}

func (db *PostgresDB) RecentByRoom(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, room_id, user_id, content, risk_level, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Content, &msg.RiskLevel, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Room Repository Implementation
func (db *PostgresDB) ListRooms(ctx context.Context) ([]*models.Room, error) {
	query := `
		SELECT id, name, description, created_at
		FROM rooms
		ORDER BY created_at ASC`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room := &models.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}
