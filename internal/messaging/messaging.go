// Package messaging is the durable store for relayed chat messages.
package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/connecthub/backend/internal/models"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateMessage persists one chat message. The relay calls this
// fire-and-forget; delivery to room members is never gated on the result.
func (s *Service) CreateMessage(ctx context.Context, senderID, receiverID, body string) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  time.Now(),
	}

	query := `
		INSERT INTO messages (id, sender_id, receiver_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, sender_id, receiver_id, body, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.CreatedAt,
	).Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &msg.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return msg, nil
}

// MessagesBetween returns the conversation between two participants in
// creation order, regardless of who sent which message.
func (s *Service) MessagesBetween(ctx context.Context, a, b string) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, sender_id, receiver_id, body, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
