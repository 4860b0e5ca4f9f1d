package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicelink-backend/internal/domain"
)

// MessageRepository handles direct and group message persistence
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// CreateDirect persists a direct message and returns the stored record
func (r *MessageRepository) CreateDirect(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.DirectMessage, error) {
	msg := &domain.DirectMessage{
		MessageID:  uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}

	query := `
		INSERT INTO direct_messages (message_id, sender_id, receiver_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, false, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		msg.MessageID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create direct message: %w", err)
	}

	return msg, nil
}

// CreateGroup persists a group message and returns the stored record
func (r *MessageRepository) CreateGroup(ctx context.Context, senderID, groupID uuid.UUID, content string) (*domain.GroupMessage, error) {
	msg := &domain.GroupMessage{
		MessageID: uuid.New(),
		SenderID:  senderID,
		GroupID:   groupID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO group_messages (message_id, sender_id, group_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		msg.MessageID,
		msg.SenderID,
		msg.GroupID,
		msg.Content,
		msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create group message: %w", err)
	}

	return msg, nil
}

// MarkDirectRead flips the read flag of a direct message; only the receiver may do so
func (r *MessageRepository) MarkDirectRead(ctx context.Context, messageID, receiverID uuid.UUID) error {
	query := `
		UPDATE direct_messages
		SET is_read = true
		WHERE message_id = $1 AND receiver_id = $2
	`

	_, err := r.pool.Exec(ctx, query, messageID, receiverID)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}

	return nil
}
