package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicelink-backend/internal/domain"
)

// CallSignalRepository stores WebRTC signaling frames for diagnostics.
// Records are append-only.
type CallSignalRepository struct {
	pool *pgxpool.Pool
}

// NewCallSignalRepository creates a new call signal repository
func NewCallSignalRepository(pool *pgxpool.Pool) *CallSignalRepository {
	return &CallSignalRepository{pool: pool}
}

// Append records a relayed signal
func (r *CallSignalRepository) Append(ctx context.Context, signal *domain.CallSignal) error {
	query := `
		INSERT INTO call_signals (signal_id, call_id, signal_type, signal_data, sender_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if signal.SignalID == uuid.Nil {
		signal.SignalID = uuid.New()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		signal.SignalID,
		signal.CallID,
		signal.SignalType,
		signal.SignalData,
		signal.SenderID,
		signal.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append call signal: %w", err)
	}

	return nil
}
