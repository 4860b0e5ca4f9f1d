package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"voicelink-backend/internal/domain"
	apperrors "voicelink-backend/pkg/errors"
)

// CallRepository handles call data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

const callColumns = `call_id, caller_id, receiver_id, call_type, status, room_id,
       initiated_at, ringing_at, accepted_at, ended_at, duration`

// Create creates a new call record
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	query := `
		INSERT INTO calls (
			call_id, caller_id, receiver_id, call_type, status, room_id, initiated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		call.CallID,
		call.CallerID,
		call.ReceiverID,
		call.CallType,
		call.Status,
		call.RoomID,
		call.InitiatedAt,
	)
	if err != nil {
		// 23503: receiver_id references the users table, so an unknown
		// receiver surfaces here as a foreign key violation
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return apperrors.UserNotFoundError()
		}
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`

	call := &domain.Call{}
	err := r.pool.QueryRow(ctx, query, callID).Scan(
		&call.CallID,
		&call.CallerID,
		&call.ReceiverID,
		&call.CallType,
		&call.Status,
		&call.RoomID,
		&call.InitiatedAt,
		&call.RingingAt,
		&call.AcceptedAt,
		&call.EndedAt,
		&call.Duration,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return call, nil
}

// Transition atomically moves a call from one of the allowed source states to
// the target state, stamping the timestamp column that belongs to the target.
// Returns false when the call was not in an allowed source state; the record
// is left untouched in that case. Two racing transitions serialize here: the
// loser sees zero rows affected.
func (r *CallRepository) Transition(ctx context.Context, callID uuid.UUID, from []domain.CallStatus, to domain.CallStatus, at time.Time) (bool, error) {
	var query string
	switch to {
	case domain.CallStatusRinging:
		query = `UPDATE calls SET status = $3, ringing_at = $4
		         WHERE call_id = $1 AND status = ANY($2)`
	case domain.CallStatusAccepted:
		query = `UPDATE calls SET status = $3, accepted_at = $4
		         WHERE call_id = $1 AND status = ANY($2)`
	case domain.CallStatusEnded:
		query = `UPDATE calls SET status = $3, ended_at = $4,
		             duration = EXTRACT(EPOCH FROM ($4 - accepted_at))::INT
		         WHERE call_id = $1 AND status = ANY($2)`
	default:
		// rejected, cancelled, missed: terminal without a duration
		query = `UPDATE calls SET status = $3, ended_at = $4
		         WHERE call_id = $1 AND status = ANY($2)`
	}

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	tag, err := r.pool.Exec(ctx, query, callID, statuses, to, at)
	if err != nil {
		return false, fmt.Errorf("failed to transition call: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetHistory retrieves terminal and in-progress calls for a user, newest
// first. Calls still in initiated are excluded: they were never presented
// to the other party.
func (r *CallRepository) GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE (caller_id = $1 OR receiver_id = $1) AND status <> 'initiated'
		ORDER BY initiated_at DESC
		LIMIT $2
	`
	return r.queryCalls(ctx, query, userID, limit)
}

// GetActive retrieves the user's calls that have not reached a terminal state
func (r *CallRepository) GetActive(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE (caller_id = $1 OR receiver_id = $1)
		  AND status IN ('initiated', 'ringing', 'accepted')
		ORDER BY initiated_at DESC
	`
	return r.queryCalls(ctx, query, userID)
}

// GetMissed retrieves missed calls for the receiving user
func (r *CallRepository) GetMissed(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE receiver_id = $1 AND status = 'missed'
		ORDER BY initiated_at DESC
		LIMIT $2
	`
	return r.queryCalls(ctx, query, userID, limit)
}

// ListStale retrieves calls stuck in initiated/ringing since before the cutoff.
// Used by the missed-call sweeper.
func (r *CallRepository) ListStale(ctx context.Context, before time.Time) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE status IN ('initiated', 'ringing') AND initiated_at < $1
		ORDER BY initiated_at ASC
	`
	return r.queryCalls(ctx, query, before)
}

func (r *CallRepository) queryCalls(ctx context.Context, query string, args ...interface{}) ([]*domain.Call, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call := &domain.Call{}
		err := rows.Scan(
			&call.CallID,
			&call.CallerID,
			&call.ReceiverID,
			&call.CallType,
			&call.Status,
			&call.RoomID,
			&call.InitiatedAt,
			&call.RingingAt,
			&call.AcceptedAt,
			&call.EndedAt,
			&call.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}

	return calls, nil
}
