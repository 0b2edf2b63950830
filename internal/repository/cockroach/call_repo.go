package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// CallRepository handles call data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

// Create creates a call and its initiator participant in a transaction
func (r *CallRepository) Create(ctx context.Context, call *domain.Call, initiator *domain.CallParticipant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO calls (
			call_id, conversation_id, initiator_id, call_type, status, message_id, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		call.CallID,
		call.ConversationID,
		call.InitiatorID,
		call.CallType,
		call.Status,
		call.MessageID,
		call.StartedAt,
	)
	if err != nil {
		return wrapErr("create call", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO call_participants (
			call_id, participant_id, user_id, has_video, has_audio, is_screen_sharing, joined_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		initiator.CallID,
		initiator.ParticipantID,
		initiator.UserID,
		initiator.HasVideo,
		initiator.HasAudio,
		initiator.IsScreenSharing,
		initiator.JoinedAt,
	)
	if err != nil {
		return wrapErr("add call initiator", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const callColumns = `call_id, conversation_id, initiator_id, call_type, status, message_id, started_at, ended_at, duration`

func scanCall(row pgx.Row) (*domain.Call, error) {
	c := &domain.Call{}
	err := row.Scan(
		&c.CallID,
		&c.ConversationID,
		&c.InitiatorID,
		&c.CallType,
		&c.Status,
		&c.MessageID,
		&c.StartedAt,
		&c.EndedAt,
		&c.Duration,
	)
	return c, err
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	c, err := scanCall(r.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id = $1`, callID))
	if err != nil {
		return nil, wrapErr("get call", err)
	}
	return c, nil
}

// ListByConversation returns the newest calls of a conversation
func (r *CallRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Call, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+callColumns+` FROM calls
		WHERE conversation_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, wrapErr("list calls", err)
	}
	defer rows.Close()

	var out []*domain.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, wrapErr("scan call", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkOngoing moves a RINGING call to ONGOING. Reports whether a row changed.
func (r *CallRepository) MarkOngoing(ctx context.Context, callID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE calls SET status = $2
		WHERE call_id = $1 AND status = $3
	`, callID, domain.CallStatusOngoing, domain.CallStatusRinging)
	if err != nil {
		return false, wrapErr("update call status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finish moves a live call to a terminal status. Only one caller wins.
func (r *CallRepository) Finish(ctx context.Context, callID uuid.UUID, status domain.CallStatus, endedAt time.Time, duration int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET status = $2, ended_at = $3, duration = $4
		WHERE call_id = $1 AND status NOT IN ($5, $6)
	`, callID, status, endedAt, duration, domain.CallStatusEnded, domain.CallStatusDeclined)
	if err != nil {
		return false, wrapErr("end call", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertParticipant joins or rejoins a participant; rejoining clears left_at
func (r *CallRepository) UpsertParticipant(ctx context.Context, p *domain.CallParticipant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO call_participants (
			call_id, participant_id, user_id, has_video, has_audio, is_screen_sharing, joined_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (call_id, participant_id) DO UPDATE
		SET has_video = excluded.has_video,
		    has_audio = excluded.has_audio,
		    is_screen_sharing = excluded.is_screen_sharing,
		    left_at = NULL
	`, p.CallID, p.ParticipantID, p.UserID, p.HasVideo, p.HasAudio, p.IsScreenSharing, p.JoinedAt)
	if err != nil {
		return wrapErr("upsert call participant", err)
	}
	return nil
}

const callParticipantColumns = `call_id, participant_id, user_id, has_video, has_audio, is_screen_sharing, joined_at, left_at`

func scanCallParticipant(row pgx.Row) (*domain.CallParticipant, error) {
	p := &domain.CallParticipant{}
	err := row.Scan(&p.CallID, &p.ParticipantID, &p.UserID, &p.HasVideo, &p.HasAudio, &p.IsScreenSharing, &p.JoinedAt, &p.LeftAt)
	return p, err
}

// GetParticipant returns a user's participant row in a call
func (r *CallRepository) GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	p, err := scanCallParticipant(r.pool.QueryRow(ctx, `
		SELECT `+callParticipantColumns+` FROM call_participants
		WHERE call_id = $1 AND user_id = $2
	`, callID, userID))
	if err != nil {
		return nil, wrapErr("get call participant", err)
	}
	return p, nil
}

// MarkParticipantLeft stamps left_at on the user's active row
func (r *CallRepository) MarkParticipantLeft(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE call_participants SET left_at = $3
		WHERE call_id = $1 AND user_id = $2 AND left_at IS NULL
	`, callID, userID, at)
	if err != nil {
		return false, wrapErr("mark participant left", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountActiveParticipants counts participants still in the call
func (r *CallRepository) CountActiveParticipants(ctx context.Context, callID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM call_participants WHERE call_id = $1 AND left_at IS NULL
	`, callID).Scan(&n)
	if err != nil {
		return 0, wrapErr("count active participants", err)
	}
	return n, nil
}

// ListParticipants returns every participant row of a call
func (r *CallRepository) ListParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+callParticipantColumns+` FROM call_participants
		WHERE call_id = $1
		ORDER BY joined_at
	`, callID)
	if err != nil {
		return nil, wrapErr("list call participants", err)
	}
	defer rows.Close()

	var out []*domain.CallParticipant
	for rows.Next() {
		p, err := scanCallParticipant(rows)
		if err != nil {
			return nil, wrapErr("scan call participant", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
