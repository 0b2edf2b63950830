package cockroach

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// WatchRepository handles watch-together sessions
type WatchRepository struct {
	pool *pgxpool.Pool
}

// NewWatchRepository creates a new WatchRepository
func NewWatchRepository(pool *pgxpool.Pool) *WatchRepository {
	return &WatchRepository{pool: pool}
}

// Create inserts a new session
func (r *WatchRepository) Create(ctx context.Context, s *domain.WatchSession) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO watch_sessions (
			session_id, conversation_id, started_by, message_id, media_url, title, thumbnail_url,
			current_position, is_playing, is_active, updated_by, updated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		s.SessionID,
		s.ConversationID,
		s.StartedBy,
		s.MessageID,
		s.MediaURL,
		s.Title,
		s.ThumbnailURL,
		s.CurrentPosition,
		s.IsPlaying,
		s.IsActive,
		s.UpdatedBy,
		s.UpdatedAt,
		s.CreatedAt,
	)
	if err != nil {
		return wrapErr("create watch session", err)
	}
	return nil
}

const watchColumns = `session_id, conversation_id, started_by, message_id, media_url, title, thumbnail_url,
	current_position, is_playing, is_active, updated_by, updated_at, created_at, ended_at`

func scanWatch(row pgx.Row) (*domain.WatchSession, error) {
	s := &domain.WatchSession{}
	err := row.Scan(
		&s.SessionID,
		&s.ConversationID,
		&s.StartedBy,
		&s.MessageID,
		&s.MediaURL,
		&s.Title,
		&s.ThumbnailURL,
		&s.CurrentPosition,
		&s.IsPlaying,
		&s.IsActive,
		&s.UpdatedBy,
		&s.UpdatedAt,
		&s.CreatedAt,
		&s.EndedAt,
	)
	return s, err
}

// GetByID retrieves a session
func (r *WatchRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.WatchSession, error) {
	s, err := scanWatch(r.pool.QueryRow(ctx, `SELECT `+watchColumns+` FROM watch_sessions WHERE session_id = $1`, sessionID))
	if err != nil {
		return nil, wrapErr("get watch session", err)
	}
	return s, nil
}

// UpdatePlayback overwrites the shared cursor; the last write wins
func (r *WatchRepository) UpdatePlayback(ctx context.Context, sessionID uuid.UUID, update domain.PlaybackUpdate, updatedBy uuid.UUID, at time.Time) (*domain.WatchSession, error) {
	s, err := scanWatch(r.pool.QueryRow(ctx, `
		UPDATE watch_sessions
		SET current_position = $2, is_playing = $3, updated_by = $4, updated_at = $5
		WHERE session_id = $1 AND is_active
		RETURNING `+watchColumns,
		sessionID, update.CurrentPosition, update.IsPlaying, updatedBy, at))
	if err != nil {
		return nil, wrapErr("update watch session", err)
	}
	return s, nil
}

// End stops a session. Reports whether this caller ended it.
func (r *WatchRepository) End(ctx context.Context, sessionID, endedBy uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE watch_sessions
		SET is_active = false, is_playing = false, ended_at = $3, updated_by = $2, updated_at = $3
		WHERE session_id = $1 AND is_active
	`, sessionID, endedBy, at)
	if err != nil {
		return false, wrapErr("end watch session", err)
	}
	return tag.RowsAffected() == 1, nil
}
