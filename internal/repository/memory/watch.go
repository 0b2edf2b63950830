package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// WatchRepository is the in-memory watch-together store
type WatchRepository struct {
	s *Store
}

// Create stores a new session
func (r *WatchRepository) Create(ctx context.Context, session *domain.WatchSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.watchSessions[session.SessionID]; exists {
		return domain.ErrDuplicate
	}
	cp := *session
	r.s.watchSessions[session.SessionID] = &cp
	return nil
}

// GetByID retrieves a session
func (r *WatchRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.WatchSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ws, ok := r.s.watchSessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ws
	return &cp, nil
}

// UpdatePlayback overwrites the cursor of an active session
func (r *WatchRepository) UpdatePlayback(ctx context.Context, sessionID uuid.UUID, update domain.PlaybackUpdate, updatedBy uuid.UUID, at time.Time) (*domain.WatchSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ws, ok := r.s.watchSessions[sessionID]
	if !ok || !ws.IsActive {
		return nil, domain.ErrNotFound
	}
	ws.CurrentPosition = update.CurrentPosition
	ws.IsPlaying = update.IsPlaying
	ws.UpdatedBy = updatedBy
	ws.UpdatedAt = at
	cp := *ws
	return &cp, nil
}

// End stops a session. Reports whether this caller ended it.
func (r *WatchRepository) End(ctx context.Context, sessionID, endedBy uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ws, ok := r.s.watchSessions[sessionID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !ws.IsActive {
		return false, nil
	}
	ended := at
	ws.IsActive = false
	ws.IsPlaying = false
	ws.EndedAt = &ended
	ws.UpdatedBy = endedBy
	ws.UpdatedAt = at
	return true, nil
}
