package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"whiteboard-backend/internal/model"
)

// ErrSessionNotFound is returned when the referenced session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Store provides durable access to sessions and their action history.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateSession inserts a new named session and returns it.
func (s *Store) CreateSession(ctx context.Context, name string) (*model.Session, error) {
	now := time.Now().UTC()
	session := &model.Session{
		ID:           uuid.New().String(),
		Name:         name,
		CreatedDate:  now,
		LastModified: now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession loads one session without its action history.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions, most recently modified first.
func (s *Store) ListSessions(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Order("last_modified DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// AppendAction persists one action and bumps the parent session's
// last_modified in the same transaction. Returns ErrSessionNotFound if the
// session does not exist; the action is then not persisted.
func (s *Store) AppendAction(ctx context.Context, action *model.DrawingAction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		err := tx.Select("id").First(&session, "id = ?", action.SessionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}

		if err := tx.Create(action).Error; err != nil {
			return fmt.Errorf("failed to save action: %w", err)
		}

		if err := tx.Model(&model.Session{}).
			Where("id = ?", action.SessionID).
			Update("last_modified", action.Timestamp).Error; err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		return nil
	})
}

// GetActions returns a session's full history, oldest first. Ties on the
// server timestamp fall back to insertion order.
func (s *Store) GetActions(ctx context.Context, sessionID string) ([]model.DrawingAction, error) {
	var actions []model.DrawingAction
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC, id ASC").
		Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch actions: %w", err)
	}
	return actions, nil
}
