package handler

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// SessionStore is the read/write surface the CRUD endpoints depend on.
type SessionStore interface {
	CreateSession(ctx context.Context, name string) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
	AppendAction(ctx context.Context, action *model.DrawingAction) error
	GetActions(ctx context.Context, sessionID string) ([]model.DrawingAction, error)
}

// RecentActionCache is the optional cached read path for recent actions.
type RecentActionCache interface {
	GetRecentActions(ctx context.Context, sessionID string) ([]model.DrawingAction, error)
}

// SessionHandler serves the session CRUD endpoints.
type SessionHandler struct {
	store SessionStore
	cache RecentActionCache // nil when Redis is not configured
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessionStore SessionStore, cache RecentActionCache) *SessionHandler {
	return &SessionHandler{store: sessionStore, cache: cache}
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// CreateSession creates a new named session.
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Session name cannot be empty",
		})
	}

	session, err := h.store.CreateSession(c.Context(), req.Name)
	if err != nil {
		log.Printf("[Session] Failed to create session %q: %v", req.Name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to create session",
		})
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"sessionId": session.ID,
	})
}

// GetSessions lists all sessions, most recently modified first.
func (h *SessionHandler) GetSessions(c *fiber.Ctx) error {
	sessions, err := h.store.ListSessions(c.Context())
	if err != nil {
		log.Printf("[Session] Failed to list sessions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to list sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"sessions": sessions,
	})
}

// LoadSession returns a session with its full action history, oldest first.
func (h *SessionHandler) LoadSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	session, err := h.store.GetSession(c.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Session not found",
		})
	}
	if err != nil {
		log.Printf("[Session] Failed to load session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load session",
		})
	}

	actions, err := h.store.GetActions(c.Context(), sessionID)
	if err != nil {
		log.Printf("[Session] Failed to load actions for session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load session history",
		})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"session":        session,
		"drawingActions": actions,
	})
}

// SaveAction persists a single drawing action over HTTP. It is a durable-save
// path only; live fan-out happens on the board socket.
func (h *SessionHandler) SaveAction(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req DrawingActionPayload
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	if !model.ValidActionType(req.ActionType) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid action type",
		})
	}

	action := &model.DrawingAction{
		SessionID:  sessionID,
		UserID:     req.UserID,
		ActionType: req.ActionType,
		StartX:     req.StartX,
		StartY:     req.StartY,
		EndX:       req.EndX,
		EndY:       req.EndY,
		Color:      req.Color,
		LineWidth:  req.LineWidth,
		Timestamp:  time.Now().UTC(),
	}
	if action.ActionType == model.ActionClear {
		action.StartX, action.StartY, action.EndX, action.EndY = 0, 0, 0, 0
		action.Color = model.DefaultColor
		action.LineWidth = 0
	} else {
		if !model.ValidColor(action.Color) {
			action.Color = model.DefaultColor
		}
		if action.LineWidth <= 0 {
			action.LineWidth = model.DefaultLineWidth
		}
	}

	if err := h.store.AppendAction(c.Context(), action); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Session not found",
			})
		}
		log.Printf("[Session] Failed to save action for session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to save drawing action",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// RecentActions returns the cached tail of a session's history, falling back
// to the database when the cache is cold or unavailable.
func (h *SessionHandler) RecentActions(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	if _, err := h.store.GetSession(c.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "Session not found",
			})
		}
		log.Printf("[Session] Failed to check session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load session",
		})
	}

	if h.cache != nil {
		actions, err := h.cache.GetRecentActions(c.Context(), sessionID)
		if err == nil && len(actions) > 0 {
			return c.JSON(fiber.Map{
				"success": true,
				"source":  "cache",
				"actions": actions,
			})
		}
		if err != nil {
			log.Printf("[Session] Cache read failed for session %s: %v", sessionID, err)
		}
	}

	actions, err := h.store.GetActions(c.Context(), sessionID)
	if err != nil {
		log.Printf("[Session] Failed to load actions for session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to load session history",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"source":  "database",
		"actions": actions,
	})
}
