package model

import (
	"time"
)

// Action kinds accepted by the relay.
const (
	ActionDraw  = "draw"
	ActionErase = "erase"
	ActionClear = "clear"
)

// Stroke defaults applied when a client omits styling.
const (
	DefaultColor     = "#000000"
	DefaultLineWidth = 2
)

// Session is a named whiteboard with a persisted action history.
type Session struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	CreatedDate  time.Time `gorm:"autoCreateTime" json:"createdDate"`
	LastModified time.Time `gorm:"index" json:"lastModified"`

	// Relations
	DrawingActions []DrawingAction `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"drawing_actions,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}

// DrawingAction is one immutable stroke segment or control action.
// History ordering is by timestamp, ties broken by the row id.
type DrawingAction struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string  `gorm:"type:varchar(36);not null;index:idx_session_timestamp" json:"sessionId"`
	UserID     string  `gorm:"type:varchar(50);not null" json:"userId"`
	ActionType string  `gorm:"type:varchar(20);not null" json:"actionType"` // draw, erase, clear
	StartX     float64 `json:"startX"`
	StartY     float64 `json:"startY"`
	EndX       float64 `json:"endX"`
	EndY       float64 `json:"endY"`
	Color      string  `gorm:"type:varchar(7);default:'#000000'" json:"color"`
	// No column default here: clear actions persist a zero width and a
	// database default would silently replace it on insert.
	LineWidth float64   `json:"lineWidth"`
	Timestamp time.Time `gorm:"index:idx_session_timestamp" json:"timestamp"`

	// Relations
	Session Session `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

func (DrawingAction) TableName() string {
	return "drawing_actions"
}

// ValidActionType reports whether kind is one of the accepted action kinds.
func ValidActionType(kind string) bool {
	switch kind {
	case ActionDraw, ActionErase, ActionClear:
		return true
	default:
		return false
	}
}

// ValidColor reports whether c is a 7-character #RRGGBB color string.
func ValidColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for _, ch := range c[1:] {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}
	return true
}
