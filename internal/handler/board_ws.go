package handler

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
)

// BoardWSHandler owns the board socket read loop and dispatches client
// messages into the hub.
type BoardWSHandler struct {
	hub *BoardHub
}

// NewBoardWSHandler creates a BoardWSHandler.
func NewBoardWSHandler(hub *BoardHub) *BoardWSHandler {
	return &BoardWSHandler{hub: hub}
}

// HandleWebSocket runs for the lifetime of one board connection.
func (h *BoardWSHandler) HandleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals("userId").(string)

	client := h.hub.OnConnect(c, userID)
	defer h.hub.OnDisconnect(client.ID)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case MsgJoinSession:
			var p SessionRefPayload
			if !decodePayload(msg.Payload, &p) {
				continue
			}
			h.hub.JoinSession(client.ID, p.SessionID, p.UserID)

		case MsgLeaveSession:
			var p SessionRefPayload
			if !decodePayload(msg.Payload, &p) {
				continue
			}
			h.hub.LeaveSession(client.ID, p.SessionID, p.UserID)

		case MsgSendDrawingAction:
			var p DrawingActionPayload
			if !decodePayload(msg.Payload, &p) {
				continue
			}
			h.hub.SubmitDrawingAction(context.Background(), client.ID, p)

		case MsgClearBoard:
			var p SessionRefPayload
			if !decodePayload(msg.Payload, &p) {
				continue
			}
			h.hub.ClearBoard(context.Background(), client.ID, p.SessionID, p.UserID)

		default:
			log.Printf("[BoardWS] Unknown message type %q from connection %s", msg.Type, client.ID)
		}
	}
}

// decodePayload converts a decoded envelope payload into a typed struct.
func decodePayload(payload any, out any) bool {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(payloadBytes, out) == nil
}
