package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// =============================================================================
// Board Hub - connection registry, session groups and action relay
// =============================================================================

// Wire message types produced for clients.
const (
	EventUserJoined           = "UserJoined"
	EventUserLeft             = "UserLeft"
	EventReceiveDrawingAction = "ReceiveDrawingAction"
	EventClearBoard           = "ClearBoard"
)

// Wire message types accepted from clients.
const (
	MsgJoinSession       = "JoinSession"
	MsgLeaveSession      = "LeaveSession"
	MsgSendDrawingAction = "SendDrawingAction"
	MsgClearBoard        = "ClearBoard"
)

// WSMessage is the JSON envelope carried on the board socket.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// DrawingActionPayload mirrors the client-side stroke fields.
type DrawingActionPayload struct {
	SessionID  string  `json:"sessionId"`
	UserID     string  `json:"userId"`
	ActionType string  `json:"actionType"`
	StartX     float64 `json:"startX"`
	StartY     float64 `json:"startY"`
	EndX       float64 `json:"endX"`
	EndY       float64 `json:"endY"`
	Color      string  `json:"color"`
	LineWidth  float64 `json:"lineWidth"`
}

// SessionRefPayload references a session in join/leave/clear requests.
type SessionRefPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// UserJoinedPayload notifies a group that a connection joined.
type UserJoinedPayload struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// UserLeftPayload notifies a group that a connection left.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// ClearBoardPayload tells every member to wipe the canvas.
type ClearBoardPayload struct {
	UserID string `json:"userId"`
}

// BoardStore is the persistence surface the relay depends on.
type BoardStore interface {
	AppendAction(ctx context.Context, action *model.DrawingAction) error
}

// ActionCache is the optional recent-action cache surface.
type ActionCache interface {
	AddAction(ctx context.Context, action *model.DrawingAction) error
	InvalidateSession(ctx context.Context, sessionID string) error
}

// boardConn is the subset of the websocket connection the hub writes to.
type boardConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// BoardClient is one live connection. A connection belongs to at most one
// session group at a time.
type BoardClient struct {
	ID     string
	UserID string

	conn      boardConn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// sessionID is the current membership, guarded by the hub mutex.
	sessionID string
}

// sessionGroup is the set of connections currently joined to one session.
type sessionGroup struct {
	id      string
	mu      sync.RWMutex
	members map[string]*BoardClient
}

// BoardHub tracks live connections and relays drawing actions between the
// members of each session.
type BoardHub struct {
	mu      sync.RWMutex
	clients map[string]*BoardClient  // connectionID -> client
	groups  map[string]*sessionGroup // sessionID -> group

	store BoardStore
	cache ActionCache // nil when Redis is not configured
	cfg   *config.Config
}

// NewBoardHub creates a new BoardHub instance.
func NewBoardHub(boardStore BoardStore, actionCache ActionCache, cfg *config.Config) *BoardHub {
	if boardStore == nil {
		panic("BoardStore cannot be nil for BoardHub")
	}
	return &BoardHub{
		clients: make(map[string]*BoardClient),
		groups:  make(map[string]*sessionGroup),
		store:   boardStore,
		cache:   actionCache,
		cfg:     cfg,
	}
}

// =============================================================================
// Connection lifecycle
// =============================================================================

// OnConnect registers a new connection with no session membership and starts
// its write pump.
func (h *BoardHub) OnConnect(conn boardConn, userID string) *BoardClient {
	client := &BoardClient{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, h.cfg.Hub.SendQueueSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	go client.writePump(h.cfg.WebSocket.WriteTimeout)

	log.Printf("[BoardHub] Client connected: %s (user: %s), total: %d", client.ID, userID, total)
	return client
}

// OnDisconnect removes the connection from its session group (if any),
// notifies the remaining members and deletes the registry entry. Calling it
// for an unknown connection is a no-op.
func (h *BoardHub) OnDisconnect(connectionID string) {
	h.mu.Lock()
	client, ok := h.clients[connectionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, connectionID)

	userID := client.UserID
	sessionID := client.sessionID
	client.sessionID = ""
	var group *sessionGroup
	removed := false
	if sessionID != "" {
		if group = h.groups[sessionID]; group != nil {
			removed = group.removeMember(connectionID)
			if group.size() == 0 {
				delete(h.groups, sessionID)
			}
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		group.broadcast(marshalEvent(EventUserLeft, UserLeftPayload{UserID: userID}), "")
	}

	client.close()
	log.Printf("[BoardHub] Client disconnected: %s, total: %d", connectionID, total)
}

// JoinSession adds the connection to the session's group and notifies every
// member, including the joiner. A connection holds one membership at a time:
// joining a second session detaches it from the first.
func (h *BoardHub) JoinSession(connectionID, sessionID, userID string) {
	if sessionID == "" {
		return
	}

	h.mu.Lock()
	client, ok := h.clients[connectionID]
	if !ok {
		h.mu.Unlock()
		log.Printf("[BoardHub] Join from unknown connection %s ignored", connectionID)
		return
	}
	if userID != "" {
		client.UserID = userID
	}
	memberUserID := client.UserID

	var prevGroup *sessionGroup
	prevRemoved := false
	if prev := client.sessionID; prev != "" && prev != sessionID {
		if prevGroup = h.groups[prev]; prevGroup != nil {
			prevRemoved = prevGroup.removeMember(connectionID)
			if prevGroup.size() == 0 {
				delete(h.groups, prev)
			}
		}
	}
	client.sessionID = sessionID

	group := h.groups[sessionID]
	if group == nil {
		group = &sessionGroup{id: sessionID, members: make(map[string]*BoardClient)}
		h.groups[sessionID] = group
	}
	group.addMember(client)
	h.mu.Unlock()

	if prevRemoved {
		prevGroup.broadcast(marshalEvent(EventUserLeft, UserLeftPayload{UserID: memberUserID}), "")
	}

	group.broadcast(marshalEvent(EventUserJoined, UserJoinedPayload{
		UserID:       memberUserID,
		ConnectionID: connectionID,
	}), "")

	log.Printf("[BoardHub] User %s joined session %s (connection %s), members: %d",
		memberUserID, sessionID, connectionID, group.size())
}

// LeaveSession removes the connection from the group and notifies the
// remaining members. Leaving a session the connection is not a member of is
// a no-op.
func (h *BoardHub) LeaveSession(connectionID, sessionID, userID string) {
	if sessionID == "" {
		return
	}

	h.mu.Lock()
	if client, ok := h.clients[connectionID]; ok && client.sessionID == sessionID {
		client.sessionID = ""
	}
	group := h.groups[sessionID]
	removed := false
	if group != nil {
		removed = group.removeMember(connectionID)
		if group.size() == 0 {
			delete(h.groups, sessionID)
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}

	group.broadcast(marshalEvent(EventUserLeft, UserLeftPayload{UserID: userID}), "")
	log.Printf("[BoardHub] User %s left session %s (connection %s)", userID, sessionID, connectionID)
}

// =============================================================================
// Action relay
// =============================================================================

// SubmitDrawingAction persists one stroke segment and fans it out to every
// member of the session except the sender. The channel is fire-and-forget:
// failures are logged and the sender is never told.
func (h *BoardHub) SubmitDrawingAction(ctx context.Context, senderConnectionID string, p DrawingActionPayload) {
	if p.ActionType == model.ActionClear {
		// Clears are a group-wide control action with their own delivery rules.
		h.ClearBoard(ctx, senderConnectionID, p.SessionID, p.UserID)
		return
	}
	if !model.ValidActionType(p.ActionType) {
		log.Printf("[BoardHub] Dropping action with unknown type %q for session %s", p.ActionType, p.SessionID)
		return
	}
	if !model.ValidColor(p.Color) {
		p.Color = model.DefaultColor
	}
	if p.LineWidth <= 0 {
		p.LineWidth = model.DefaultLineWidth
	}

	action := &model.DrawingAction{
		SessionID:  p.SessionID,
		UserID:     p.UserID,
		ActionType: p.ActionType,
		StartX:     p.StartX,
		StartY:     p.StartY,
		EndX:       p.EndX,
		EndY:       p.EndY,
		Color:      p.Color,
		LineWidth:  p.LineWidth,
		Timestamp:  time.Now().UTC(),
	}

	if !h.persist(ctx, action) {
		return
	}

	group := h.group(p.SessionID)
	if group == nil {
		return
	}
	group.broadcast(marshalEvent(EventReceiveDrawingAction, p), senderConnectionID)
}

// ClearBoard persists a clear action with zeroed geometry and broadcasts it
// to every member of the session, including the sender. Clients treat a
// received clear as authoritative regardless of origin.
func (h *BoardHub) ClearBoard(ctx context.Context, senderConnectionID, sessionID, userID string) {
	action := &model.DrawingAction{
		SessionID:  sessionID,
		UserID:     userID,
		ActionType: model.ActionClear,
		Color:      model.DefaultColor,
		Timestamp:  time.Now().UTC(),
	}

	if !h.persistClear(ctx, action) {
		return
	}

	group := h.group(sessionID)
	if group == nil {
		return
	}
	group.broadcast(marshalEvent(EventClearBoard, ClearBoardPayload{UserID: userID}), "")
	log.Printf("[BoardHub] Board cleared for session %s by user %s", sessionID, userID)
}

// persist writes the action through the store and caches it on success.
// Returns false when the action was dropped.
func (h *BoardHub) persist(ctx context.Context, action *model.DrawingAction) bool {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Hub.PersistTimeout)
	defer cancel()

	if err := h.store.AppendAction(ctx, action); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			log.Printf("[BoardHub] Dropping action for unknown session %s", action.SessionID)
		} else {
			log.Printf("[BoardHub] Failed to persist action for session %s: %v", action.SessionID, err)
		}
		return false
	}

	if h.cache != nil {
		go func() {
			cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cacheCancel()
			if err := h.cache.AddAction(cacheCtx, action); err != nil {
				log.Printf("[BoardHub] Failed to cache action for session %s: %v", action.SessionID, err)
			}
		}()
	}
	return true
}

// persistClear is persist for clear actions: the cached tail is reset so it
// never replays strokes that precede the clear.
func (h *BoardHub) persistClear(ctx context.Context, action *model.DrawingAction) bool {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Hub.PersistTimeout)
	defer cancel()

	if err := h.store.AppendAction(ctx, action); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			log.Printf("[BoardHub] Dropping clear for unknown session %s", action.SessionID)
		} else {
			log.Printf("[BoardHub] Failed to persist clear for session %s: %v", action.SessionID, err)
		}
		return false
	}

	if h.cache != nil {
		go func() {
			cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cacheCancel()
			if err := h.cache.InvalidateSession(cacheCtx, action.SessionID); err != nil {
				log.Printf("[BoardHub] Failed to reset cache for session %s: %v", action.SessionID, err)
				return
			}
			if err := h.cache.AddAction(cacheCtx, action); err != nil {
				log.Printf("[BoardHub] Failed to cache clear for session %s: %v", action.SessionID, err)
			}
		}()
	}
	return true
}

// group returns the current group for a session, or nil.
func (h *BoardHub) group(sessionID string) *sessionGroup {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.groups[sessionID]
}

// Stats reports the number of live connections and active session groups.
func (h *BoardHub) Stats() (connections, sessions int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients), len(h.groups)
}

// =============================================================================
// Session group
// =============================================================================

func (g *sessionGroup) addMember(client *BoardClient) {
	g.mu.Lock()
	g.members[client.ID] = client
	g.mu.Unlock()
}

func (g *sessionGroup) removeMember(connectionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[connectionID]; !ok {
		return false
	}
	delete(g.members, connectionID)
	return true
}

func (g *sessionGroup) size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// broadcast enqueues data to every member except the excluded connection.
// The member set is snapshotted first so concurrent joins and leaves cannot
// corrupt the fan-out; a member that disconnects mid-delivery just loses the
// frame.
func (g *sessionGroup) broadcast(data []byte, excludeConnectionID string) {
	if data == nil {
		return
	}

	g.mu.RLock()
	members := make([]*BoardClient, 0, len(g.members))
	for _, m := range g.members {
		if m.ID != excludeConnectionID {
			members = append(members, m)
		}
	}
	g.mu.RUnlock()

	for _, m := range members {
		m.enqueue(data)
	}
}

// =============================================================================
// Client send path
// =============================================================================

// enqueue hands a frame to the client's write pump without blocking. A full
// queue means the client is too slow; the frame is dropped for that client
// only.
func (c *BoardClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("[BoardHub] Send queue full, dropping frame for connection %s", c.ID)
	}
}

// writePump is the single writer for this connection.
func (c *BoardClient) writePump(writeTimeout time.Duration) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[BoardHub] Failed to send to connection %s: %v", c.ID, err)
			}
		}
	}
}

// close stops the write pump and closes the underlying connection.
func (c *BoardClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// marshalEvent wraps a payload in the wire envelope.
func marshalEvent(eventType string, payload any) []byte {
	data, err := json.Marshal(WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("[BoardHub] Failed to marshal %s event: %v", eventType, err)
		return nil
	}
	return data
}
