package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/store"
)

// fakeSessionStore backs the CRUD endpoints in tests.
type fakeSessionStore struct {
	sessions map[string]*model.Session
	actions  map[string][]model.DrawingAction
	nextID   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]*model.Session),
		actions:  make(map[string][]model.DrawingAction),
	}
}

func (s *fakeSessionStore) CreateSession(ctx context.Context, name string) (*model.Session, error) {
	s.nextID++
	now := time.Now().UTC()
	session := &model.Session{
		ID:           "session-" + string(rune('a'+s.nextID-1)),
		Name:         name,
		CreatedDate:  now,
		LastModified: now,
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *fakeSessionStore) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *fakeSessionStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	out := make([]model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out, nil
}

func (s *fakeSessionStore) AppendAction(ctx context.Context, action *model.DrawingAction) error {
	if _, ok := s.sessions[action.SessionID]; !ok {
		return store.ErrSessionNotFound
	}
	s.actions[action.SessionID] = append(s.actions[action.SessionID], *action)
	return nil
}

func (s *fakeSessionStore) GetActions(ctx context.Context, sessionID string) ([]model.DrawingAction, error) {
	return s.actions[sessionID], nil
}

// fakeRecentCache serves a canned recent-action tail.
type fakeRecentCache struct {
	actions map[string][]model.DrawingAction
	err     error
}

func (c *fakeRecentCache) GetRecentActions(ctx context.Context, sessionID string) ([]model.DrawingAction, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.actions[sessionID], nil
}

func newSessionApp(h *SessionHandler) *fiber.App {
	app := fiber.New()
	app.Post("/api/sessions", h.CreateSession)
	app.Get("/api/sessions", h.GetSessions)
	app.Get("/api/sessions/:id", h.LoadSession)
	app.Post("/api/sessions/:id/actions", h.SaveAction)
	app.Get("/api/sessions/:id/actions/recent", h.RecentActions)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	return resp, parsed
}

func TestCreateSession(t *testing.T) {
	st := newFakeSessionStore()
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, body := doJSON(t, app, "POST", "/api/sessions", `{"name":"demo"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["sessionId"])
}

func TestCreateSessionRejectsEmptyName(t *testing.T) {
	st := newFakeSessionStore()
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, body := doJSON(t, app, "POST", "/api/sessions", `{"name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, st.sessions)
}

func TestLoadSessionReturnsHistory(t *testing.T) {
	st := newFakeSessionStore()
	session, err := st.CreateSession(context.Background(), "demo")
	require.NoError(t, err)
	st.actions[session.ID] = []model.DrawingAction{
		{SessionID: session.ID, UserID: "alice", ActionType: model.ActionDraw, EndX: 10, Color: "#ff0000"},
		{SessionID: session.ID, UserID: "bob", ActionType: model.ActionClear},
	}
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, body := doJSON(t, app, "GET", "/api/sessions/"+session.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	actions, ok := body["drawingActions"].([]any)
	require.True(t, ok)
	require.Len(t, actions, 2)
	first := actions[0].(map[string]any)
	assert.Equal(t, "draw", first["actionType"])
	assert.Equal(t, "#ff0000", first["color"])
}

func TestLoadSessionNotFound(t *testing.T) {
	app := newSessionApp(NewSessionHandler(newFakeSessionStore(), nil))

	resp, body := doJSON(t, app, "GET", "/api/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestGetSessions(t *testing.T) {
	st := newFakeSessionStore()
	_, err := st.CreateSession(context.Background(), "one")
	require.NoError(t, err)
	_, err = st.CreateSession(context.Background(), "two")
	require.NoError(t, err)
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, body := doJSON(t, app, "GET", "/api/sessions", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 2)
}

func TestSaveActionPersistsStroke(t *testing.T) {
	st := newFakeSessionStore()
	session, err := st.CreateSession(context.Background(), "demo")
	require.NoError(t, err)
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, body := doJSON(t, app, "POST", "/api/sessions/"+session.ID+"/actions",
		`{"userId":"alice","actionType":"draw","startX":1,"startY":2,"endX":3,"endY":4,"color":"#ff0000","lineWidth":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	actions := st.actions[session.ID]
	require.Len(t, actions, 1)
	assert.Equal(t, session.ID, actions[0].SessionID)
	assert.Equal(t, "alice", actions[0].UserID)
	assert.Equal(t, "#ff0000", actions[0].Color)
	assert.Equal(t, 5.0, actions[0].LineWidth)
	assert.False(t, actions[0].Timestamp.IsZero())
}

func TestSaveActionAppliesStrokeDefaults(t *testing.T) {
	st := newFakeSessionStore()
	session, err := st.CreateSession(context.Background(), "demo")
	require.NoError(t, err)
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, _ := doJSON(t, app, "POST", "/api/sessions/"+session.ID+"/actions",
		`{"userId":"alice","actionType":"draw","endX":10,"color":"not-a-color","lineWidth":-3}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	actions := st.actions[session.ID]
	require.Len(t, actions, 1)
	assert.Equal(t, model.DefaultColor, actions[0].Color)
	assert.Equal(t, float64(model.DefaultLineWidth), actions[0].LineWidth)
}

func TestSaveActionClearZeroesStroke(t *testing.T) {
	st := newFakeSessionStore()
	session, err := st.CreateSession(context.Background(), "demo")
	require.NoError(t, err)
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, _ := doJSON(t, app, "POST", "/api/sessions/"+session.ID+"/actions",
		`{"userId":"alice","actionType":"clear","startX":9,"endX":9,"color":"#ff0000","lineWidth":5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	actions := st.actions[session.ID]
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionClear, actions[0].ActionType)
	assert.Zero(t, actions[0].StartX)
	assert.Zero(t, actions[0].EndX)
	assert.Zero(t, actions[0].LineWidth)
	assert.Equal(t, model.DefaultColor, actions[0].Color)
}

func TestSaveActionRejectsUnknownType(t *testing.T) {
	st := newFakeSessionStore()
	session, err := st.CreateSession(context.Background(), "demo")
	require.NoError(t, err)
	app := newSessionApp(NewSessionHandler(st, nil))

	resp, body := doJSON(t, app, "POST", "/api/sessions/"+session.ID+"/actions",
		`{"userId":"alice","actionType":"scribble"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, st.actions[session.ID])
}

func TestSaveActionUnknownSession(t *testing.T) {
	app := newSessionApp(NewSessionHandler(newFakeSessionStore(), nil))

	resp, body := doJSON(t, app, "POST", "/api/sessions/ghost/actions",
		`{"userId":"alice","actionType":"draw"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestRecentActionsPrefersCache(t *testing.T) {
	st := newFakeSessionStore()
	session, err := st.CreateSession(context.Background(), "demo")
	require.NoError(t, err)
	cache := &fakeRecentCache{actions: map[string][]model.DrawingAction{
		session.ID: {{SessionID: session.ID, UserID: "alice", ActionType: model.ActionDraw}},
	}}
	app := newSessionApp(NewSessionHandler(st, cache))

	resp, body := doJSON(t, app, "GET", "/api/sessions/"+session.ID+"/actions/recent", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cache", body["source"])
}

func TestRecentActionsFallsBackToDatabase(t *testing.T) {
	st := newFakeSessionStore()
	session, err := st.CreateSession(context.Background(), "demo")
	require.NoError(t, err)
	st.actions[session.ID] = []model.DrawingAction{
		{SessionID: session.ID, UserID: "alice", ActionType: model.ActionDraw},
	}
	cache := &fakeRecentCache{err: context.DeadlineExceeded}
	app := newSessionApp(NewSessionHandler(st, cache))

	resp, body := doJSON(t, app, "GET", "/api/sessions/"+session.ID+"/actions/recent", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "database", body["source"])

	actions, ok := body["actions"].([]any)
	require.True(t, ok)
	assert.Len(t, actions, 1)
}
