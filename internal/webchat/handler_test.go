package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/jewelry-concierge/internal/conversation"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

// fakeEngine replays fixed chunks for every turn.
type fakeEngine struct {
	chunks   []conversation.StreamChunk
	err      error
	requests []conversation.TurnRequest
	history  []conversation.ChatMessage
	histErr  error
}

func (f *fakeEngine) HandleTurn(_ context.Context, req conversation.TurnRequest) (*conversation.Turn, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan conversation.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return &conversation.Turn{SessionID: req.SessionID, State: conversation.StateDiscovery, Stream: ch}, nil
}

func (f *fakeEngine) History(_ context.Context, sessionID string) ([]conversation.ChatMessage, error) {
	if !conversation.ValidSessionID(sessionID) {
		return nil, conversation.ErrInvalidSessionID
	}
	return f.history, f.histErr
}

func newTestHandler(engine *fakeEngine) *Handler {
	return NewHandler(engine, logging.New("error"))
}

func postChat(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleChat(w, req)
	return w
}

func sseEvents(body string) []string {
	var events []string
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		events = append(events, strings.TrimPrefix(block, "data: "))
	}
	return events
}

func TestHandleChat_StreamsReply(t *testing.T) {
	engine := &fakeEngine{chunks: []conversation.StreamChunk{
		{Text: "Lovely! "},
		{Text: "Is it a gift?"},
		{Done: true},
	}}
	w := postChat(newTestHandler(engine), `{"message":"a ring please","session_id":"visitor-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "visitor-1", w.Header().Get("X-Session-ID"))

	events := sseEvents(w.Body.String())
	require.Equal(t, []string{
		`{"session_id":"visitor-1"}`,
		`{"content":"Lovely! "}`,
		`{"content":"Is it a gift?"}`,
		`[DONE]`,
	}, events)

	require.Len(t, engine.requests, 1)
	assert.Equal(t, "a ring please", engine.requests[0].Message)
}

func TestHandleChat_MidStreamError(t *testing.T) {
	engine := &fakeEngine{chunks: []conversation.StreamChunk{
		{Text: "Our "},
		{Done: true, Error: errors.New("reset")},
	}}
	w := postChat(newTestHandler(engine), `{"message":"hi","session_id":"visitor-2"}`)

	events := sseEvents(w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, `{"error":"the reply was interrupted","success":false}`, events[2])
	assert.Equal(t, "[DONE]", events[3])
}

func TestHandleChat_GeneratesSessionID(t *testing.T) {
	engine := &fakeEngine{chunks: []conversation.StreamChunk{{Text: "Hi!"}, {Done: true}}}
	w := postChat(newTestHandler(engine), `{"message":"hello"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get("X-Session-ID")
	assert.True(t, conversation.ValidSessionID(id))
	assert.Equal(t, id, engine.requests[0].SessionID)
}

func TestHandleChat_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"message":`, nil, http.StatusBadRequest},
		{"bad session id", `{"message":"hi","session_id":"not valid!"}`, nil, http.StatusBadRequest},
		{"invalid message", `{"message":""}`, conversation.ErrInvalidMessage, http.StatusBadRequest},
		{"turn in progress", `{"message":"hi"}`, conversation.ErrTurnInProgress, http.StatusConflict},
		{"engine failure", `{"message":"hi"}`, errors.New("redis down"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(newTestHandler(&fakeEngine{err: tt.err}), tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
			assert.NotContains(t, resp.Error, "redis")
		})
	}
}

func TestHandleHistory(t *testing.T) {
	engine := &fakeEngine{history: []conversation.ChatMessage{
		{Role: conversation.ChatRoleUser, Content: "Hello"},
		{Role: conversation.ChatRoleAssistant, Content: "Hi there!"},
	}}
	h := newTestHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/chat/history?session_id=visitor-3", nil)
	w := httptest.NewRecorder()
	h.HandleHistory(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SessionID string           `json:"session_id"`
		Messages  []HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "visitor-3", resp.SessionID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "Hi there!", resp.Messages[1].Text)
}

func TestHandleHistory_BadRequests(t *testing.T) {
	h := newTestHandler(&fakeEngine{})
	for _, target := range []string{"/chat/history", "/chat/history?session_id=bad%20id"} {
		w := httptest.NewRecorder()
		h.HandleHistory(w, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}

	failing := newTestHandler(&fakeEngine{histErr: errors.New("boom")})
	w := httptest.NewRecorder()
	failing.HandleHistory(w, httptest.NewRequest(http.MethodGet, "/chat/history?session_id=ok", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleWebSocket(t *testing.T) {
	engine := &fakeEngine{chunks: []conversation.StreamChunk{{Text: "Welcome!"}, {Done: true}}}
	srv := httptest.NewServer(http.HandlerFunc(newTestHandler(engine).HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?session_id=visitor-ws"
	conn, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	defer conn.Close()

	var msg OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, OutboundMessage{Type: "session", SessionID: "visitor-ws"}, msg)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "ping"}))
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, "pong", msg.Type)

	require.NoError(t, websocket.JSON.Send(conn, InboundMessage{Type: "message", Text: "hello"}))
	var chunk, done OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &chunk))
	require.NoError(t, websocket.JSON.Receive(conn, &done))
	assert.Equal(t, OutboundMessage{Type: "chunk", Text: "Welcome!"}, chunk)
	assert.Equal(t, "done", done.Type)
	assert.Equal(t, string(conversation.StateDiscovery), done.State)

	require.Len(t, engine.requests, 1)
	assert.Equal(t, "visitor-ws", engine.requests[0].SessionID)
}
