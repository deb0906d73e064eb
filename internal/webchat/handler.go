package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/jewelry-concierge/internal/conversation"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

const maxBodyBytes = 64 << 10

// TurnEngine runs chat turns; conversation.Engine implements it.
type TurnEngine interface {
	HandleTurn(ctx context.Context, req conversation.TurnRequest) (*conversation.Turn, error)
	History(ctx context.Context, sessionID string) ([]conversation.ChatMessage, error)
}

// Handler serves the storefront chat endpoints.
type Handler struct {
	engine TurnEngine
	logger *logging.Logger
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// InboundMessage is what the widget sends over the WebSocket.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget over the WebSocket.
type OutboundMessage struct {
	Type      string `json:"type"` // "session", "chunk", "error", "done", "pong"
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	State     string `json:"state,omitempty"`
}

// HistoryMessage is one transcript entry in history responses.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// NewHandler creates a web chat handler.
func NewHandler(engine TurnEngine, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("webchat: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger.WithComponent("webchat")}
}

// resolveSessionID returns the client id when valid, a fresh id when empty,
// and false when the client sent something malformed.
func resolveSessionID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return uuid.NewString(), true
	}
	return id, conversation.ValidSessionID(id)
}

// statusFor maps engine errors raised before streaming to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrInvalidMessage), errors.Is(err, conversation.ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrTurnInProgress):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, conversation.ErrInvalidMessage):
		return "message must be between 1 and the maximum allowed characters"
	case errors.Is(err, conversation.ErrInvalidSessionID):
		return "invalid session_id"
	case errors.Is(err, conversation.ErrTurnInProgress):
		return "a reply is already in progress for this session"
	default:
		return "the assistant is unavailable right now, please try again"
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Success: false})
}

// HandleChat accepts one message and streams the reply as server-sent events.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID, ok := resolveSessionID(req.SessionID)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, clientMessage(conversation.ErrInvalidSessionID))
		return
	}

	turn, err := h.engine.HandleTurn(r.Context(), conversation.TurnRequest{SessionID: sessionID, Message: req.Message})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadGateway {
			h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
		}
		writeJSONError(w, status, clientMessage(err))
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Session-ID", turn.SessionID)
	w.WriteHeader(http.StatusOK)

	send := func(payload any) {
		if err := writeEvent(w, payload); err != nil {
			h.logger.Debug("sse write failed", "session_id", turn.SessionID, "error", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	send(map[string]string{"session_id": turn.SessionID})
	for chunk := range turn.Stream {
		if chunk.Text != "" {
			send(map[string]string{"content": chunk.Text})
		}
		if chunk.Error != nil {
			h.logger.Warn("reply stream interrupted", "session_id", turn.SessionID, "error", chunk.Error)
			send(errorResponse{Error: "the reply was interrupted", Success: false})
		}
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID, ok := resolveSessionID(r.URL.Query().Get("session_id"))
	if !ok {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: clientMessage(conversation.ErrInvalidSessionID)})
		return
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	h.logger.Debug("websocket opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("websocket closed", "session_id", sessionID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		case "message":
		default:
			continue
		}

		if id := strings.TrimSpace(msg.SessionID); id != "" && id != sessionID {
			if !conversation.ValidSessionID(id) {
				_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: clientMessage(conversation.ErrInvalidSessionID)})
				continue
			}
			sessionID = id
		}
		h.streamWS(r.Context(), conn, sessionID, msg.Text)
	}
}

func (h *Handler) streamWS(ctx context.Context, conn *websocket.Conn, sessionID, text string) {
	turn, err := h.engine.HandleTurn(ctx, conversation.TurnRequest{SessionID: sessionID, Message: text})
	if err != nil {
		if statusFor(err) == http.StatusBadGateway {
			h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)
		}
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: clientMessage(err), SessionID: sessionID})
		return
	}

	for chunk := range turn.Stream {
		if chunk.Text != "" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "chunk", Text: chunk.Text})
		}
		if chunk.Error != nil {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "the reply was interrupted"})
		}
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "done", SessionID: turn.SessionID, State: string(turn.State)})
}

// HandleHistory returns the stored transcript for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "session_id parameter required")
		return
	}

	msgs, err := h.engine.History(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, conversation.ErrInvalidSessionID) {
			writeJSONError(w, http.StatusBadRequest, clientMessage(err))
			return
		}
		h.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryMessage{Role: m.Role, Text: m.Content})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": sessionID,
		"messages":   history,
		"success":    true,
	})
}
