package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithFormat("debug", "json", &buf)

	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/chat", nil))

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one json log line: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "request completed" {
		t.Fatalf("unexpected message %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusConflict) {
		t.Fatalf("expected status 409, got %v", entry["status"])
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Fatal("expected request id")
	}
}

func TestRequestLoggerKeepsFlusher(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithFormat("info", "json", &buf)

	flushable := false
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if !flushable {
		t.Fatal("wrapped writer must still flush for SSE")
	}
	if strings.Contains(buf.String(), "/health") {
		t.Fatal("health checks are logged at debug only")
	}
}
