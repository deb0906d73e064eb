package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/jewelry-concierge/internal/preferences"
)

const defaultSessionTTL = 24 * time.Hour

// Session is the per-visitor conversation memory.
type Session struct {
	ID                string             `json:"id"`
	Preferences       preferences.Record `json:"preferences"`
	History           []ChatMessage      `json:"history"`
	LastRecommendedID string             `json:"last_recommended_id,omitempty"`
	LastState         State              `json:"last_state,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewSession returns an empty session for id.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Append adds one transcript message.
func (s *Session) Append(role, content string) {
	s.History = append(s.History, ChatMessage{Role: role, Content: content})
	s.UpdatedAt = time.Now().UTC()
}

// SessionStore persists sessions. Load returns a fresh session when id is unknown.
type SessionStore interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
}

// RedisSessionStore keeps sessions as JSON blobs with a sliding TTL.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("jewelry.internal.conversation.sessions"),
	}
}

func (s *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewSession(id), nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_session")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("concierge:session:%s", id)
}

// MemorySessionStore keeps sessions in process, evicting them after ttl of
// inactivity. Used when Redis is not configured and in tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &MemorySessionStore{ttl: ttl, now: time.Now, sessions: make(map[string]memoryEntry)}
}

func (s *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if ok && !s.now().Before(entry.expiresAt) {
		delete(s.sessions, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return NewSession(id), nil
	}

	var session Session
	if err := json.Unmarshal(entry.data, &session); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return &session, nil
}

// Save stores a copy so later mutation of session does not leak into the store.
func (s *MemorySessionStore) Save(_ context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.sessions {
		if !now.Before(e.expiresAt) {
			delete(s.sessions, id)
		}
	}
	s.sessions[session.ID] = memoryEntry{data: data, expiresAt: now.Add(s.ttl)}
	return nil
}
