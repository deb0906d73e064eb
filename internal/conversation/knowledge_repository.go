package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"
)

const knowledgeKeyPrefix = "concierge:knowledge:"

// KnowledgeRepository persists raw knowledge snippets by namespace.
type KnowledgeRepository interface {
	AppendDocuments(ctx context.Context, namespace string, docs []string) error
	ReplaceDocuments(ctx context.Context, namespace string, docs []string) error
	GetDocuments(ctx context.Context, namespace string) ([]string, error)
	LoadAll(ctx context.Context) (map[string][]string, error)
}

// RedisKnowledgeRepository stores raw documents in Redis lists.
type RedisKnowledgeRepository struct {
	client *redis.Client
}

// NewRedisKnowledgeRepository creates a Redis-backed knowledge repo.
func NewRedisKnowledgeRepository(client *redis.Client) *RedisKnowledgeRepository {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisKnowledgeRepository{client: client}
}

// AppendDocuments pushes new snippets onto the namespace's list.
func (r *RedisKnowledgeRepository) AppendDocuments(ctx context.Context, namespace string, docs []string) error {
	if len(docs) == 0 {
		return nil
	}
	if err := r.client.RPush(ctx, knowledgeKey(namespace), toArgs(docs)...).Err(); err != nil {
		return fmt.Errorf("conversation: failed to push knowledge: %w", err)
	}
	return nil
}

// ReplaceDocuments overwrites all snippets for the namespace atomically.
func (r *RedisKnowledgeRepository) ReplaceDocuments(ctx context.Context, namespace string, docs []string) error {
	key := knowledgeKey(namespace)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(docs) > 0 {
		pipe.RPush(ctx, key, toArgs(docs)...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation: failed to replace knowledge: %w", err)
	}
	return nil
}

// GetDocuments retrieves all snippets for the namespace.
func (r *RedisKnowledgeRepository) GetDocuments(ctx context.Context, namespace string) ([]string, error) {
	docs, err := r.client.LRange(ctx, knowledgeKey(namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: fetch knowledge %s: %w", namespace, err)
	}
	return docs, nil
}

// LoadAll returns every namespace's docs.
func (r *RedisKnowledgeRepository) LoadAll(ctx context.Context) (map[string][]string, error) {
	var cursor uint64
	result := make(map[string][]string)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, knowledgeKeyPrefix+"*", 50).Result()
		if err != nil {
			return nil, fmt.Errorf("conversation: scan knowledge keys failed: %w", err)
		}
		for _, key := range keys {
			namespace := strings.TrimPrefix(key, knowledgeKeyPrefix)
			docs, err := r.GetDocuments(ctx, namespace)
			if err != nil {
				return nil, err
			}
			result[namespace] = docs
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return result, nil
}

func knowledgeKey(namespace string) string {
	return knowledgeKeyPrefix + namespace
}

func toArgs(docs []string) []interface{} {
	args := make([]interface{}, len(docs))
	for i, d := range docs {
		args[i] = d
	}
	return args
}

// LoadDocuments decodes a JSON array of snippets, dropping blank entries.
func LoadDocuments(r io.Reader) ([]string, error) {
	var raw []string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("conversation: decode knowledge: %w", err)
	}
	docs := make([]string, 0, len(raw))
	for _, d := range raw {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}
	return docs, nil
}
