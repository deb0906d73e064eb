package conversation

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

// NamespaceBrand holds store policy, care and sizing notes.
const NamespaceBrand = "brand"

// Embedder turns texts into vectors; BedrockEmbeddingClient implements it.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// RAGRetriever exposes the similarity search the engine needs.
type RAGRetriever interface {
	Query(ctx context.Context, namespace string, query string, topK int) ([]string, error)
}

// RAGIngestor describes how knowledge is added to the store.
type RAGIngestor interface {
	AddDocuments(ctx context.Context, namespace string, contents []string) error
}

// RAGReplacer swaps out every document in a namespace.
type RAGReplacer interface {
	ReplaceDocuments(ctx context.Context, namespace string, contents []string) error
}

// MemoryRAGStore keeps embeddings in memory and supports simple cosine retrieval.
type MemoryRAGStore struct {
	client Embedder
	model  string
	logger *logging.Logger

	mu        sync.RWMutex
	documents map[string][]ragDocument
}

type ragDocument struct {
	content   string
	embedding []float32
}

// NewMemoryRAGStore creates an in-memory store.
func NewMemoryRAGStore(client Embedder, model string, logger *logging.Logger) *MemoryRAGStore {
	if client == nil {
		panic("conversation: embedding client cannot be nil")
	}
	if model == "" {
		model = "amazon.titan-embed-text-v2:0"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryRAGStore{
		client:    client,
		model:     model,
		logger:    logger,
		documents: make(map[string][]ragDocument),
	}
}

func (s *MemoryRAGStore) embed(ctx context.Context, contents []string) ([]ragDocument, error) {
	vectors, err := s.client.Embed(ctx, s.model, contents)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(contents) {
		return nil, errors.New("conversation: embedding response size mismatch")
	}
	docs := make([]ragDocument, len(contents))
	for i := range contents {
		docs[i] = ragDocument{content: contents[i], embedding: vectors[i]}
	}
	return docs, nil
}

// AddDocuments embeds and stores contents under namespace.
func (s *MemoryRAGStore) AddDocuments(ctx context.Context, namespace string, contents []string) error {
	if len(contents) == 0 {
		return nil
	}
	docs, err := s.embed(ctx, contents)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.documents[namespace] = append(s.documents[namespace], docs...)
	s.mu.Unlock()
	return nil
}

// ReplaceDocuments embeds contents and swaps them in for namespace.
func (s *MemoryRAGStore) ReplaceDocuments(ctx context.Context, namespace string, contents []string) error {
	var docs []ragDocument
	if len(contents) > 0 {
		var err error
		if docs, err = s.embed(ctx, contents); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.documents[namespace] = docs
	s.mu.Unlock()
	return nil
}

// Count returns how many documents are stored under namespace.
func (s *MemoryRAGStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents[namespace])
}

// Query returns the topK documents in namespace closest to query.
func (s *MemoryRAGStore) Query(ctx context.Context, namespace string, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 3
	}

	s.mu.RLock()
	candidates := append([]ragDocument(nil), s.documents[namespace]...)
	s.mu.RUnlock()
	if len(candidates) == 0 {
		return nil, nil
	}

	vectors, err := s.client.Embed(ctx, s.model, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	queryVec := vectors[0]

	type scored struct {
		score   float64
		content string
	}
	results := make([]scored, 0, len(candidates))
	for _, doc := range candidates {
		results = append(results, scored{score: cosineSimilarity(queryVec, doc.embedding), content: doc.content})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := min(topK, len(results))
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = results[i].content
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
