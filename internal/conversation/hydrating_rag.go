package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

// HydrateRAG embeds every namespace held in the knowledge repository into
// store at startup and returns the document count per namespace.
func HydrateRAG(ctx context.Context, store RAGReplacer, repo KnowledgeRepository, logger *logging.Logger) (map[string]int, error) {
	counts := map[string]int{}
	if store == nil || repo == nil {
		return counts, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	all, err := repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation: load knowledge: %w", err)
	}
	for namespace, docs := range all {
		if err := store.ReplaceDocuments(ctx, namespace, docs); err != nil {
			return nil, fmt.Errorf("conversation: hydrate %s: %w", namespace, err)
		}
		counts[namespace] = len(docs)
		logger.Info("rag namespace hydrated", "namespace", namespace, "documents", len(docs))
	}
	return counts, nil
}

// HydratingRAGRetriever wraps a MemoryRAGStore and embeds any documents
// appended to the KnowledgeRepository since the last query, so snippets
// ingested by the operator CLI show up without a restart. It assumes
// namespaces are append-only between hydrations.
type HydratingRAGRetriever struct {
	repo   KnowledgeRepository
	store  *MemoryRAGStore
	logger *logging.Logger

	mu       sync.Mutex
	hydrated map[string]int
}

func NewHydratingRAGRetriever(repo KnowledgeRepository, store *MemoryRAGStore, logger *logging.Logger) *HydratingRAGRetriever {
	if repo == nil {
		panic("conversation: knowledge repo cannot be nil")
	}
	if store == nil {
		panic("conversation: rag store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HydratingRAGRetriever{repo: repo, store: store, logger: logger, hydrated: make(map[string]int)}
}

// MarkHydrated records that count documents of namespace are already embedded.
func (h *HydratingRAGRetriever) MarkHydrated(namespace string, count int) {
	h.mu.Lock()
	h.hydrated[namespace] = count
	h.mu.Unlock()
}

func (h *HydratingRAGRetriever) Query(ctx context.Context, namespace string, query string, topK int) ([]string, error) {
	if err := h.ensureHydrated(ctx, namespace); err != nil {
		h.logger.Warn("failed to hydrate rag docs", "namespace", namespace, "error", err)
	}
	return h.store.Query(ctx, namespace, query, topK)
}

func (h *HydratingRAGRetriever) ensureHydrated(ctx context.Context, namespace string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	docs, err := h.repo.GetDocuments(ctx, namespace)
	if err != nil {
		return err
	}
	start := h.hydrated[namespace]
	if start > len(docs) {
		if err := h.store.ReplaceDocuments(ctx, namespace, docs); err != nil {
			return err
		}
		h.hydrated[namespace] = len(docs)
		return nil
	}
	if start == len(docs) {
		return nil
	}
	if err := h.store.AddDocuments(ctx, namespace, docs[start:]); err != nil {
		return err
	}
	h.hydrated[namespace] = len(docs)
	return nil
}
