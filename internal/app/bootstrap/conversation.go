package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
	appconfig "github.com/wolfman30/jewelry-concierge/internal/config"
	"github.com/wolfman30/jewelry-concierge/internal/conversation"
	"github.com/wolfman30/jewelry-concierge/internal/observability/metrics"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

// BuildCatalog prefers Postgres and falls back to the JSON catalog file.
func BuildCatalog(cfg *appconfig.Config, pool *pgxpool.Pool, logger *logging.Logger) (catalog.Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if pool != nil {
		return catalog.NewPostgresRepository(pool), nil
	}
	path := strings.TrimSpace(cfg.CatalogFile)
	if path == "" {
		return nil, errors.New("bootstrap: either DATABASE_URL or CATALOG_FILE is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open catalog file: %w", err)
	}
	defer f.Close()

	list, err := catalog.LoadProducts(f)
	if err != nil {
		return nil, err
	}
	logger.Info("using in-memory catalog", "file", path, "products", len(list))
	return catalog.NewInMemoryRepository(list...), nil
}

// BuildLLM wires Bedrock as the primary provider with Gemini as fallback.
// bedrock may be nil. The embedder is nil when no embedding model is
// configured.
func BuildLLM(ctx context.Context, cfg *appconfig.Config, bedrock *bedrockruntime.Client, logger *logging.Logger) (conversation.LLMClient, conversation.Embedder, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var primary, fallback conversation.LLMClient
	var embedder conversation.Embedder
	if bedrock != nil {
		if strings.TrimSpace(cfg.BedrockModelID) != "" {
			primary = conversation.NewBedrockLLMClient(bedrock)
		}
		if strings.TrimSpace(cfg.BedrockEmbeddingModelID) != "" {
			embedder = conversation.NewBedrockEmbeddingClient(bedrock)
		}
	}

	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, key, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, err
		}
		fallback = gemini
	}

	var llm conversation.LLMClient
	switch {
	case primary != nil && fallback != nil:
		llm = conversation.NewFallbackLLMClient(primary, fallback, logger)
		logger.Info("using bedrock with gemini fallback", "model", cfg.BedrockModelID, "fallback_model", cfg.GeminiModelID)
	case primary != nil:
		llm = primary
		logger.Info("using bedrock", "model", cfg.BedrockModelID)
	case fallback != nil:
		llm = fallback
		logger.Warn("BEDROCK_MODEL_ID not set, using gemini only", "model", cfg.GeminiModelID)
	default:
		return nil, nil, errors.New("bootstrap: BEDROCK_MODEL_ID or GEMINI_API_KEY is required")
	}

	if !cfg.LLMStreaming {
		llm = completeOnly{llm}
	}
	return llm, embedder, nil
}

// completeOnly hides CompleteStream so replies arrive as one chunk.
type completeOnly struct {
	conversation.LLMClient
}

// BuildKnowledge hydrates the brand notes. Redis-backed notes stay live for
// the operator CLI; without Redis the knowledge file is embedded once. A nil
// retriever means replies go without brand notes.
func BuildKnowledge(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, embedder conversation.Embedder, logger *logging.Logger) (conversation.RAGRetriever, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if embedder == nil {
		logger.Warn("BEDROCK_EMBEDDING_MODEL_ID not set, replies will not cite brand notes")
		return nil, nil
	}
	store := conversation.NewMemoryRAGStore(embedder, cfg.BedrockEmbeddingModelID, logger)

	if redisClient != nil {
		repo := conversation.NewRedisKnowledgeRepository(redisClient)
		counts, err := conversation.HydrateRAG(ctx, store, repo, logger)
		if err != nil {
			return nil, err
		}
		retriever := conversation.NewHydratingRAGRetriever(repo, store, logger)
		for namespace, n := range counts {
			retriever.MarkHydrated(namespace, n)
		}
		return retriever, nil
	}

	path := strings.TrimSpace(cfg.KnowledgeFile)
	if path == "" {
		return store, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open knowledge file: %w", err)
	}
	defer f.Close()
	docs, err := conversation.LoadDocuments(f)
	if err != nil {
		return nil, err
	}
	if err := store.AddDocuments(ctx, conversation.NamespaceBrand, docs); err != nil {
		return nil, fmt.Errorf("bootstrap: embed knowledge file: %w", err)
	}
	logger.Info("rag namespace hydrated", "namespace", conversation.NamespaceBrand, "documents", len(docs), "file", path)
	return store, nil
}

// EngineInputs are the already-built collaborators BuildEngine wires together.
type EngineInputs struct {
	Redis     *redis.Client
	LLM       conversation.LLMClient
	Products  catalog.Repository
	Knowledge conversation.RAGRetriever
	Metrics   *metrics.ChatMetrics
}

// BuildEngine assembles the turn pipeline. Sessions live in Redis when a
// client is given, otherwise in memory.
func BuildEngine(cfg *appconfig.Config, in EngineInputs, logger *logging.Logger) (*conversation.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	model := cfg.BedrockModelID
	composer, err := conversation.NewResponseComposer(model, cfg.LLMMaxTokens, cfg.LLMTemperature, cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}

	// Locks outlive the longest turn so a crashed holder cannot wedge a session.
	lockTTL := cfg.TurnTimeout + 30*time.Second
	var sessions conversation.SessionStore
	var locker conversation.SessionLocker
	if in.Redis != nil {
		sessions = conversation.NewRedisSessionStore(in.Redis, cfg.SessionTTL)
		locker = conversation.NewRedisSessionLocker(in.Redis, lockTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory")
		sessions = conversation.NewMemorySessionStore(cfg.SessionTTL)
		locker = conversation.NewMemorySessionLocker()
	}

	var matcher conversation.InventoryMatcher
	switch cfg.MatcherMode {
	case "llm":
		matcher = conversation.NewLLMInventoryMatcher(in.LLM, model, logger)
	case "", "rules":
		matcher = conversation.NewRuleInventoryMatcher()
	default:
		return nil, fmt.Errorf("bootstrap: unknown MATCHER_MODE %q", cfg.MatcherMode)
	}

	return conversation.NewEngine(conversation.EngineDeps{
		Sessions:   sessions,
		Locker:     locker,
		Classifier: conversation.NewIntentClassifier(in.LLM, model, cfg.ClassifierMaxTokens, cfg.HistoryWindow),
		Extractor: conversation.NewPreferenceExtractor(in.LLM, model, cfg.HistoryWindow,
			conversation.WithExtractionConcurrency(cfg.ExtractionConcurrency),
			conversation.WithExtractionRetry(2, cfg.ExtractionRetryDelay),
			conversation.WithExtractorLogger(logger),
		),
		Matcher:   matcher,
		Composer:  composer,
		LLM:       in.LLM,
		Products:  in.Products,
		Knowledge: in.Knowledge,
		Metrics:   in.Metrics,
		Logger:    logger,
	},
		conversation.WithTurnTimeout(cfg.TurnTimeout),
		conversation.WithMaxMessageLength(cfg.MessageMaxLength),
		conversation.WithRAGTopK(cfg.RAGTopK),
	), nil
}
