package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/jewelry-concierge/internal/http/middleware"
	"github.com/wolfman30/jewelry-concierge/internal/webchat"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Chat               *webchat.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	ChatLimiter        *httpmiddleware.RateLimiter
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.Chat == nil {
		panic("router: chat handler cannot be nil")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthChecks, cfg.Logger))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/chat", func(chat chi.Router) {
		if cfg.ChatLimiter != nil {
			chat.Use(httpmiddleware.RateLimit(cfg.ChatLimiter))
		}
		chat.Post("/", cfg.Chat.HandleChat)
		chat.Get("/ws", cfg.Chat.HandleWebSocket)
		chat.Get("/history", cfg.Chat.HandleHistory)
	})

	return r
}

// healthHandler reports "ok" when every dependency answers, else 503 with
// the failing names.
func healthHandler(checks map[string]HealthCheck, logger *logging.Logger) http.HandlerFunc {
	if logger == nil {
		logger = logging.Default()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		response := map[string]any{"status": "ok"}
		status := http.StatusOK
		var failing []string
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("health check failed", "dependency", name, "error", err)
				failing = append(failing, name)
			}
		}
		if len(failing) > 0 {
			response["status"] = "degraded"
			response["failing"] = failing
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}
}
