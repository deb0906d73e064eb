package bootstrap

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/jewelry-concierge/internal/conversation"
	"github.com/wolfman30/jewelry-concierge/internal/observability/metrics"
)

// BuildMetrics registers the chat, LLM and runtime collectors on reg and
// returns the handler that serves it. A nil reg uses the default registry.
func BuildMetrics(reg *prometheus.Registry) (*metrics.ChatMetrics, http.Handler) {
	if reg == nil {
		return metrics.NewChatMetrics(nil), promhttp.Handler()
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	conversation.RegisterMetrics(reg)
	return metrics.NewChatMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
