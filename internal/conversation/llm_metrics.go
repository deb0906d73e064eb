package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var llmTracer = otel.Tracer("jewelry.internal.conversation.llm")

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "jewelry",
		Subsystem: "conversation",
		Name:      "llm_latency_seconds",
		Help:      "Latency of LLM completions by pipeline operation",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 10, 15, 30},
	},
	[]string{"model", "operation", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "jewelry",
		Subsystem: "conversation",
		Name:      "llm_tokens_total",
		Help:      "Tokens used by the LLM",
	},
	[]string{"model", "type"}, // type: input, output, total
)

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
}

// RegisterMetrics registers conversation metrics with a custom registry.
// Use this when exposing a non-default registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(llmLatency, llmTokensTotal)
}

// completeObserved runs one completion inside a span and records latency
// and token usage under operation.
func completeObserved(ctx context.Context, client LLMClient, operation string, req LLMRequest) (LLMResponse, error) {
	ctx, span := llmTracer.Start(ctx, "conversation.llm."+operation)
	defer span.End()

	start := time.Now()
	resp, err := client.Complete(ctx, req)
	latency := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	llmLatency.WithLabelValues(req.Model, operation, status).Observe(latency.Seconds())
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("jewelry.llm.model", req.Model),
			attribute.String("jewelry.llm.operation", operation),
			attribute.Float64("jewelry.llm.latency_ms", float64(latency.Milliseconds())),
			attribute.Int("jewelry.llm.input_tokens", int(resp.Usage.InputTokens)),
			attribute.Int("jewelry.llm.output_tokens", int(resp.Usage.OutputTokens)),
			attribute.String("jewelry.llm.stop_reason", resp.StopReason),
		)
	}
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: %s completion: %w", operation, err)
	}
	observeTokens(req.Model, resp.Usage)
	return resp, nil
}

func observeTokens(model string, usage TokenUsage) {
	if usage.InputTokens > 0 {
		llmTokensTotal.WithLabelValues(model, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		llmTokensTotal.WithLabelValues(model, "output").Add(float64(usage.OutputTokens))
	}
	if usage.TotalTokens > 0 {
		llmTokensTotal.WithLabelValues(model, "total").Add(float64(usage.TotalTokens))
	}
}
