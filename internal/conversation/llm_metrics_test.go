package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCompleteObservedRecordsTokens(t *testing.T) {
	const model = "metrics-test-model"
	llm := &stubLLM{reply: func(LLMRequest) (LLMResponse, error) {
		return LLMResponse{Text: "hi", Usage: TokenUsage{InputTokens: 7, OutputTokens: 3, TotalTokens: 10}}, nil
	}}

	resp, err := completeObserved(context.Background(), llm, "compose", LLMRequest{Model: model})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if got := testutil.ToFloat64(llmTokensTotal.WithLabelValues(model, "input")); got != 7 {
		t.Fatalf("input tokens = %v", got)
	}
	if got := testutil.ToFloat64(llmTokensTotal.WithLabelValues(model, "total")); got != 10 {
		t.Fatalf("total tokens = %v", got)
	}
}

func TestCompleteObservedWrapsError(t *testing.T) {
	cause := errors.New("throttled")
	llm := &stubLLM{reply: func(LLMRequest) (LLMResponse, error) {
		return LLMResponse{}, cause
	}}

	_, err := completeObserved(context.Background(), llm, "classify", LLMRequest{Model: "metrics-error-model"})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "classify completion") {
		t.Fatalf("expected operation in error, got %v", err)
	}
	if got := testutil.ToFloat64(llmTokensTotal.WithLabelValues("metrics-error-model", "input")); got != 0 {
		t.Fatalf("failed completion recorded tokens: %v", got)
	}
}

func TestRegisterMetricsOnCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterMetrics(reg)
	llmTokensTotal.WithLabelValues("registry-test-model", "input").Add(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := tokenCount(families, "registry-test-model", "input"); got != 2 {
		t.Fatalf("expected 2 input tokens on the custom registry, got %v", got)
	}

	// The default registry already holds the collectors from init.
	RegisterMetrics(prometheus.DefaultRegisterer)
	RegisterMetrics(nil)
}

func tokenCount(families []*dto.MetricFamily, model, kind string) float64 {
	for _, mf := range families {
		if mf.GetName() != "jewelry_conversation_llm_tokens_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["model"] == model && labels["type"] == kind {
				return m.GetCounter().GetValue()
			}
		}
	}
	return -1
}
