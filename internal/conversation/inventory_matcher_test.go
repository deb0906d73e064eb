package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wolfman30/jewelry-concierge/internal/preferences"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

func roseRubyRecord() preferences.Record {
	return preferences.Record{
		PurchaseType: preferences.PurchaseSelf,
		Gender:       preferences.GenderFemale,
		Category:     "rings",
		MetalType:    "rose gold",
		StoneType:    "ruby",
		BudgetRange:  "1500",
	}
}

func TestRuleInventoryMatcherReportsCombination(t *testing.T) {
	m := NewRuleInventoryMatcher()
	res, err := m.Match(context.Background(), roseRubyRecord(), sampleProducts())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if res.Matched {
		t.Fatalf("expected no match, got %+v", res.Product)
	}
	if res.Reason != "no rings that combine rose gold with ruby" {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if len(res.Alternatives) == 0 || res.Alternatives[0].ID != "ring-yellow-ruby" {
		t.Fatalf("expected cheapest partial match first, got %+v", res.Alternatives)
	}
}

func TestLLMInventoryMatcherAcceptsValidProduct(t *testing.T) {
	llm := &stubLLM{reply: textReply(`{"match": true, "product_id": "ring-rose-diamond"}`)}
	m := NewLLMInventoryMatcher(llm, "model", logging.Default())

	rec := roseRubyRecord()
	rec.StoneType = "white"
	res, err := m.Match(context.Background(), rec, sampleProducts())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !res.Matched || res.Product == nil || res.Product.ID != "ring-rose-diamond" {
		t.Fatalf("expected llm pick, got %+v", res)
	}
	prompt := llm.lastPrompt()
	if !strings.Contains(prompt, "green=emerald") || !strings.Contains(prompt, `"id":"neck-silver-aqua"`) {
		t.Fatalf("prompt missing synonyms or products:\n%s", prompt)
	}
}

func TestLLMInventoryMatcherFallsBackToRules(t *testing.T) {
	tests := []struct {
		name  string
		reply func(LLMRequest) (LLMResponse, error)
	}{
		{"unknown product id", textReply(`{"match": true, "product_id": "ring-imaginary"}`)},
		{"unparseable", textReply("I would go with the ruby band")},
		{"transport error", func(LLMRequest) (LLMResponse, error) { return LLMResponse{}, errors.New("timeout") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewLLMInventoryMatcher(&stubLLM{reply: tt.reply}, "model", nil)
			res, err := m.Match(context.Background(), roseRubyRecord(), sampleProducts())
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if res.Matched {
				t.Fatal("expected rule fallback to report no match")
			}
			if res.Reason != "no rings that combine rose gold with ruby" {
				t.Fatalf("expected rule reason, got %q", res.Reason)
			}
		})
	}
}

func TestLLMInventoryMatcherReplacesDismissiveReason(t *testing.T) {
	llm := &stubLLM{reply: textReply(`{"match": false, "unmet": ["metal_type", "occasion"], "reason": "we don't have that"}`)}
	m := NewLLMInventoryMatcher(llm, "model", nil)

	res, err := m.Match(context.Background(), roseRubyRecord(), sampleProducts())
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if strings.Contains(res.Reason, "don't have") {
		t.Fatalf("dismissive reason leaked: %q", res.Reason)
	}
	if len(res.Unmet) != 1 || res.Unmet[0] != preferences.FieldMetalType {
		t.Fatalf("expected only constrained fields kept, got %v", res.Unmet)
	}
	if len(res.Alternatives) == 0 {
		t.Fatal("expected rule alternatives attached")
	}
}
