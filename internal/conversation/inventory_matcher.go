package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
	"github.com/wolfman30/jewelry-concierge/internal/preferences"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

// InventoryMatcher decides whether one available product satisfies every
// stated preference.
type InventoryMatcher interface {
	Match(ctx context.Context, rec preferences.Record, products []catalog.Product) (catalog.MatchResult, error)
}

// RuleInventoryMatcher adapts catalog.RuleMatcher to InventoryMatcher.
type RuleInventoryMatcher struct {
	rules *catalog.RuleMatcher
}

func NewRuleInventoryMatcher() *RuleInventoryMatcher {
	return &RuleInventoryMatcher{rules: catalog.NewRuleMatcher()}
}

func (m *RuleInventoryMatcher) Match(_ context.Context, rec preferences.Record, products []catalog.Product) (catalog.MatchResult, error) {
	return m.rules.Match(rec, products), nil
}

const inventoryMatchPrompt = `You check a jewelry store's inventory against a customer's preferences.

Preferences (empty fields impose no constraint): %s

Treat these color and stone words as equivalent in both directions: %s
Be tolerant of typos and paraphrase, but a product matches only if it satisfies EVERY stated preference at once. Occasion, purchase type and recipient never rule a product out. The budget is a maximum price.

Available products:
%s

Respond with JSON only:
{"match": true|false, "product_id": "<id of the single best matching product, cheapest if several>", "unmet": ["<preference fields no single product satisfies together>"], "reason": "<short phrase naming the unavailable combination, e.g. no rings that combine rose gold with ruby>"}`

// LLMInventoryMatcher asks the model to judge the match and validates its
// answer against the candidate list. Any failure falls back to the rules.
type LLMInventoryMatcher struct {
	client LLMClient
	model  string
	rules  *catalog.RuleMatcher
	logger *logging.Logger
}

func NewLLMInventoryMatcher(client LLMClient, model string, logger *logging.Logger) *LLMInventoryMatcher {
	if client == nil {
		panic("conversation: llm inventory matcher requires an llm client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMInventoryMatcher{client: client, model: model, rules: catalog.NewRuleMatcher(), logger: logger}
}

type productSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Metal    string   `json:"metal"`
	Stones   []string `json:"stones"`
	Gender   string   `json:"gender"`
	Price    string   `json:"price"`
}

func (m *LLMInventoryMatcher) Match(ctx context.Context, rec preferences.Record, products []catalog.Product) (catalog.MatchResult, error) {
	fallback := m.rules.Match(rec, products)
	if len(products) == 0 {
		return fallback, nil
	}

	summaries := make([]productSummary, 0, len(products))
	index := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		if !p.InStock {
			continue
		}
		summaries = append(summaries, productSummary{p.ID, p.Name, p.Category, p.Metal, p.Stones, p.Gender, p.Price()})
		index[p.ID] = p
	}
	productsJSON, err := json.Marshal(summaries)
	if err != nil {
		return fallback, nil
	}

	synonyms := make([]string, 0, len(catalog.Synonyms))
	for _, pair := range catalog.Synonyms {
		synonyms = append(synonyms, pair[0]+"="+pair[1])
	}

	prompt := fmt.Sprintf(inventoryMatchPrompt, constraintSnapshot(rec), strings.Join(synonyms, ", "), productsJSON)
	resp, err := completeObserved(ctx, m.client, "match", LLMRequest{
		Model:       m.model,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		m.logger.Warn("llm inventory match failed, using rules", "error", err)
		return fallback, nil
	}

	var verdict struct {
		Match     bool     `json:"match"`
		ProductID string   `json:"product_id"`
		Unmet     []string `json:"unmet"`
		Reason    string   `json:"reason"`
	}
	if err := decodeJSONObject(resp.Text, &verdict); err != nil {
		m.logger.Warn("llm inventory match unparseable, using rules", "error", err)
		return fallback, nil
	}

	if verdict.Match {
		p, ok := index[strings.TrimSpace(verdict.ProductID)]
		if !ok {
			m.logger.Warn("llm inventory match returned unknown product, using rules", "product_id", verdict.ProductID)
			return fallback, nil
		}
		return catalog.MatchResult{Matched: true, Product: &p}, nil
	}

	out := catalog.MatchResult{
		Unmet:        constrainedSubset(verdict.Unmet),
		Reason:       strings.TrimSpace(verdict.Reason),
		Alternatives: fallback.Alternatives,
	}
	if len(out.Unmet) == 0 {
		out.Unmet = fallback.Unmet
	}
	if out.Reason == "" || dismissiveReason(out.Reason) {
		out.Reason = fallback.Reason
	}
	return out, nil
}

// constraintSnapshot lists only the fields that restrict products.
func constraintSnapshot(rec preferences.Record) string {
	parts := []string{}
	for _, f := range []preferences.Field{preferences.FieldCategory, preferences.FieldMetalType, preferences.FieldStoneType, preferences.FieldGender, preferences.FieldBudgetRange} {
		parts = append(parts, fmt.Sprintf("%s=%q", f, strings.TrimSpace(rec.Get(f))))
	}
	return strings.Join(parts, ", ")
}

func constrainedSubset(labels []string) []preferences.Field {
	var out []preferences.Field
	for _, l := range labels {
		f := preferences.Field(strings.ToLower(strings.TrimSpace(l)))
		switch f {
		case preferences.FieldCategory, preferences.FieldMetalType, preferences.FieldStoneType, preferences.FieldGender, preferences.FieldBudgetRange:
			out = append(out, f)
		}
	}
	return out
}

func dismissiveReason(reason string) bool {
	r := strings.ToLower(reason)
	return strings.Contains(r, "don't have") || strings.Contains(r, "do not have") || strings.Contains(r, "don't carry")
}
