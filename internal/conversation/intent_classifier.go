package conversation

import (
	"context"
	"fmt"
	"strings"
)

// Intent is the shopper's conversational goal for one turn.
type Intent string

const (
	IntentGreeting         Intent = "greeting"
	IntentProductSearch    Intent = "product_search"
	IntentDetailRequest    Intent = "detail_request"
	IntentSizingHelp       Intent = "sizing_help"
	IntentObjection        Intent = "objection"
	IntentBrandInformation Intent = "brand_information"
	IntentOffTopic         Intent = "off_topic"
	IntentClosing          Intent = "closing"
)

// Intents lists every intent the classifier may return.
var Intents = []Intent{
	IntentGreeting,
	IntentProductSearch,
	IntentDetailRequest,
	IntentSizingHelp,
	IntentObjection,
	IntentBrandInformation,
	IntentOffTopic,
	IntentClosing,
}

// ParseIntent maps a label onto a known intent. Unknown labels fall back to
// product_search so the conversation stays on the discovery path.
func ParseIntent(label string) (Intent, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer("-", "_", " ", "_").Replace(l)
	for _, in := range Intents {
		if string(in) == l {
			return in, true
		}
	}
	return IntentProductSearch, false
}

const intentClassifierPrompt = `You route messages for an online jewelry store's sales assistant. Classify the customer's LATEST message into exactly ONE intent. Respond with JSON only.

Intents:
- greeting: hello or small talk with no shopping content
- product_search: describing what they want, answering a question about preferences, or asking for suggestions
- detail_request: asking for more about a piece already suggested (materials, dimensions, care, price, availability)
- sizing_help: ring sizes, chain lengths, bracelet fit, how to measure
- objection: hesitation about price, quality, delivery, or whether the piece suits them
- brand_information: questions about the store itself (shipping, returns, warranty, sourcing, certifications)
- off_topic: anything unrelated to jewelry or the store
- closing: ready to buy, saying thanks or goodbye

Recent conversation:
%s

Latest message: %s

Respond with: {"intent": "<intent>"}`

// IntentClassifier labels each customer utterance with one Intent.
type IntentClassifier struct {
	client    LLMClient
	model     string
	maxTokens int32
	window    int
}

// NewIntentClassifier creates a classifier. window bounds how many recent
// customer/assistant exchanges are included in the prompt.
func NewIntentClassifier(client LLMClient, model string, maxTokens int32, window int) *IntentClassifier {
	if client == nil {
		panic("conversation: intent classifier requires an llm client")
	}
	if maxTokens <= 0 {
		maxTokens = 60
	}
	return &IntentClassifier{client: client, model: model, maxTokens: maxTokens, window: window}
}

// Classify returns the intent of utterance given the conversation so far.
// Unparseable or unknown output yields product_search; transport errors are
// returned to the caller.
func (c *IntentClassifier) Classify(ctx context.Context, history []ChatMessage, utterance string) (Intent, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return IntentProductSearch, nil
	}

	prompt := fmt.Sprintf(intentClassifierPrompt, formatTranscript(windowHistory(history, c.window)), utterance)
	resp, err := completeObserved(ctx, c.client, "classify", LLMRequest{
		Model:       c.model,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return IntentProductSearch, err
	}

	var result struct {
		Intent string `json:"intent"`
	}
	if err := decodeJSONObject(resp.Text, &result); err != nil {
		return IntentProductSearch, nil
	}
	intent, _ := ParseIntent(result.Intent)
	return intent, nil
}

// windowHistory returns the messages of the last pairs exchanges, two
// messages per exchange; pairs <= 0 keeps everything.
func windowHistory(history []ChatMessage, pairs int) []ChatMessage {
	n := 2 * pairs
	if pairs <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// formatTranscript renders history as "Customer:"/"Assistant:" lines.
func formatTranscript(history []ChatMessage) string {
	if len(history) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case ChatRoleUser:
			b.WriteString("Customer: ")
		case ChatRoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
