package conversation

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
	"github.com/wolfman30/jewelry-concierge/internal/preferences"
)

// State selects which instruction template generates the reply.
type State string

const (
	StateDiscovery              State = "DISCOVERY"
	StateRecommend              State = "RECOMMEND"
	StateRedirectToAlternatives State = "REDIRECT_TO_ALTERNATIVES"
	StateDetailElaboration      State = "DETAIL_ELABORATION"
	StateObjectionHandling      State = "OBJECTION_HANDLING"
	StateSizingHelp             State = "SIZING_HELP"
	StateBrandInformation       State = "BRAND_INFORMATION"
	StateOffTopic               State = "OFF_TOPIC"
	StateGreeting               State = "GREETING"
	StateClosing                State = "CLOSING"
)

// shortCircuit maps intents that bypass readiness to their own state.
var shortCircuit = map[Intent]State{
	IntentGreeting:         StateGreeting,
	IntentSizingHelp:       StateSizingHelp,
	IntentObjection:        StateObjectionHandling,
	IntentOffTopic:         StateOffTopic,
	IntentBrandInformation: StateBrandInformation,
	IntentClosing:          StateClosing,
}

// SelectState picks the reply state for one turn. There is no terminal
// state; every turn is evaluated afresh.
func SelectState(intent Intent, ready bool, match *catalog.MatchResult, hasRecommendation bool) State {
	if s, ok := shortCircuit[intent]; ok {
		return s
	}
	if intent == IntentDetailRequest && hasRecommendation {
		return StateDetailElaboration
	}
	if !ready {
		return StateDiscovery
	}
	if match != nil && match.Matched && match.Product != nil {
		return StateRecommend
	}
	return StateRedirectToAlternatives
}

const (
	apologyReply     = "I'm sorry, I'm having trouble putting together an answer right now. Could you tell me a little more about what you're looking for?"
	offTopicRedirect = "I'm here to help you find the perfect piece of jewelry. Are you shopping for yourself today, or looking for a gift?"
)

const personaPrompt = `You are the sales concierge for an online fine jewelry boutique. You are warm, concise, and knowledgeable. Keep replies under 120 words, write in plain sentences without markdown headings, and never invent products, prices, or policies that are not given to you below. Never recommend more than one product in a reply.

What the customer has told us so far: {{.Preferences}}`

var stateTemplates = map[State]string{
	StateDiscovery: `Acknowledge what the customer just said in one short sentence, then ask exactly this question in your own friendly words: "{{.Question}}"
Do not suggest any products yet.`,

	StateRecommend: `Recommend exactly this one piece and explain in two or three sentences why it fits what the customer asked for:
{{.Product}}
Close by asking whether they would like more details or help with sizing.`,

	StateRedirectToAlternatives: `There are {{.Reason}}. Never say the store does not have something. Instead, turn this into an invitation: mention that combination gently, then suggest this closest alternative as a lovely option and ask whether they would be open to adjusting their {{.Unmet}}:
{{.Alternative}}`,

	StateDetailElaboration: `The customer wants to know more about the piece you recommended:
{{.Product}}
Answer their question using only these details and the notes below.
{{range .Knowledge}}- {{.}}
{{end}}`,

	StateObjectionHandling: `The customer is hesitant. Acknowledge the concern sincerely, address it honestly using the notes below when relevant, and offer one helpful next step. Do not pressure them.
{{if .Product}}Piece under discussion: {{.Product}}
{{end}}{{range .Knowledge}}- {{.}}
{{end}}`,

	StateSizingHelp: `Help the customer with sizing or fit. Give practical guidance using the notes below, and offer to note their size.
{{range .Knowledge}}- {{.}}
{{end}}`,

	StateBrandInformation: `Answer the customer's question about the store using only these notes. If the notes do not cover it, say you will have the team follow up.
{{range .Knowledge}}- {{.}}
{{end}}`,

	StateOffTopic: `The customer's message is unrelated to jewelry. Politely steer back to helping them find a piece{{if .Question}}, then ask: "{{.Question}}"{{end}}.`,

	StateGreeting: `Greet the customer warmly and introduce yourself as the store's jewelry concierge in one sentence{{if .Question}}, then ask: "{{.Question}}"{{else}}, then ask how you can help with the pieces they have in mind{{end}}.`,

	StateClosing: `The customer is wrapping up. Thank them warmly{{if .Product}}, confirm the piece they liked ({{.ProductName}}), and let them know it can be added to their cart{{end}}. Keep it to two sentences.`,
}

// ComposeInput carries the context a state template may reference.
type ComposeInput struct {
	State       State
	Record      preferences.Record
	Question    *preferences.Question
	Match       *catalog.MatchResult
	Recommended *catalog.Product
	Knowledge   []string
	History     []ChatMessage
	Utterance   string
}

type promptContext struct {
	Preferences string
	Question    string
	Product     string
	ProductName string
	Reason      string
	Unmet       string
	Alternative string
	Knowledge   []string
}

// ResponseComposer turns a state and its context into an LLM request.
type ResponseComposer struct {
	templates   *template.Template
	model       string
	maxTokens   int32
	temperature float32
	window      int
}

// NewResponseComposer parses the state templates once.
func NewResponseComposer(model string, maxTokens int32, temperature float32, window int) (*ResponseComposer, error) {
	root := template.New("persona").Option("missingkey=error")
	if _, err := root.Parse(personaPrompt); err != nil {
		return nil, fmt.Errorf("conversation: parse persona template: %w", err)
	}
	for state, text := range stateTemplates {
		if _, err := root.New(string(state)).Parse(text); err != nil {
			return nil, fmt.Errorf("conversation: parse %s template: %w", state, err)
		}
	}
	return &ResponseComposer{
		templates:   root,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		window:      window,
	}, nil
}

// Build renders the system instructions for in.State and assembles the
// windowed history plus the latest utterance.
func (c *ResponseComposer) Build(in ComposeInput) (LLMRequest, error) {
	data := promptContext{
		Preferences: in.Record.Summary(),
		Knowledge:   in.Knowledge,
	}
	if in.Question != nil {
		data.Question = in.Question.Text
	}
	product := in.Recommended
	if in.Match != nil {
		if in.Match.Matched && in.Match.Product != nil {
			product = in.Match.Product
		}
		data.Reason = in.Match.Reason
		data.Unmet = joinLabels(in.Match.Unmet)
		if len(in.Match.Alternatives) > 0 {
			data.Alternative = in.Match.Alternatives[0].Document()
		}
	}
	if product != nil {
		data.Product = product.Document()
		data.ProductName = product.Name
	}

	persona, err := c.render("persona", data)
	if err != nil {
		return LLMRequest{}, err
	}
	instruction, err := c.render(string(in.State), data)
	if err != nil {
		return LLMRequest{}, err
	}

	messages := make([]ChatMessage, 0, 2*c.window+1)
	for _, msg := range windowHistory(in.History, c.window) {
		if msg.Role == ChatRoleUser || msg.Role == ChatRoleAssistant {
			messages = append(messages, msg)
		}
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: in.Utterance})

	return LLMRequest{
		Model:       c.model,
		System:      []string{persona, instruction},
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}, nil
}

func (c *ResponseComposer) render(name string, data promptContext) (string, error) {
	var buf bytes.Buffer
	if err := c.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("conversation: render %s template: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// CannedReply is sent when generation fails or times out.
func CannedReply(state State, question *preferences.Question) string {
	switch state {
	case StateDiscovery, StateGreeting:
		if question != nil && question.Text != "" {
			return question.Text
		}
	case StateOffTopic:
		return offTopicRedirect
	}
	return apologyReply
}

func joinLabels(fields []preferences.Field) string {
	if len(fields) == 0 {
		return "preferences"
	}
	labels := make([]string, len(fields))
	for i, f := range fields {
		labels[i] = f.Label()
	}
	if len(labels) == 1 {
		return labels[0]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + " or " + labels[len(labels)-1]
}
