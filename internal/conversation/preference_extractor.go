package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/jewelry-concierge/internal/preferences"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

// attributeSpec describes one extraction call: the fields it may fill and
// the instruction telling the model what counts as an explicit statement.
type attributeSpec struct {
	name        string
	fields      []preferences.Field
	instruction string
}

var attributeSpecs = []attributeSpec{
	{
		name:        "occasion",
		fields:      []preferences.Field{preferences.FieldOccasion},
		instruction: `"occasion": the event the piece is for (birthday, anniversary, engagement, wedding, graduation, holiday, everyday wear), only if the customer named one.`,
	},
	{
		name:   "purchase_type",
		fields: []preferences.Field{preferences.FieldPurchaseType, preferences.FieldRecipientRelationship},
		instruction: `"purchase_type": "self_purchase" if the customer said the piece is for themselves, "gift_purchase" if they said it is for someone else.
"recipient_relationship": who the gift is for (wife, husband, mother, friend, ...), only if they said so.`,
	},
	{
		name:        "gender",
		fields:      []preferences.Field{preferences.FieldGender},
		instruction: `"gender": "male" or "female" for whoever will wear the piece, only if stated or unambiguous from the recipient's relationship (e.g. "my wife" is female, "my brother" is male).`,
	},
	{
		name:        "category",
		fields:      []preferences.Field{preferences.FieldCategory},
		instruction: `"category": the kind of piece (rings, necklaces, earrings, bracelets, pendants, watches, ...).`,
	},
	{
		name:        "metal_type",
		fields:      []preferences.Field{preferences.FieldMetalType},
		instruction: `"metal_type": the metal they asked for (yellow gold, white gold, rose gold, silver, platinum, ...).`,
	},
	{
		name:        "stone_type",
		fields:      []preferences.Field{preferences.FieldStoneType},
		instruction: `"stone_type": the gemstone or stone color they asked for (diamond, ruby, green, ...). Use "no stone" if they explicitly want none.`,
	},
	{
		name:        "budget_range",
		fields:      []preferences.Field{preferences.FieldBudgetRange},
		instruction: `"budget_range": the most they want to spend, as a plain number in dollars (e.g. 1500).`,
	},
}

const extractionPrompt = `You extract shopping preferences from a jewelry store chat. Read the conversation and the latest message, then report ONLY what the customer explicitly stated. Never guess or fill in likely values. Use an empty string for anything not stated.

Fields:
%s

Recent conversation:
%s

Latest message: %s

Respond with JSON only, using exactly these keys: %s`

// ExtractionResult reports how one turn changed the preference record.
type ExtractionResult struct {
	Record  preferences.Record
	Updated []preferences.Field
	Failed  []preferences.Field
	Ready   bool
}

// PreferenceExtractor fills the preference record from customer text with
// one LLM call per attribute.
type PreferenceExtractor struct {
	client      LLMClient
	model       string
	window      int
	concurrency int
	retryDelay  time.Duration
	attempts    int
	logger      *logging.Logger
}

// ExtractorOption customizes a PreferenceExtractor.
type ExtractorOption func(*PreferenceExtractor)

// WithExtractionConcurrency bounds how many attribute calls run at once.
func WithExtractionConcurrency(n int) ExtractorOption {
	return func(e *PreferenceExtractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithExtractionRetry sets the total attempts per attribute and the first backoff delay.
func WithExtractionRetry(attempts int, delay time.Duration) ExtractorOption {
	return func(e *PreferenceExtractor) {
		if attempts > 0 {
			e.attempts = attempts
		}
		e.retryDelay = delay
	}
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(logger *logging.Logger) ExtractorOption {
	return func(e *PreferenceExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewPreferenceExtractor(client LLMClient, model string, window int, opts ...ExtractorOption) *PreferenceExtractor {
	if client == nil {
		panic("conversation: preference extractor requires an llm client")
	}
	e := &PreferenceExtractor{
		client:      client,
		model:       model,
		window:      window,
		concurrency: 4,
		retryDelay:  300 * time.Millisecond,
		attempts:    2,
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs every attribute extraction against the latest utterance and
// merges the results into rec. A failed attribute leaves its fields
// untouched and is listed in Failed; the others still apply. The returned
// error is non-nil only when ctx ends.
func (e *PreferenceExtractor) Extract(ctx context.Context, history []ChatMessage, utterance string, rec preferences.Record) (ExtractionResult, error) {
	transcript := formatTranscript(windowHistory(history, e.window))
	values := make([]map[preferences.Field]string, len(attributeSpecs))
	failed := make([]bool, len(attributeSpecs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, spec := range attributeSpecs {
		g.Go(func() error {
			out, err := retryWithBackoff(gctx, e.attempts, e.retryDelay, func(ctx context.Context) (map[preferences.Field]string, error) {
				return e.extractOne(ctx, spec, transcript, utterance)
			})
			if err != nil {
				failed[i] = true
				e.logger.Warn("preference extraction failed", "attribute", spec.name, "error", err)
				return nil
			}
			values[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return ExtractionResult{Record: rec, Ready: preferences.Ready(rec)}, err
	}

	result := ExtractionResult{}
	for i, spec := range attributeSpecs {
		if failed[i] {
			result.Failed = append(result.Failed, spec.fields...)
			continue
		}
		for _, field := range spec.fields {
			if rec.Apply(field, values[i][field]) {
				result.Updated = append(result.Updated, field)
			}
		}
	}
	result.Record = rec
	result.Ready = preferences.Ready(rec)
	return result, nil
}

func (e *PreferenceExtractor) extractOne(ctx context.Context, spec attributeSpec, transcript, utterance string) (map[preferences.Field]string, error) {
	keys := make([]string, 0, len(spec.fields))
	for _, f := range spec.fields {
		keys = append(keys, `"`+string(f)+`"`)
	}
	prompt := fmt.Sprintf(extractionPrompt, spec.instruction, transcript, strings.TrimSpace(utterance), strings.Join(keys, ", "))

	resp, err := completeObserved(ctx, e.client, "extract_"+spec.name, LLMRequest{
		Model:       e.model,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   120,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := decodeJSONObject(resp.Text, &raw); err != nil {
		return nil, fmt.Errorf("conversation: parse %s extraction: %w", spec.name, err)
	}

	out := make(map[preferences.Field]string, len(spec.fields))
	for _, f := range spec.fields {
		out[f] = normalizeExtracted(f, raw[string(f)])
	}
	return out, nil
}

var nullValues = map[string]bool{
	"":              true,
	"none":          true,
	"null":          true,
	"n/a":           true,
	"unknown":       true,
	"not specified": true,
	"not stated":    true,
}

// normalizeExtracted coerces a raw JSON value into the stored form of field,
// returning "" for anything that is not a usable statement.
func normalizeExtracted(field preferences.Field, v any) string {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
	s = strings.TrimSpace(s)
	if nullValues[strings.ToLower(s)] {
		return ""
	}

	switch field {
	case preferences.FieldPurchaseType:
		return preferences.NormalizePurchaseType(s)
	case preferences.FieldGender:
		return preferences.NormalizeGender(s)
	case preferences.FieldBudgetRange:
		amount, ok := preferences.ParseBudget(s)
		if !ok {
			return ""
		}
		return strconv.FormatFloat(amount, 'f', -1, 64)
	default:
		return strings.ToLower(s)
	}
}
