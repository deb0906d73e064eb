package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiLLMClient implements StreamingLLMClient using Google's Gemini API.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}
	return &GeminiLLMClient{client: client, modelID: modelID}, nil
}

// session prepares a chat seeded with every message but the last, which is
// returned for sending. The request's Model is ignored; Gemini always uses
// the configured model id.
func (c *GeminiLLMClient) session(req LLMRequest) (*genai.ChatSession, string, error) {
	model := c.client.GenerativeModel(c.modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}

	system := append([]string(nil), req.System...)
	var turns []ChatMessage
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if msg.Role == ChatRoleSystem {
			system = append(system, content)
			continue
		}
		turns = append(turns, ChatMessage{Role: msg.Role, Content: content})
	}
	if text := strings.TrimSpace(strings.Join(system, "\n\n")); text != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(text))
	}
	if len(turns) == 0 {
		return nil, "", errors.New("conversation: gemini requires at least one message")
	}

	cs := model.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == ChatRoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return cs, turns[len(turns)-1].Content, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	cs, last, err := c.session(req)
	if err != nil {
		return LLMResponse{}, err
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	text := geminiText(candidate)
	if strings.TrimSpace(text) == "" {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	return LLMResponse{
		Text:       strings.TrimSpace(text),
		StopReason: candidate.FinishReason.String(),
		Usage:      geminiUsage(resp.UsageMetadata),
	}, nil
}

// CompleteStream streams Gemini's partial responses.
func (c *GeminiLLMClient) CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error) {
	cs, last, err := c.session(req)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, genai.Text(last))
	chunks := make(chan StreamChunk, 32)
	go func() {
		defer close(chunks)
		var usage TokenUsage
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				chunks <- StreamChunk{Error: fmt.Errorf("conversation: gemini stream: %w", err), Done: true}
				return
			}
			if resp.UsageMetadata != nil {
				usage = geminiUsage(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			if text := geminiText(resp.Candidates[0]); text != "" {
				select {
				case chunks <- StreamChunk{Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}
		chunks <- StreamChunk{Done: true, Usage: usage}
	}()
	return chunks, nil
}

func geminiText(candidate *genai.Candidate) string {
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

func geminiUsage(meta *genai.UsageMetadata) TokenUsage {
	if meta == nil {
		return TokenUsage{}
	}
	return TokenUsage{
		InputTokens:  meta.PromptTokenCount,
		OutputTokens: meta.CandidatesTokenCount,
		TotalTokens:  meta.TotalTokenCount,
	}
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
