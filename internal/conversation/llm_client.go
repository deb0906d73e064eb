package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of the transcript, or a system prompt when building requests.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
	TotalTokens  int32 `json:"total_tokens"`
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// StreamChunk is one piece of a streamed completion. The final chunk has
// Done set and carries either Usage or Error.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage TokenUsage
	Error error
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// StreamingLLMClient is implemented by providers that can emit partial text.
type StreamingLLMClient interface {
	LLMClient
	CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error)
}

// Stream completes req incrementally when client supports it, otherwise it
// wraps a single Complete call as a one-chunk stream.
func Stream(ctx context.Context, client LLMClient, req LLMRequest) (<-chan StreamChunk, error) {
	if sc, ok := client.(StreamingLLMClient); ok {
		return sc.CompleteStream(ctx, req)
	}
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return singleChunk(resp), nil
}

func singleChunk(resp LLMResponse) <-chan StreamChunk {
	ch := make(chan StreamChunk, 2)
	if resp.Text != "" {
		ch <- StreamChunk{Text: resp.Text}
	}
	ch <- StreamChunk{Done: true, Usage: resp.Usage}
	close(ch)
	return ch
}
