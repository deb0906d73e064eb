package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
)

// stubLLM answers every Complete call through reply and records requests.
type stubLLM struct {
	mu    sync.Mutex
	calls []LLMRequest
	reply func(req LLMRequest) (LLMResponse, error)
}

func (s *stubLLM) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	reply := s.reply
	s.mu.Unlock()
	if reply == nil {
		return LLMResponse{}, errors.New("stub: no reply configured")
	}
	return reply(req)
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 || len(s.calls[len(s.calls)-1].Messages) == 0 {
		return ""
	}
	msgs := s.calls[len(s.calls)-1].Messages
	return msgs[len(msgs)-1].Content
}

func textReply(text string) func(LLMRequest) (LLMResponse, error) {
	return func(LLMRequest) (LLMResponse, error) {
		return LLMResponse{Text: text}, nil
	}
}

// stubStreamLLM emits chunks through CompleteStream.
type stubStreamLLM struct {
	chunks  []StreamChunk
	openErr error
	hold    chan struct{}
}

func (s *stubStreamLLM) Complete(context.Context, LLMRequest) (LLMResponse, error) {
	return LLMResponse{}, errors.New("stub: streaming only")
}

func (s *stubStreamLLM) CompleteStream(ctx context.Context, _ LLMRequest) (<-chan StreamChunk, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for _, c := range s.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
		if s.hold != nil {
			select {
			case <-s.hold:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// requestedKeys returns the JSON keys an extraction prompt asks for.
func requestedKeys(prompt string) []string {
	const marker = "using exactly these keys: "
	i := strings.LastIndex(prompt, marker)
	if i < 0 {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(prompt[i+len(marker):], ",") {
		keys = append(keys, strings.Trim(strings.TrimSpace(k), `"`))
	}
	return keys
}

type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func sampleProducts() []catalog.Product {
	return []catalog.Product{
		{
			ID:         "ring-rose-diamond",
			Name:       "Rose Gold Diamond Solitaire",
			Category:   "Rings",
			Metal:      "rose gold",
			Stones:     []string{"diamond"},
			Gender:     catalog.GenderFemale,
			PriceCents: 120000,
			InStock:    true,
		},
		{
			ID:         "ring-yellow-ruby",
			Name:       "Yellow Gold Ruby Band",
			Category:   "Rings",
			Metal:      "yellow gold",
			Stones:     []string{"ruby"},
			Gender:     catalog.GenderFemale,
			PriceCents: 90000,
			InStock:    true,
		},
		{
			ID:         "neck-silver-aqua",
			Name:       "Silver Aquamarine Pendant Necklace",
			Category:   "Necklaces",
			Metal:      "silver",
			Stones:     []string{"aquamarine"},
			Gender:     catalog.GenderFemale,
			PriceCents: 35000,
			InStock:    true,
		},
	}
}
