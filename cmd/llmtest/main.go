// Command llmtest sends one sample shopping conversation through each
// configured provider and the intent and preference stages.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/jewelry-concierge/cmd/mainconfig"
	appconfig "github.com/wolfman30/jewelry-concierge/internal/config"
	"github.com/wolfman30/jewelry-concierge/internal/conversation"
	"github.com/wolfman30/jewelry-concierge/internal/preferences"
)

var sampleHistory = []conversation.ChatMessage{
	{Role: conversation.ChatRoleUser, Content: "Hi! I'm looking for an anniversary gift for my wife."},
	{Role: conversation.ChatRoleAssistant, Content: "How lovely! What kind of piece did you have in mind?"},
}

const sampleUtterance = "Maybe a rose gold ring with a diamond, under 2k."

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}
	cfg := appconfig.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	providers := map[string]conversation.LLMClient{}
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			fmt.Printf("aws config: %v\n", err)
			os.Exit(1)
		}
		providers["bedrock"] = conversation.NewBedrockLLMClient(mainconfig.NewBedrockClient(awsCfg, cfg))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			fmt.Printf("gemini client: %v\n", err)
			os.Exit(1)
		}
		providers["gemini"] = gemini
	}
	if len(providers) == 0 {
		fmt.Println("Set BEDROCK_MODEL_ID or GEMINI_API_KEY to run the smoke test")
		os.Exit(1)
	}

	failed := false
	for name, client := range providers {
		fmt.Printf("\n== %s ==\n", name)
		if err := smoke(ctx, cfg, client); err != nil {
			fmt.Printf("FAIL: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func smoke(ctx context.Context, cfg *appconfig.Config, client conversation.LLMClient) error {
	start := time.Now()
	stream, err := conversation.Stream(ctx, client, conversation.LLMRequest{
		Model:       cfg.BedrockModelID,
		System:      []string{"You are a jewelry store concierge. Reply in one short sentence."},
		Messages:    append(append([]conversation.ChatMessage(nil), sampleHistory...), conversation.ChatMessage{Role: conversation.ChatRoleUser, Content: sampleUtterance}),
		MaxTokens:   120,
		Temperature: cfg.LLMTemperature,
	})
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	var reply strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			return fmt.Errorf("stream chunk: %w", chunk.Error)
		}
		reply.WriteString(chunk.Text)
	}
	fmt.Printf("reply (%v): %s\n", time.Since(start).Round(time.Millisecond), reply.String())

	intent, err := conversation.NewIntentClassifier(client, cfg.BedrockModelID, cfg.ClassifierMaxTokens, cfg.HistoryWindow).
		Classify(ctx, sampleHistory, sampleUtterance)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	fmt.Printf("intent: %s\n", intent)

	extraction, err := conversation.NewPreferenceExtractor(client, cfg.BedrockModelID, cfg.HistoryWindow).
		Extract(ctx, sampleHistory, sampleUtterance, preferences.Record{})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	fmt.Printf("preferences: %s (ready=%t)\n", extraction.Record.Summary(), extraction.Ready)
	if len(extraction.Failed) > 0 {
		fmt.Printf("  failed fields: %v\n", extraction.Failed)
	}
	return nil
}
