// Package summarize provides the summarization collaborator used by
// conversation compaction.
package summarize

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// SilentSentinel is returned by the summarizer when the conversation
// contains nothing worth keeping.
const SilentSentinel = "NO_REPLY"

// Summarizer condenses a rendered conversation into a short summary.
// Failures propagate as recoverable errors; the caller aborts its cycle
// and retries on the next trigger.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// IsSilent reports whether a summary is the "nothing notable" sentinel.
func IsSilent(summary string) bool {
	return strings.EqualFold(strings.TrimSpace(summary), SilentSentinel)
}

const summarizeInstruction = "Summarize this conversation segment concisely. " +
	"Preserve decisions, user preferences, technical details, dates, names and open todos. " +
	"Drop greetings and filler. If nothing is worth keeping, reply with exactly NO_REPLY."

// DefaultSummaryModel is used when no model is configured.
const DefaultSummaryModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI-backed summarizer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAISummarizer implements Summarizer over the chat completions API.
type OpenAISummarizer struct {
	client *openai.Client
	model  string
}

// NewOpenAI constructs an OpenAI summarizer.
func NewOpenAI(cfg OpenAIConfig) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("summarize: API key is not configured")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultSummaryModel
	}

	return &OpenAISummarizer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Summarize condenses the rendered conversation text.
func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return SilentSentinel, nil
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizeInstruction},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize: empty completion response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
