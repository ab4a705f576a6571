package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/brandlens/perception-orchestrator/internal/config"
)

const maxTokens = 2048

// OpenAIClient adapts the OpenAI chat completion API to the Client
// interface. It also serves OpenAI-compatible endpoints via base_url.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client from provider configuration
func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg)}
}

// Complete issues one chat completion call
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	// Reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(req.Model, "o1") || strings.HasPrefix(req.Model, "o3") ||
		strings.HasPrefix(req.Model, "o4") || strings.HasPrefix(req.Model, "gpt-5") {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	msg := resp.Choices[0].Message
	completion := &Completion{Text: msg.Content}

	for _, tc := range msg.ToolCalls {
		name := tc.Function.Name
		completion.ToolUsage = append(completion.ToolUsage, name)
		if strings.Contains(name, "web_search") || strings.Contains(name, "browser") {
			completion.UsedWebSearch = true
		}
	}

	return completion, nil
}
