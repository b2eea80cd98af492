package ai

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/v0xg/uiverify/internal/crawler"
)

// OpenAIProvider implements the Provider interface using OpenAI
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL targets an
// OpenAI-compatible endpoint when set.
func NewOpenAIProvider(model, baseURL string) (*OpenAIProvider, error) {
	apiKey := os.Getenv("UIVERIFY_OPENAI_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("UIVERIFY_OPENAI_KEY or OPENAI_API_KEY environment variable required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	if model == "" {
		model = "gpt-4o"
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

func (p *OpenAIProvider) DraftScenario(ctx context.Context, pageMap *crawler.PageMap, prompt string) (string, error) {
	pm, err := marshalPageMap(pageMap)
	if err != nil {
		return "", err
	}
	return p.complete(ctx, buildUserPrompt(pm, prompt))
}

func (p *OpenAIProvider) ReviseScenario(ctx context.Context, pageMap *crawler.PageMap, prompt, draft, problem string) (string, error) {
	pm, err := marshalPageMap(pageMap)
	if err != nil {
		return "", err
	}
	return p.complete(ctx, buildRevisePrompt(pm, prompt, draft, problem))
}

func (p *OpenAIProvider) complete(ctx context.Context, userPrompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		MaxTokens: 2048,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
