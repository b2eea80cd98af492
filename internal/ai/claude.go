package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/v0xg/uiverify/internal/crawler"
)

// ClaudeProvider implements the Provider interface using Anthropic's Claude
type ClaudeProvider struct {
	client *anthropic.Client
	model  string
}

// NewClaudeProvider creates a new Claude provider. Extra request options are
// appended after the API key.
func NewClaudeProvider(model string, opts ...option.RequestOption) (*ClaudeProvider, error) {
	apiKey := os.Getenv("UIVERIFY_ANTHROPIC_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("UIVERIFY_ANTHROPIC_KEY or ANTHROPIC_API_KEY environment variable required")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &ClaudeProvider{
		client: &client,
		model:  model,
	}, nil
}

func (p *ClaudeProvider) DraftScenario(ctx context.Context, pageMap *crawler.PageMap, prompt string) (string, error) {
	pm, err := marshalPageMap(pageMap)
	if err != nil {
		return "", err
	}
	return p.complete(ctx, buildUserPrompt(pm, prompt))
}

func (p *ClaudeProvider) ReviseScenario(ctx context.Context, pageMap *crawler.PageMap, prompt, draft, problem string) (string, error) {
	pm, err := marshalPageMap(pageMap)
	if err != nil {
		return "", err
	}
	return p.complete(ctx, buildRevisePrompt(pm, prompt, draft, problem))
}

func (p *ClaudeProvider) complete(ctx context.Context, userPrompt string) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Claude API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response from Claude")
}
