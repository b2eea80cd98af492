// Package ai drafts verification scenarios with a language model from a
// crawled page map.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/v0xg/uiverify/internal/crawler"
	"github.com/v0xg/uiverify/internal/scenario"
)

// Provider is a chat model that answers with scenario YAML.
type Provider interface {
	DraftScenario(ctx context.Context, pageMap *crawler.PageMap, prompt string) (string, error)
	ReviseScenario(ctx context.Context, pageMap *crawler.PageMap, prompt, draft, problem string) (string, error)
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(name, model string) (Provider, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeProvider(model)
	case "openai", "gpt":
		return NewOpenAIProvider(model, os.Getenv("UIVERIFY_OPENAI_BASE_URL"))
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}

// DefaultAttempts bounds the draft and revise round trips.
const DefaultAttempts = 3

// Draft asks p for a scenario and feeds loader errors back until the YAML
// parses and validates or attempts run out. The returned YAML is exactly
// what was parsed.
func Draft(ctx context.Context, p Provider, pageMap *crawler.PageMap, prompt string, attempts int) (*scenario.Scenario, string, error) {
	if attempts < 1 {
		attempts = DefaultAttempts
	}

	resp, err := p.DraftScenario(ctx, pageMap, prompt)
	if err != nil {
		return nil, "", err
	}
	for i := 1; ; i++ {
		doc := extractYAML(resp)
		s, err := scenario.Parse([]byte(doc))
		if err == nil {
			return s, doc, nil
		}
		if i >= attempts {
			return nil, doc, fmt.Errorf("draft still invalid after %d attempts: %w", attempts, err)
		}
		resp, err = p.ReviseScenario(ctx, pageMap, prompt, doc, err.Error())
		if err != nil {
			return nil, doc, err
		}
	}
}

func marshalPageMap(pageMap *crawler.PageMap) (string, error) {
	data, err := json.MarshalIndent(pageMap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal page map: %w", err)
	}
	return string(data), nil
}

// extractYAML strips a surrounding markdown fence and any prose before it.
func extractYAML(response string) string {
	s := strings.TrimSpace(response)
	start := strings.Index(s, "```")
	if start == -1 {
		return s + "\n"
	}
	body := s[start+3:]
	// Drop the info string (```yaml).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = ""
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body) + "\n"
}
