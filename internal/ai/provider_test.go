package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/uiverify/internal/crawler"
	"github.com/v0xg/uiverify/internal/scenario"
)

const validDraft = `name: save_game
description: Save six numbers.
base_url: http://localhost:3000
steps:
  - navigate: /
  - wait_for: {selector: h1}
  - click: {selector: {text: Meus Jogos}}
  - click: {selector: {label: Salvar, tag: button}}
  - wait_for: {selector: {text: "Jogo #"}}
`

var pageMap = &crawler.PageMap{
	URL:   "http://localhost:3000/",
	Title: "Loterias & IA",
	Elements: []crawler.Element{
		{Selector: "{label: Salvar, tag: button}", Type: "button", Text: "Salvar"},
		{Selector: "{label_prefix: Selecionar número, tag: button}", Type: "button", Count: 60},
	},
}

type scripted struct {
	responses []string
	problems  []string
	err       error
}

func (s *scripted) next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *scripted) DraftScenario(context.Context, *crawler.PageMap, string) (string, error) {
	return s.next()
}

func (s *scripted) ReviseScenario(_ context.Context, _ *crawler.PageMap, _, _, problem string) (string, error) {
	s.problems = append(s.problems, problem)
	return s.next()
}

func TestDraftFirstTry(t *testing.T) {
	p := &scripted{responses: []string{"Here you go:\n```yaml\n" + validDraft + "```\nEnjoy."}}
	s, doc, err := Draft(context.Background(), p, pageMap, "save a game", 0)
	require.NoError(t, err)
	assert.Equal(t, validDraft, doc)
	assert.Equal(t, "save_game", s.Name)
	assert.Len(t, s.Steps, 5)
	assert.Empty(t, p.problems)
}

func TestDraftRevisesInvalidYAML(t *testing.T) {
	broken := strings.Replace(validDraft, "click: {selector: {text: Meus Jogos}}", "tap: {selector: {text: Meus Jogos}}", 1)
	p := &scripted{responses: []string{broken, validDraft}}

	s, _, err := Draft(context.Background(), p, pageMap, "save a game", 3)
	require.NoError(t, err)
	assert.Equal(t, "save_game", s.Name)
	require.Len(t, p.problems, 1)
	assert.Contains(t, p.problems[0], "tap")
}

func TestDraftGivesUp(t *testing.T) {
	p := &scripted{responses: []string{"steps: []", "steps: []"}}
	_, doc, err := Draft(context.Background(), p, pageMap, "save a game", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, "steps: []\n", doc)
	assert.Len(t, p.problems, 1)
}

func TestDraftProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	_, _, err := Draft(context.Background(), &scripted{err: boom}, pageMap, "x", 1)
	assert.ErrorIs(t, err, boom)
}

func TestExtractYAML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", "name: a\n", "name: a\n"},
		{"fenced", "```yaml\nname: a\n```", "name: a\n"},
		{"prose around fence", "Sure!\n```\nname: a\n```\nDone", "name: a\n"},
		{"unterminated fence", "```yaml\nname: a\n", "name: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractYAML(tt.in))
		})
	}
}

func TestNewProvider(t *testing.T) {
	t.Setenv("UIVERIFY_ANTHROPIC_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewProvider("claude", "")
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY")

	_, err = NewProvider("llama", "")
	assert.ErrorContains(t, err, "unknown provider: llama")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	p, err := NewProvider("gpt", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.(*OpenAIProvider).model)
}

func TestClaudeProviderDraft(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "Selecionar número")
		assert.Contains(t, string(body), "save a game")

		text, _ := json.Marshal(validDraft)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"msg_01","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",`+
			`"content":[{"type":"text","text":%s}],"stop_reason":"end_turn","stop_sequence":null,`+
			`"usage":{"input_tokens":10,"output_tokens":20}}`, text)
	}))
	t.Cleanup(srv.Close)

	p, err := NewClaudeProvider("", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)
	s, _, err := Draft(context.Background(), p, pageMap, "save a game", 1)
	require.NoError(t, err)
	assert.Equal(t, "save_game", s.Name)
}

func TestOpenAIProviderDraft(t *testing.T) {
	t.Setenv("UIVERIFY_OPENAI_KEY", "sk-test")
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		content := "name: \"\"\n"
		if n > 1 {
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "rejected by the scenario loader")
			content = validDraft
		}
		text, _ := json.Marshal(content)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, text)
	}))
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider("", srv.URL+"/v1")
	require.NoError(t, err)
	s, _, err := Draft(context.Background(), p, pageMap, "save a game", 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
	assert.IsType(t, &scenario.Scenario{}, s)
}
