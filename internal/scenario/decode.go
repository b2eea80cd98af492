package scenario

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/v0xg/uiverify/internal/selector"
)

// Step documents are single-key mappings: the key names the step kind and the
// value holds its parameters. A few kinds accept a bare scalar shorthand:
//
//	- navigate: /
//	- click: {selector: {text: Salvar, tag: button}}
//	- wait_for: {selector: {text: "Jogo #"}, timeout: 5s}
//	- read_attribute: {selector: {label_prefix: Remover jogo}, attr: aria-label, as: game_id, pattern: 'Remover jogo (\S+)'}
//	- screenshot: confirmation_dialog
//	- sleep: 1s
func decodeStep(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, fmt.Errorf("line %d: a step is a mapping with exactly one kind key", node.Line)
	}
	kind, body := node.Content[0].Value, node.Content[1]

	switch kind {
	case "navigate":
		if body.Kind == yaml.ScalarNode {
			return Navigate{URL: body.Value}, nil
		}
		var v struct {
			URL string `yaml:"url"`
		}
		if err := decodeStrict(body, &v, "url"); err != nil {
			return nil, err
		}
		return Navigate{URL: v.URL}, nil

	case "wait_for", "wait_gone":
		var v struct {
			Selector *selector.Selector `yaml:"selector"`
			Timeout  time.Duration      `yaml:"timeout"`
		}
		if err := decodeStrict(body, &v, "selector", "timeout"); err != nil {
			return nil, err
		}
		if v.Selector == nil {
			return nil, missing(body, "selector")
		}
		if kind == "wait_gone" {
			return WaitGone{Selector: *v.Selector, Timeout: v.Timeout}, nil
		}
		return WaitFor{Selector: *v.Selector, Timeout: v.Timeout}, nil

	case "wait_count", "assert_count":
		var v struct {
			Selector *selector.Selector `yaml:"selector"`
			Count    *int               `yaml:"count"`
			Timeout  time.Duration      `yaml:"timeout"`
		}
		allowed := []string{"selector", "count"}
		if kind == "wait_count" {
			allowed = append(allowed, "timeout")
		}
		if err := decodeStrict(body, &v, allowed...); err != nil {
			return nil, err
		}
		if v.Selector == nil {
			return nil, missing(body, "selector")
		}
		if v.Count == nil {
			return nil, missing(body, "count")
		}
		if kind == "wait_count" {
			return WaitCount{Selector: *v.Selector, Count: *v.Count, Timeout: v.Timeout}, nil
		}
		return AssertCount{Selector: *v.Selector, Count: *v.Count}, nil

	case "click":
		var v struct {
			Selector      *selector.Selector `yaml:"selector"`
			RequireUnique bool               `yaml:"require_unique"`
		}
		if err := decodeStrict(body, &v, "selector", "require_unique"); err != nil {
			return nil, err
		}
		if v.Selector == nil {
			return nil, missing(body, "selector")
		}
		return Click{Selector: *v.Selector, RequireUnique: v.RequireUnique}, nil

	case "assert_visible":
		var v struct {
			Selector *selector.Selector `yaml:"selector"`
			Visible  *bool              `yaml:"visible"`
		}
		if err := decodeStrict(body, &v, "selector", "visible"); err != nil {
			return nil, err
		}
		if v.Selector == nil {
			return nil, missing(body, "selector")
		}
		expected := true
		if v.Visible != nil {
			expected = *v.Visible
		}
		return AssertVisible{Selector: *v.Selector, Expected: expected}, nil

	case "assert_content":
		if body.Kind == yaml.ScalarNode {
			return AssertContent{Contains: body.Value}, nil
		}
		var v struct {
			Contains string `yaml:"contains"`
		}
		if err := decodeStrict(body, &v, "contains"); err != nil {
			return nil, err
		}
		return AssertContent{Contains: v.Contains}, nil

	case "assert_attribute":
		var v struct {
			Selector *selector.Selector `yaml:"selector"`
			Attr     string             `yaml:"attr"`
			Equals   *string            `yaml:"equals"`
		}
		if err := decodeStrict(body, &v, "selector", "attr", "equals"); err != nil {
			return nil, err
		}
		if v.Selector == nil {
			return nil, missing(body, "selector")
		}
		if v.Equals == nil {
			return nil, missing(body, "equals")
		}
		return AssertAttribute{Selector: *v.Selector, Attr: v.Attr, Equals: *v.Equals}, nil

	case "read_attribute":
		var v struct {
			Selector *selector.Selector `yaml:"selector"`
			Attr     string             `yaml:"attr"`
			As       string             `yaml:"as"`
			Pattern  string             `yaml:"pattern"`
		}
		if err := decodeStrict(body, &v, "selector", "attr", "as", "pattern"); err != nil {
			return nil, err
		}
		if v.Selector == nil {
			return nil, missing(body, "selector")
		}
		return ReadAttribute{Selector: *v.Selector, Attr: v.Attr, Label: v.As, Pattern: v.Pattern}, nil

	case "screenshot":
		if body.Kind == yaml.ScalarNode {
			return Screenshot{Name: body.Value}, nil
		}
		var v struct {
			Name string `yaml:"name"`
		}
		if err := decodeStrict(body, &v, "name"); err != nil {
			return nil, err
		}
		return Screenshot{Name: v.Name}, nil

	case "sleep":
		var d time.Duration
		if err := body.Decode(&d); err != nil {
			return nil, fmt.Errorf("line %d: sleep takes a duration like 500ms: %w", body.Line, err)
		}
		return Sleep{Duration: d}, nil

	default:
		return nil, fmt.Errorf("line %d: unknown step kind %q", node.Line, kind)
	}
}

// decodeStrict decodes a mapping after rejecting keys outside allowed;
// yaml.Node.Decode does not honour the decoder's KnownFields setting.
func decodeStrict(node *yaml.Node, out interface{}, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i < len(node.Content); i += 2 {
		key := node.Content[i]
		ok := false
		for _, a := range allowed {
			if key.Value == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
		}
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

func missing(node *yaml.Node, field string) error {
	return fmt.Errorf("line %d: %s is required", node.Line, field)
}
