package selector

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either a bare string (raw CSS) or a mapping with
// exactly one of css, xpath, text, label, label_prefix or attr, plus the
// optional tag and, for attr, value keys:
//
//	selector: {label: "Selecionar número 01", tag: button}
//	selector: {text: "Meus Jogos"}
//	selector: {attr: aria-pressed, value: "true", tag: button}
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = ByCSS(node.Value)
		return s.Validate()
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: selector must be a string or a mapping", node.Line)
	}

	var sel Selector
	kinds := 0
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: selector field %q must be a string", val.Line, key.Value)
		}
		switch key.Value {
		case "css", "xpath", "text", "label", "label_prefix":
			kinds++
			sel.Kind = kindByName(key.Value)
			sel.Value = val.Value
		case "attr":
			kinds++
			sel.Kind = Attr
			sel.Name = val.Value
		case "value":
			sel.Value = val.Value
		case "tag":
			sel.Tag = val.Value
		default:
			return fmt.Errorf("line %d: unknown selector field %q", key.Line, key.Value)
		}
	}
	if kinds != 1 {
		return fmt.Errorf("line %d: selector needs exactly one of css, xpath, text, label, label_prefix, attr", node.Line)
	}
	if err := sel.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = sel
	return nil
}

// MarshalYAML writes the mapping form read by UnmarshalYAML.
func (s Selector) MarshalYAML() (interface{}, error) {
	out := map[string]string{}
	if s.Kind == Attr {
		out["attr"] = s.Name
		if s.Value != "" {
			out["value"] = s.Value
		}
	} else {
		out[s.Kind.String()] = s.Value
	}
	if s.Tag != "" {
		out["tag"] = s.Tag
	}
	return out, nil
}

func kindByName(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return CSS
}
