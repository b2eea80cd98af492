// Package selector models the ways a scenario can point at a UI control.
//
// A Selector is a tagged variant rather than a prefixed string: the kind says
// whether the value is raw CSS, raw XPath, visible text, an accessible label
// or an arbitrary attribute. Drivers never see the variant; they receive a
// compiled Query in one of the two dialects every browser backend understands.
package selector

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies the selector variant.
type Kind int

const (
	CSS Kind = iota
	XPath
	Text
	Label
	LabelPrefix
	Attr
)

var kindNames = map[Kind]string{
	CSS:         "css",
	XPath:       "xpath",
	Text:        "text",
	Label:       "label",
	LabelPrefix: "label_prefix",
	Attr:        "attr",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Selector identifies zero or more elements on the current page.
type Selector struct {
	Kind  Kind
	Value string
	// Tag optionally restricts Text, Label, LabelPrefix and Attr matches to one element name.
	Tag string
	// Name is the attribute name for Attr selectors.
	Name string
}

// Dialect is the query language a compiled selector is expressed in.
type Dialect int

const (
	DialectCSS Dialect = iota
	DialectXPath
)

// Query is a compiled selector ready to hand to a browser driver.
type Query struct {
	Dialect Dialect
	Expr    string
	// Source is the human-readable selector the query was compiled from.
	Source string
}

func (q Query) String() string { return q.Source }

func ByCSS(css string) Selector     { return Selector{Kind: CSS, Value: css} }
func ByXPath(expr string) Selector  { return Selector{Kind: XPath, Value: expr} }
func ByText(tag, text string) Selector {
	return Selector{Kind: Text, Tag: tag, Value: text}
}
func ByLabel(tag, label string) Selector {
	return Selector{Kind: Label, Tag: tag, Value: label}
}
func ByLabelPrefix(tag, prefix string) Selector {
	return Selector{Kind: LabelPrefix, Tag: tag, Value: prefix}
}
func ByAttr(tag, name, value string) Selector {
	return Selector{Kind: Attr, Tag: tag, Name: name, Value: value}
}

var (
	tagPattern  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)
	attrPattern = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:.-]*$`)
)

// Validate reports structural problems without touching a browser.
func (s Selector) Validate() error {
	if _, ok := kindNames[s.Kind]; !ok {
		return fmt.Errorf("unknown selector kind %d", int(s.Kind))
	}
	if s.Kind != Attr && strings.TrimSpace(s.Value) == "" {
		return fmt.Errorf("%s selector needs a value", s.Kind)
	}
	if s.Tag != "" {
		if s.Kind == CSS || s.Kind == XPath {
			return fmt.Errorf("%s selector cannot be scoped by tag", s.Kind)
		}
		if !tagPattern.MatchString(s.Tag) {
			return fmt.Errorf("invalid tag %q", s.Tag)
		}
	}
	if s.Kind == Attr {
		if !attrPattern.MatchString(s.Name) {
			return fmt.Errorf("invalid attribute name %q", s.Name)
		}
	} else if s.Name != "" {
		return fmt.Errorf("%s selector does not take an attribute name", s.Kind)
	}
	return nil
}

// Compile translates the selector into a CSS or XPath query.
func (s Selector) Compile() (Query, error) {
	if err := s.Validate(); err != nil {
		return Query{}, err
	}
	q := Query{Dialect: DialectCSS, Source: s.String()}
	switch s.Kind {
	case CSS:
		q.Expr = s.Value
	case XPath:
		q.Dialect = DialectXPath
		q.Expr = s.Value
	case Text:
		q.Dialect = DialectXPath
		q.Expr = fmt.Sprintf("//%s[text()[contains(normalize-space(.), %s)]]", orAny(s.Tag), xpathLiteral(s.Value))
	case Label:
		q.Expr = fmt.Sprintf(`%s[aria-label="%s"]`, s.Tag, cssString(s.Value))
	case LabelPrefix:
		q.Expr = fmt.Sprintf(`%s[aria-label^="%s"]`, s.Tag, cssString(s.Value))
	case Attr:
		if s.Value == "" {
			q.Expr = fmt.Sprintf(`%s[%s]`, s.Tag, s.Name)
		} else {
			q.Expr = fmt.Sprintf(`%s[%s="%s"]`, s.Tag, s.Name, cssString(s.Value))
		}
	}
	return q, nil
}

// String renders the selector the way progress traces and errors show it.
func (s Selector) String() string {
	prefix := ""
	if s.Tag != "" {
		prefix = s.Tag + " "
	}
	switch s.Kind {
	case Attr:
		if s.Value == "" {
			return fmt.Sprintf("%s[%s]", prefix, s.Name)
		}
		return fmt.Sprintf("%s[%s=%q]", prefix, s.Name, s.Value)
	default:
		return fmt.Sprintf("%s%s(%q)", prefix, s.Kind, s.Value)
	}
}

func orAny(tag string) string {
	if tag == "" {
		return "*"
	}
	return tag
}

func cssString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// xpathLiteral quotes v for XPath 1.0, which has no escape sequences.
func xpathLiteral(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
