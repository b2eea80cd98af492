package scenario

import (
	"fmt"
	"strconv"
	"time"

	"github.com/v0xg/uiverify/internal/selector"
)

// Step is one atomic interaction or check. The concrete types below are the
// complete set; values are never modified after a scenario is loaded.
type Step interface {
	// Kind is the step's YAML key, e.g. "click".
	Kind() string
	// Target describes what the step acts on for traces and errors.
	Target() string
	// Refs lists the captured values the step reads.
	Refs() []string
}

// Navigate loads URL, resolved against the scenario base URL when relative.
type Navigate struct {
	URL string
}

// WaitFor polls until at least one element matches.
type WaitFor struct {
	Selector selector.Selector
	Timeout  time.Duration
}

// WaitGone polls until no visible element matches.
type WaitGone struct {
	Selector selector.Selector
	Timeout  time.Duration
}

// WaitCount polls until exactly Count elements match.
type WaitCount struct {
	Selector selector.Selector
	Count    int
	Timeout  time.Duration
}

// Click clicks the first match, or fails when RequireUnique is set and the
// selector matches more than one element.
type Click struct {
	Selector      selector.Selector
	RequireUnique bool
}

// AssertVisible checks visibility right now. Expected=false requires that
// no match is visible.
type AssertVisible struct {
	Selector selector.Selector
	Expected bool
}

// AssertCount checks the current number of matches.
type AssertCount struct {
	Selector selector.Selector
	Count    int
}

// AssertContent checks that the rendered markup contains a substring.
type AssertContent struct {
	Contains string
}

// AssertAttribute checks an attribute of the first match.
type AssertAttribute struct {
	Selector selector.Selector
	Attr     string
	Equals   string
}

// ReadAttribute stores an attribute of the first match under Label. When
// Pattern is set its single capture group is stored instead of the raw value.
type ReadAttribute struct {
	Selector selector.Selector
	Attr     string
	Label    string
	Pattern  string
}

// Screenshot captures the page as a diagnostic artifact.
type Screenshot struct {
	Name string
}

// Sleep pauses for a fixed duration. Prefer a wait step keyed on the DOM.
type Sleep struct {
	Duration time.Duration
}

func (Navigate) Kind() string        { return "navigate" }
func (WaitFor) Kind() string         { return "wait_for" }
func (WaitGone) Kind() string        { return "wait_gone" }
func (WaitCount) Kind() string       { return "wait_count" }
func (Click) Kind() string           { return "click" }
func (AssertVisible) Kind() string   { return "assert_visible" }
func (AssertCount) Kind() string     { return "assert_count" }
func (AssertContent) Kind() string   { return "assert_content" }
func (AssertAttribute) Kind() string { return "assert_attribute" }
func (ReadAttribute) Kind() string   { return "read_attribute" }
func (Screenshot) Kind() string      { return "screenshot" }
func (Sleep) Kind() string           { return "sleep" }

func (s Navigate) Target() string  { return s.URL }
func (s WaitFor) Target() string   { return s.Selector.String() }
func (s WaitGone) Target() string  { return s.Selector.String() }
func (s WaitCount) Target() string { return fmt.Sprintf("%s x%d", s.Selector, s.Count) }
func (s Click) Target() string     { return s.Selector.String() }
func (s AssertVisible) Target() string {
	if s.Expected {
		return s.Selector.String() + " visible"
	}
	return s.Selector.String() + " hidden"
}
func (s AssertCount) Target() string   { return fmt.Sprintf("%s x%d", s.Selector, s.Count) }
func (s AssertContent) Target() string { return strconv.Quote(s.Contains) }
func (s AssertAttribute) Target() string {
	return fmt.Sprintf("%s @%s == %q", s.Selector, s.Attr, s.Equals)
}
func (s ReadAttribute) Target() string {
	return fmt.Sprintf("%s @%s -> {%s}", s.Selector, s.Attr, s.Label)
}
func (s Screenshot) Target() string { return s.Name }
func (s Sleep) Target() string      { return s.Duration.String() }

func (s Navigate) Refs() []string        { return selector.Refs(s.URL) }
func (s WaitFor) Refs() []string         { return s.Selector.Refs() }
func (s WaitGone) Refs() []string        { return s.Selector.Refs() }
func (s WaitCount) Refs() []string       { return s.Selector.Refs() }
func (s Click) Refs() []string           { return s.Selector.Refs() }
func (s AssertVisible) Refs() []string   { return s.Selector.Refs() }
func (s AssertCount) Refs() []string     { return s.Selector.Refs() }
func (s AssertContent) Refs() []string   { return selector.Refs(s.Contains) }
func (s AssertAttribute) Refs() []string { return append(s.Selector.Refs(), selector.Refs(s.Equals)...) }
func (s ReadAttribute) Refs() []string   { return s.Selector.Refs() }
func (Screenshot) Refs() []string        { return nil }
func (Sleep) Refs() []string             { return nil }
