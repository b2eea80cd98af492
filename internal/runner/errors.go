package runner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/v0xg/uiverify/internal/scenario"
)

// ErrTimeout is matched by every error produced by a wait that ran out of time.
var ErrTimeout = errors.New("timed out")

// ScenarioError reports a scenario rejected before any session was opened.
type ScenarioError struct {
	Name string
	Err  error
}

func (e *ScenarioError) Error() string { return fmt.Sprintf("invalid scenario %q: %v", e.Name, e.Err) }
func (e *ScenarioError) Unwrap() error { return e.Err }

// SessionError reports that no browser session could be opened.
type SessionError struct {
	Err error
}

func (e *SessionError) Error() string { return fmt.Sprintf("failed to open browser session: %v", e.Err) }
func (e *SessionError) Unwrap() error { return e.Err }

// NavigationError reports an unreachable target or a page load that did not complete.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}
func (e *NavigationError) Unwrap() error { return e.Err }

// TimeoutError reports a wait condition that was never satisfied.
type TimeoutError struct {
	Condition string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s not satisfied within %s", e.Condition, e.Timeout)
}
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// ElementNotFoundError reports zero matches. When produced by a wait it wraps
// the *TimeoutError, so both kinds match.
type ElementNotFoundError struct {
	Selector string
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	var te *TimeoutError
	if errors.As(e.Err, &te) {
		return fmt.Sprintf("no element matches %s within %s", e.Selector, te.Timeout)
	}
	return fmt.Sprintf("no element matches %s", e.Selector)
}
func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// AssertionError reports a state mismatch. Detail optionally carries extra
// context such as a markup excerpt.
type AssertionError struct {
	Selector string
	Expected string
	Actual   string
	Detail   string
}

func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("assertion failed on %s: expected %s, got %s", e.Selector, e.Expected, e.Actual)
	if e.Detail != "" {
		msg += "\n" + e.Detail
	}
	return msg
}

// AttributeMissingError reports an absent attribute on a matched element.
type AttributeMissingError struct {
	Selector string
	Attr     string
}

func (e *AttributeMissingError) Error() string {
	return fmt.Sprintf("attribute %q missing on %s", e.Attr, e.Selector)
}

// AmbiguousElementError reports several matches where the step required one.
type AmbiguousElementError struct {
	Selector string
	Count    int
}

func (e *AmbiguousElementError) Error() string {
	return fmt.Sprintf("%s matches %d elements, expected exactly one", e.Selector, e.Count)
}

// InteractionError reports a failure acting on an element that was already
// resolved, for instance because it was detached in between.
type InteractionError struct {
	Selector string
	Err      error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("interaction with %s failed: %v", e.Selector, e.Err)
}
func (e *InteractionError) Unwrap() error { return e.Err }

// IoError reports an artifact that could not be written. It is logged and
// never fails a scenario.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string { return fmt.Sprintf("failed to write artifact %s: %v", e.Path, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }

// CaptureMissingError reports a {label} reference with no captured value.
type CaptureMissingError struct {
	Names []string
}

func (e *CaptureMissingError) Error() string {
	refs := make([]string, len(e.Names))
	for i, n := range e.Names {
		refs[i] = "{" + n + "}"
	}
	return fmt.Sprintf("no captured value for %s", strings.Join(refs, ", "))
}

// StepError ties a failure to the step that produced it.
type StepError struct {
	Index int
	Step  scenario.Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s %s): %v", e.Index+1, e.Step.Kind(), e.Step.Target(), e.Err)
}
func (e *StepError) Unwrap() error { return e.Err }
