package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/uiverify/internal/browser"
	"github.com/v0xg/uiverify/internal/scenario"
	"github.com/v0xg/uiverify/internal/selector"
)

// execution is the state of one run: the session, captured values and artifacts.
type execution struct {
	opts    Options
	sess    browser.Session
	baseURL string
	dir     string
	logger  *zap.Logger

	values    map[string]string
	captures  []Capture
	artifacts []string
	shots     int
}

func (e *execution) run(ctx context.Context, step scenario.Step) error {
	switch st := step.(type) {
	case scenario.Navigate:
		return e.navigate(ctx, st)
	case scenario.WaitFor:
		return e.waitFor(ctx, st)
	case scenario.WaitGone:
		return e.waitGone(ctx, st)
	case scenario.WaitCount:
		return e.waitCount(ctx, st)
	case scenario.Click:
		return e.click(ctx, st)
	case scenario.AssertVisible:
		return e.assertVisible(ctx, st)
	case scenario.AssertCount:
		return e.assertCount(ctx, st)
	case scenario.AssertContent:
		return e.assertContent(ctx, st)
	case scenario.AssertAttribute:
		return e.assertAttribute(ctx, st)
	case scenario.ReadAttribute:
		return e.readAttribute(ctx, st)
	case scenario.Screenshot:
		e.shots++
		e.capture(ctx, fmt.Sprintf("%02d_%s.png", e.shots, st.Name))
		return nil
	case scenario.Sleep:
		return sleep(ctx, st.Duration)
	default:
		return fmt.Errorf("unsupported step type %T", step)
	}
}

// expand substitutes captured values right before the step runs.
func (e *execution) expand(s string) (string, error) {
	out, err := selector.Expand(s, e.values)
	var missing *selector.MissingRefError
	if errors.As(err, &missing) {
		return "", &CaptureMissingError{Names: missing.Names}
	}
	return out, err
}

func (e *execution) resolve(sel selector.Selector) (selector.Query, error) {
	expanded, err := sel.Expand(e.values)
	if err != nil {
		var missing *selector.MissingRefError
		if errors.As(err, &missing) {
			return selector.Query{}, &CaptureMissingError{Names: missing.Names}
		}
		return selector.Query{}, err
	}
	return expanded.Compile()
}

func (e *execution) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return e.opts.DefaultTimeout
}

// query returns the current matches under the short action timeout.
func (e *execution) query(ctx context.Context, q selector.Query) ([]browser.Element, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
	defer cancel()
	return e.sess.Query(ctx, q)
}

// visible treats a handle that went stale as not visible.
func (e *execution) visible(ctx context.Context, el browser.Element) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
	defer cancel()
	v, err := e.sess.Visible(ctx, el)
	if errors.Is(err, browser.ErrStaleElement) {
		return false, nil
	}
	return v, err
}

func (e *execution) countVisible(ctx context.Context, els []browser.Element) (int, error) {
	n := 0
	for _, el := range els {
		v, err := e.visible(ctx, el)
		if err != nil {
			return 0, err
		}
		if v {
			n++
		}
	}
	return n, nil
}

func (e *execution) navigate(ctx context.Context, st scenario.Navigate) error {
	raw, err := e.expand(st.URL)
	if err != nil {
		return err
	}
	target, err := resolveURL(e.baseURL, raw)
	if err != nil {
		return &NavigationError{URL: raw, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.NavigationTimeout)
	defer cancel()
	if err := e.sess.Navigate(ctx, target); err != nil {
		return &NavigationError{URL: target, Err: err}
	}
	return nil
}

func resolveURL(base, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() || base == "" {
		return u.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(u).String(), nil
}

func (e *execution) waitFor(ctx context.Context, st scenario.WaitFor) error {
	q, err := e.resolve(st.Selector)
	if err != nil {
		return err
	}
	timeout := e.timeout(st.Timeout)
	err = poll(ctx, timeout, e.opts.PollInterval, func(ctx context.Context) (bool, error) {
		els, err := e.sess.Query(ctx, q)
		return len(els) > 0, err
	})
	if errors.Is(err, ErrTimeout) {
		return &ElementNotFoundError{
			Selector: q.Source,
			Err:      &TimeoutError{Condition: "element " + q.Source + " present", Timeout: timeout},
		}
	}
	return err
}

func (e *execution) waitGone(ctx context.Context, st scenario.WaitGone) error {
	q, err := e.resolve(st.Selector)
	if err != nil {
		return err
	}
	timeout := e.timeout(st.Timeout)
	last := 0
	err = poll(ctx, timeout, e.opts.PollInterval, func(ctx context.Context) (bool, error) {
		els, err := e.sess.Query(ctx, q)
		if err != nil {
			return false, err
		}
		last, err = e.countVisible(ctx, els)
		return last == 0, err
	})
	if errors.Is(err, ErrTimeout) {
		return &TimeoutError{
			Condition: fmt.Sprintf("%s gone (still %d visible)", q.Source, last),
			Timeout:   timeout,
		}
	}
	return err
}

func (e *execution) waitCount(ctx context.Context, st scenario.WaitCount) error {
	q, err := e.resolve(st.Selector)
	if err != nil {
		return err
	}
	timeout := e.timeout(st.Timeout)
	last := 0
	err = poll(ctx, timeout, e.opts.PollInterval, func(ctx context.Context) (bool, error) {
		els, err := e.sess.Query(ctx, q)
		last = len(els)
		return last == st.Count, err
	})
	if errors.Is(err, ErrTimeout) {
		return &TimeoutError{
			Condition: fmt.Sprintf("%d matches of %s (last saw %d)", st.Count, q.Source, last),
			Timeout:   timeout,
		}
	}
	return err
}

func (e *execution) click(ctx context.Context, st scenario.Click) error {
	q, err := e.resolve(st.Selector)
	if err != nil {
		return err
	}
	els, err := e.query(ctx, q)
	if err != nil {
		return err
	}
	switch {
	case len(els) == 0:
		return &ElementNotFoundError{Selector: q.Source}
	case len(els) > 1 && st.RequireUnique:
		return &AmbiguousElementError{Selector: q.Source, Count: len(els)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
	defer cancel()
	if err := e.sess.Click(ctx, els[0]); err != nil {
		return &InteractionError{Selector: q.Source, Err: err}
	}
	return nil
}

func (e *execution) assertVisible(ctx context.Context, st scenario.AssertVisible) error {
	q, err := e.resolve(st.Selector)
	if err != nil {
		return err
	}
	els, err := e.query(ctx, q)
	if err != nil {
		return err
	}

	if st.Expected {
		if len(els) == 0 {
			return &AssertionError{Selector: q.Source, Expected: "visible", Actual: "no match"}
		}
		v, err := e.visible(ctx, els[0])
		if err != nil {
			return err
		}
		if !v {
			return &AssertionError{Selector: q.Source, Expected: "visible", Actual: "hidden"}
		}
		return nil
	}

	n, err := e.countVisible(ctx, els)
	if err != nil {
		return err
	}
	if n > 0 {
		return &AssertionError{Selector: q.Source, Expected: "hidden", Actual: fmt.Sprintf("%d visible", n)}
	}
	return nil
}

func (e *execution) assertCount(ctx context.Context, st scenario.AssertCount) error {
	q, err := e.resolve(st.Selector)
	if err != nil {
		return err
	}
	els, err := e.query(ctx, q)
	if err != nil {
		return err
	}
	if len(els) != st.Count {
		return &AssertionError{
			Selector: q.Source,
			Expected: fmt.Sprintf("%d matches", st.Count),
			Actual:   strconv.Itoa(len(els)),
		}
	}
	return nil
}

func (e *execution) assertContent(ctx context.Context, st scenario.AssertContent) error {
	want, err := e.expand(st.Contains)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
	defer cancel()
	content, err := e.sess.Content(cctx)
	if err != nil {
		return err
	}
	if strings.Contains(content, want) {
		return nil
	}
	return &AssertionError{
		Selector: "page content",
		Expected: strconv.Quote(want),
		Actual:   "not found",
		Detail:   nearestExcerpt(content, want),
	}
}

// first resolves the selector and returns its first match.
func (e *execution) first(ctx context.Context, sel selector.Selector) (browser.Element, selector.Query, error) {
	q, err := e.resolve(sel)
	if err != nil {
		return nil, q, err
	}
	els, err := e.query(ctx, q)
	if err != nil {
		return nil, q, err
	}
	if len(els) == 0 {
		return nil, q, &ElementNotFoundError{Selector: q.Source}
	}
	return els[0], q, nil
}

func (e *execution) attribute(ctx context.Context, sel selector.Selector, name string) (string, selector.Query, error) {
	el, q, err := e.first(ctx, sel)
	if err != nil {
		return "", q, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
	defer cancel()
	v, err := e.sess.Attribute(ctx, el, name)
	if err != nil {
		return "", q, &InteractionError{Selector: q.Source, Err: err}
	}
	if v == nil {
		return "", q, &AttributeMissingError{Selector: q.Source, Attr: name}
	}
	return *v, q, nil
}

func (e *execution) assertAttribute(ctx context.Context, st scenario.AssertAttribute) error {
	want, err := e.expand(st.Equals)
	if err != nil {
		return err
	}
	got, q, err := e.attribute(ctx, st.Selector, st.Attr)
	if err != nil {
		return err
	}
	if got != want {
		return &AssertionError{
			Selector: fmt.Sprintf("%s @%s", q.Source, st.Attr),
			Expected: strconv.Quote(want),
			Actual:   strconv.Quote(got),
		}
	}
	return nil
}

func (e *execution) readAttribute(ctx context.Context, st scenario.ReadAttribute) error {
	raw, q, err := e.attribute(ctx, st.Selector, st.Attr)
	if err != nil {
		return err
	}
	value := raw
	if st.Pattern != "" {
		re, err := regexp.Compile(st.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		m := re.FindStringSubmatch(raw)
		if m == nil {
			return &AssertionError{
				Selector: fmt.Sprintf("%s @%s", q.Source, st.Attr),
				Expected: "value matching " + st.Pattern,
				Actual:   strconv.Quote(raw),
			}
		}
		value = m[1]
	}

	e.values[st.Label] = value
	e.captures = append(e.captures, Capture{Label: st.Label, Value: value})
	e.logger.Debug("captured value", zap.String("label", st.Label), zap.String("value", value))
	return nil
}

// capture takes a best-effort screenshot and returns its path, or "" when
// the capture failed. Failures are logged as IoError and never returned.
func (e *execution) capture(ctx context.Context, name string) string {
	path := filepath.Join(e.dir, name)
	if err := e.sess.Screenshot(ctx, path); err != nil {
		e.logger.Warn("screenshot skipped", zap.Error(&IoError{Path: path, Err: err}))
		return ""
	}
	e.artifacts = append(e.artifacts, path)
	return path
}

// poll evaluates cond every interval until it holds or timeout elapses.
// Cancellation of the parent context is returned as is; running out of time
// is reported as ErrTimeout.
func poll(parent context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if ok && err == nil {
			return nil
		}
		if err != nil && ctx.Err() == nil && !errors.Is(err, browser.ErrStaleElement) {
			return err
		}
		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return parent.Err()
			}
			return ErrTimeout
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
