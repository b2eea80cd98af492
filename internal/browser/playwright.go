package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/v0xg/uiverify/internal/selector"
)

type playwrightLauncher struct {
	opts Options
}

// Open starts the playwright driver and a Chromium page. Browsers must
// already be installed (playwright install chromium).
func (l *playwrightLauncher) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var b playwright.Browser
	if l.opts.RemoteURL != "" {
		b, err = pw.Chromium.ConnectOverCDP(l.opts.RemoteURL)
	} else {
		b, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(l.opts.Headless),
		})
	}
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	page, err := b.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: l.opts.Width, Height: l.opts.Height},
	})
	if err != nil {
		_ = b.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	l.opts.Logger.Debug("session opened")
	return &playwrightSession{pw: pw, browser: b, page: page, logger: l.opts.Logger}, nil
}

// playwrightSession maps context deadlines onto playwright's per-call
// millisecond timeouts; playwright-go calls do not take a context.
type playwrightSession struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	logger  *zap.Logger
	gen     int
	closed  bool
}

func (s *playwrightSession) state() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.gen, nil
}

// timeout returns the remaining time of ctx in milliseconds, or nil for no deadline.
func timeout(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms)
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if _, err := s.state(); err != nil {
		return err
	}
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   timeout(ctx),
	})
	return err
}

func (s *playwrightSession) Query(ctx context.Context, q selector.Query) ([]Element, error) {
	gen, err := s.state()
	if err != nil {
		return nil, err
	}
	engine := "css="
	if q.Dialect == selector.DialectXPath {
		engine = "xpath="
	}
	handles, err := await(ctx, func() ([]playwright.ElementHandle, error) {
		return s.page.QuerySelectorAll(engine + q.Expr)
	})
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(handles))
	for i, h := range handles {
		out[i] = handle[playwright.ElementHandle]{node: h, gen: gen}
	}
	return out, nil
}

func (s *playwrightSession) element(el Element) (playwright.ElementHandle, error) {
	gen, err := s.state()
	if err != nil {
		return nil, err
	}
	return unwrap[playwright.ElementHandle](el, gen)
}

func (s *playwrightSession) Click(ctx context.Context, el Element) error {
	h, err := s.element(el)
	if err != nil {
		return err
	}
	return detached(h.Click(playwright.ElementHandleClickOptions{Timeout: timeout(ctx)}))
}

func (s *playwrightSession) Attribute(ctx context.Context, el Element, name string) (*string, error) {
	h, err := s.element(el)
	if err != nil {
		return nil, err
	}
	// GetAttribute reports a missing attribute as "", so ask the DOM directly.
	v, err := await(ctx, func() (any, error) {
		return h.Evaluate("(el, name) => el.getAttribute(name)", name)
	})
	if err != nil {
		return nil, detached(err)
	}
	if v == nil {
		return nil, nil
	}
	str, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("attribute %s: unexpected value %T", name, v)
	}
	return &str, nil
}

func (s *playwrightSession) Visible(ctx context.Context, el Element) (bool, error) {
	h, err := s.element(el)
	if err != nil {
		return false, err
	}
	v, err := await(ctx, h.IsVisible)
	return v, detached(err)
}

func (s *playwrightSession) Screenshot(ctx context.Context, path string) error {
	if _, err := s.state(); err != nil {
		return err
	}
	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{Timeout: timeout(ctx)})
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return savePNG(path, data)
}

func (s *playwrightSession) Content(ctx context.Context) (string, error) {
	if _, err := s.state(); err != nil {
		return "", err
	}
	return await(ctx, s.page.Content)
}

// await runs a playwright call that takes no context and returns early with
// ctx.Err() when ctx ends first. The abandoned call finishes in the background.
func await[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

func (s *playwrightSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := errors.Join(s.browser.Close(), s.pw.Stop())
	s.logger.Debug("session closed")
	return err
}

func detached(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", ErrStaleElement, err)
	}
	return err
}
