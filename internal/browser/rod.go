package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/v0xg/uiverify/internal/selector"
)

type rodLauncher struct {
	opts Options
}

// Open launches a local Chromium (or attaches to RemoteURL) and opens one blank page.
// Cancelling ctx aborts a launch in progress; once Open returns, the browser
// lives until Close.
func (l *rodLauncher) Open(ctx context.Context) (Session, error) {
	var lnch *launcher.Launcher
	cancelLaunch := func() {}
	controlURL := l.opts.RemoteURL
	if controlURL == "" {
		var launchCtx context.Context
		launchCtx, cancelLaunch = context.WithCancel(context.Background())
		stop := context.AfterFunc(ctx, cancelLaunch)

		path, _ := launcher.LookPath()
		lnch = launcher.New().Context(launchCtx).Bin(path).Headless(l.opts.Headless)
		if l.opts.ProfileDir != "" {
			lnch = lnch.UserDataDir(l.opts.ProfileDir)
		}
		u, err := lnch.Launch()
		if !stop() {
			killLauncher(lnch)
			return nil, ctx.Err()
		}
		if err != nil {
			cancelLaunch()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		killLauncher(lnch)
		cancelLaunch()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		killLauncher(lnch)
		cancelLaunch()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             l.opts.Width,
		Height:            l.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = b.Close()
		killLauncher(lnch)
		cancelLaunch()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	l.opts.Logger.Debug("session opened", zap.String("control_url", controlURL))
	return &rodSession{browser: b, page: page, launcher: lnch, cancelLaunch: cancelLaunch, logger: l.opts.Logger}, nil
}

func killLauncher(l *launcher.Launcher) {
	if l != nil {
		l.Kill()
	}
}

type rodSession struct {
	mu           sync.Mutex
	browser      *rod.Browser
	page         *rod.Page
	launcher     *launcher.Launcher
	cancelLaunch context.CancelFunc
	logger       *zap.Logger
	gen          int
	closed       bool
}

func (s *rodSession) current() (*rod.Page, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrClosed
	}
	return s.page, s.gen, nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page, _, err := s.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *rodSession) Query(ctx context.Context, q selector.Query) ([]Element, error) {
	page, gen, err := s.current()
	if err != nil {
		return nil, err
	}
	p := page.Context(ctx)

	var els rod.Elements
	switch q.Dialect {
	case selector.DialectXPath:
		els, err = p.ElementsX(q.Expr)
	default:
		els, err = p.Elements(q.Expr)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = handle[*rod.Element]{node: el, gen: gen}
	}
	return out, nil
}

func (s *rodSession) element(ctx context.Context, el Element) (*rod.Element, error) {
	_, gen, err := s.current()
	if err != nil {
		return nil, err
	}
	node, err := unwrap[*rod.Element](el, gen)
	if err != nil {
		return nil, err
	}
	return node.Context(ctx), nil
}

func (s *rodSession) Click(ctx context.Context, el Element) error {
	node, err := s.element(ctx, el)
	if err != nil {
		return err
	}
	return stale(node.Click(proto.InputMouseButtonLeft, 1))
}

func (s *rodSession) Attribute(ctx context.Context, el Element, name string) (*string, error) {
	node, err := s.element(ctx, el)
	if err != nil {
		return nil, err
	}
	v, err := node.Attribute(name)
	return v, stale(err)
}

func (s *rodSession) Visible(ctx context.Context, el Element) (bool, error) {
	node, err := s.element(ctx, el)
	if err != nil {
		return false, err
	}
	v, err := node.Visible()
	return v, stale(err)
}

func (s *rodSession) Screenshot(ctx context.Context, path string) error {
	page, _, err := s.current()
	if err != nil {
		return err
	}
	data, err := page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return savePNG(path, data)
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	page, _, err := s.current()
	if err != nil {
		return "", err
	}
	return page.Context(ctx).HTML()
}

func (s *rodSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	s.cancelLaunch()
	s.logger.Debug("session closed")
	return errors.Join(errs...)
}

// stale maps rod's "node is gone" failures onto ErrStaleElement.
func stale(err error) error {
	if err == nil {
		return nil
	}
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, cdp.ErrObjNotFound) {
		return fmt.Errorf("%w: %v", ErrStaleElement, err)
	}
	return err
}
