package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/v0xg/uiverify/internal/selector"
)

type chromedpLauncher struct {
	opts Options
}

// Open starts a Chrome through an exec allocator, or attaches to RemoteURL
// with a remote allocator.
func (l *chromedpLauncher) Open(ctx context.Context) (Session, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if l.opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), l.opts.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", l.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.WindowSize(l.opts.Width, l.opts.Height),
		)
		if l.opts.ProfileDir != "" {
			opts = append(opts, chromedp.UserDataDir(l.opts.ProfileDir))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	sugar := l.opts.Logger.Sugar()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)

	s := &chromedpSession{ctx: browserCtx, cancel: func() {
		cancelBrowser()
		cancelAlloc()
	}, logger: l.opts.Logger}

	// The first Run starts the browser and its first tab.
	if err := s.run(ctx); err != nil {
		s.cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	l.opts.Logger.Debug("session opened", zap.Bool("remote", l.opts.RemoteURL != ""))
	return s, nil
}

type chromedpSession struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	gen    int
	closed bool
}

// run executes actions on the tab context, bounded by the caller's
// deadline and cancellation.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSession) generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromedpSession) Query(ctx context.Context, q selector.Query) ([]Element, error) {
	gen := s.generation()
	by := chromedp.ByQueryAll
	if q.Dialect == selector.DialectXPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(q.Expr, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = handle[*cdp.Node]{node: n, gen: gen}
	}
	return out, nil
}

func (s *chromedpSession) Click(ctx context.Context, el Element) error {
	node, err := unwrap[*cdp.Node](el, s.generation())
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseClickNode(node))
}

func (s *chromedpSession) Attribute(ctx context.Context, el Element, name string) (*string, error) {
	node, err := unwrap[*cdp.Node](el, s.generation())
	if err != nil {
		return nil, err
	}
	var value string
	var ok bool
	err = s.run(ctx, chromedp.AttributeValue([]cdp.NodeID{node.NodeID}, name, &value, &ok, chromedp.ByNodeID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &value, nil
}

// Visible treats an element without a box model (display:none, detached)
// as hidden.
func (s *chromedpSession) Visible(ctx context.Context, el Element) (bool, error) {
	node, err := unwrap[*cdp.Node](el, s.generation())
	if err != nil {
		return false, err
	}
	visible := false
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		box, err := dom.GetBoxModel().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return nil
		}
		visible = box.Width > 0 && box.Height > 0
		return nil
	}))
	return visible, err
}

func (s *chromedpSession) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return savePNG(path, buf)
}

func (s *chromedpSession) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromedpSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.logger.Debug("session closed")
	return err
}
