package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/v0xg/uiverify/internal/selector"
)

// staticLauncher opens sessions over plain HTTP. Pages are parsed once per
// navigation; nothing is rendered and no script runs.
type staticLauncher struct {
	client *http.Client
	logger *zap.Logger
}

func (l *staticLauncher) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &staticSession{client: l.client, logger: l.logger}, nil
}

type staticSession struct {
	mu     sync.Mutex
	client *http.Client
	logger *zap.Logger
	url    *url.URL
	root   *html.Node
	body   string
	gen    int
	closed bool
}

func (s *staticSession) Navigate(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.load(ctx, rawURL)
}

func (s *staticSession) load(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if s.url != nil {
		u = s.url.ResolveReference(u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s: %s", u, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	s.gen++
	s.url = resp.Request.URL
	s.root = root
	s.body = string(data)
	s.logger.Debug("page loaded", zap.String("url", s.url.String()), zap.Int("bytes", len(data)))
	return nil
}

func (s *staticSession) page() (*html.Node, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrClosed
	}
	if s.root == nil {
		return nil, 0, fmt.Errorf("no page loaded")
	}
	return s.root, s.gen, nil
}

func (s *staticSession) Query(ctx context.Context, q selector.Query) ([]Element, error) {
	root, gen, err := s.page()
	if err != nil {
		return nil, err
	}

	var nodes []*html.Node
	switch q.Dialect {
	case selector.DialectXPath:
		nodes, err = htmlquery.QueryAll(root, q.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", q.Expr, err)
		}
	default:
		nodes = goquery.NewDocumentFromNode(root).Find(q.Expr).Nodes
	}

	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = handle[*html.Node]{node: n, gen: gen}
	}
	return out, nil
}

func (s *staticSession) node(el Element) (*html.Node, error) {
	_, gen, err := s.page()
	if err != nil {
		return nil, err
	}
	return unwrap[*html.Node](el, gen)
}

// Click follows links. Anything else needs a script engine.
func (s *staticSession) Click(ctx context.Context, el Element) error {
	n, err := s.node(el)
	if err != nil {
		return err
	}
	for a := n; a != nil; a = a.Parent {
		if a.Type == html.ElementNode && a.Data == "a" {
			if href, ok := attr(a, "href"); ok && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
				s.mu.Lock()
				defer s.mu.Unlock()
				return s.load(ctx, href)
			}
		}
	}
	return fmt.Errorf("%w: cannot activate <%s> without a script engine", ErrUnsupported, n.Data)
}

func (s *staticSession) Attribute(ctx context.Context, el Element, name string) (*string, error) {
	n, err := s.node(el)
	if err != nil {
		return nil, err
	}
	if v, ok := attr(n, name); ok {
		return &v, nil
	}
	return nil, nil
}

// Visible approximates rendering from markup alone: the element and its
// ancestors must not be hidden, display:none, visibility:hidden or inside
// a non-rendered container.
func (s *staticSession) Visible(ctx context.Context, el Element) (bool, error) {
	n, err := s.node(el)
	if err != nil {
		return false, err
	}
	return Rendered(n), nil
}

// Rendered reports whether n would be displayed, judged from markup alone:
// it and its ancestors are outside head and script-like elements and carry
// no hidden attribute, hidden input type or inline display:none.
func Rendered(n *html.Node) bool {
	for a := n; a != nil; a = a.Parent {
		if a.Type != html.ElementNode {
			continue
		}
		switch a.Data {
		case "head", "script", "style", "template", "noscript":
			return false
		}
		if _, ok := attr(a, "hidden"); ok {
			return false
		}
		if t, _ := attr(a, "type"); a.Data == "input" && strings.EqualFold(t, "hidden") {
			return false
		}
		style, _ := attr(a, "style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func (s *staticSession) Screenshot(ctx context.Context, path string) error {
	return fmt.Errorf("%w: static driver cannot capture screenshots", ErrUnsupported)
}

func (s *staticSession) Content(ctx context.Context) (string, error) {
	if _, _, err := s.page(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body, nil
}

func (s *staticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.root = nil
	return nil
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
