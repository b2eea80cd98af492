// Package browser is the harness's only view of a live page: navigate, query,
// click, read attributes, check visibility, capture, and close.
//
// Four drivers implement it. rod is the default; chromedp and playwright are
// drop-in alternatives for environments that already ship one of them; static
// fetches server-rendered HTML without a browser and cannot run scripts.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/uiverify/internal/selector"
)

//go:generate mockgen -package=runner -destination=../runner/mock_browser_test.go github.com/v0xg/uiverify/internal/browser Launcher,Session

// Element is an opaque, session-scoped handle returned by Query. It becomes
// stale as soon as the session navigates.
type Element interface{}

// Session is one open page.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Query returns the current matches without waiting; no match is not an error.
	Query(ctx context.Context, q selector.Query) ([]Element, error)
	Click(ctx context.Context, el Element) error
	// Attribute returns nil when the attribute is absent.
	Attribute(ctx context.Context, el Element, name string) (*string, error)
	Visible(ctx context.Context, el Element) (bool, error)
	Screenshot(ctx context.Context, path string) error
	// Content returns the full rendered markup.
	Content(ctx context.Context) (string, error)
	Close() error
}

// Launcher opens sessions.
type Launcher interface {
	Open(ctx context.Context) (Session, error)
}

var (
	// ErrStaleElement is returned when a handle outlived a navigation.
	ErrStaleElement = errors.New("element is stale or detached from the document")
	// ErrUnsupported is returned for operations a driver cannot perform.
	ErrUnsupported = errors.New("operation not supported by this driver")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session is closed")
)

// Driver names accepted by NewLauncher.
const (
	DriverRod        = "rod"
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
	DriverStatic     = "static"
)

// Options configures every driver; fields a driver has no use for are ignored.
type Options struct {
	Driver   string
	Headless bool
	Width    int
	Height   int
	// RemoteURL attaches to an already running browser (DevTools URL) instead of launching one.
	RemoteURL string
	// ProfileDir is a Chrome/Chromium profile directory for authenticated sessions.
	ProfileDir string
	// HTTPClient is used by the static driver.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewLauncher creates a launcher for the named driver.
func NewLauncher(opts Options) (Launcher, error) {
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 720
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Driver = strings.ToLower(strings.TrimSpace(opts.Driver))
	opts.Logger = opts.Logger.Named("browser").With(zap.String("driver", opts.Driver))

	switch opts.Driver {
	case "", DriverRod:
		return &rodLauncher{opts: opts}, nil
	case DriverChromedp:
		return &chromedpLauncher{opts: opts}, nil
	case DriverPlaywright:
		return &playwrightLauncher{opts: opts}, nil
	case DriverStatic:
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		return &staticLauncher{client: client, logger: opts.Logger}, nil
	default:
		return nil, fmt.Errorf("unknown driver: %s (supported: rod, chromedp, playwright, static)", opts.Driver)
	}
}

// savePNG writes screenshot bytes, creating the artifact directory on demand.
func savePNG(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

// handle pairs a driver node with the navigation generation it was found in.
type handle[T any] struct {
	node T
	gen  int
}

func unwrap[T any](el Element, gen int) (T, error) {
	var zero T
	h, ok := el.(handle[T])
	if !ok {
		return zero, fmt.Errorf("foreign element handle %T", el)
	}
	if h.gen != gen {
		return zero, ErrStaleElement
	}
	return h.node, nil
}
