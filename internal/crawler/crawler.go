// Package crawler inspects a loaded page and lists its interactive controls
// together with scenario selectors that would reach them.
package crawler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/v0xg/uiverify/internal/browser"
	"github.com/v0xg/uiverify/internal/selector"
)

// Options configures the crawler behavior
type Options struct {
	// Settle bounds the wait for interactive controls to render after load.
	Settle       time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
}

const (
	DefaultSettle       = 5 * time.Second
	DefaultPollInterval = 200 * time.Millisecond

	// groupThreshold is the number of same-stem labels folded into one label_prefix entry.
	groupThreshold = 5
	maxText        = 50
)

// Crawl navigates sess to url and maps the page. Client-rendered pages are
// re-read until controls appear or Settle elapses.
func Crawl(ctx context.Context, sess browser.Session, url string, opts Options) (*PageMap, error) {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("crawler")

	if err := sess.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}

	deadline := time.Now().Add(opts.Settle)
	for {
		content, err := sess.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read page content: %w", err)
		}
		pm, err := Analyze(url, content)
		if err != nil {
			return nil, err
		}
		if len(pm.Elements) > 0 || !time.Now().Before(deadline) {
			logger.Debug("page mapped",
				zap.String("url", url),
				zap.Int("elements", len(pm.Elements)),
				zap.Bool("spa", pm.IsSPA))
			return pm, nil
		}

		t := time.NewTimer(opts.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Analyze maps already loaded HTML.
func Analyze(url, content string) (*PageMap, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return &PageMap{
		URL:        url,
		Title:      collapse(doc.Find("title").First().Text()),
		Elements:   group(extractElements(doc)),
		Navigation: extractNavigation(doc),
		IsSPA:      detectSPA(doc, content),
	}, nil
}

func detectSPA(doc *goquery.Document, content string) bool {
	markers := "[data-reactroot], #__next, #root, #app, [ng-version], app-root, [class*='svelte-']"
	if doc.Find(markers).Length() > 0 {
		return true
	}
	return strings.Contains(content, "__NEXT_DATA__") || strings.Contains(content, "/_next/")
}

type control struct {
	query string
	kind  func(*goquery.Selection) string
}

var controls = []control{
	{`button, [role="button"], input[type="submit"], input[type="button"]`, func(*goquery.Selection) string { return "button" }},
	{`input:not([type="hidden"]):not([type="submit"]):not([type="button"]):not([type="checkbox"]):not([type="radio"]), textarea`, func(s *goquery.Selection) string {
		if t, ok := s.Attr("type"); ok && t != "" {
			return strings.ToLower(t)
		}
		return "text"
	}},
	{`a[href]`, func(*goquery.Selection) string { return "link" }},
	{`select`, func(*goquery.Selection) string { return "select" }},
	{`input[type="checkbox"], input[type="radio"]`, func(s *goquery.Selection) string {
		t, _ := s.Attr("type")
		return strings.ToLower(t)
	}},
}

func extractElements(doc *goquery.Document) []Element {
	var elements []Element
	seen := make(map[string]bool)

	for _, c := range controls {
		doc.Find(c.query).Each(func(_ int, s *goquery.Selection) {
			if !browser.Rendered(s.Get(0)) {
				return
			}
			if href, ok := s.Attr("href"); ok && goquery.NodeName(s) == "a" {
				if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
					return
				}
			}
			sel := suggest(s)
			key := flow(sel)
			if seen[key] {
				return
			}
			seen[key] = true

			el := Element{
				Selector: key,
				Type:     c.kind(s),
				Text:     truncate(collapse(s.Text())),
				ID:       s.AttrOr("id", ""),
				Name:     s.AttrOr("name", ""),
			}
			el.Label = s.AttrOr("aria-label", "")
			el.Placeholder = s.AttrOr("placeholder", "")
			el.tag = goquery.NodeName(s)
			elements = append(elements, el)
		})
	}
	return elements
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// suggest picks the most stable selector for s: accessible label, id,
// name attribute, own text, and finally a structural CSS path.
func suggest(s *goquery.Selection) selector.Selector {
	tag := goquery.NodeName(s)
	if label := strings.TrimSpace(s.AttrOr("aria-label", "")); label != "" {
		return selector.ByLabel(tag, label)
	}
	if id := s.AttrOr("id", ""); identPattern.MatchString(id) {
		return selector.ByCSS("#" + id)
	}
	if name := s.AttrOr("name", ""); name != "" && !strings.Contains(name, `"`) {
		return selector.ByAttr(tag, "name", name)
	}
	if text := ownText(s); text != "" && utf8.RuneCountInString(text) <= maxText {
		return selector.ByText(tag, text)
	}
	return selector.ByCSS(cssPath(s))
}

// ownText is the element's direct text, which is what text selectors match.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for n := s.Get(0).FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
	}
	return collapse(b.String())
}

func cssPath(s *goquery.Selection) string {
	var parts []string
	for cur := s; cur.Length() > 0; cur = cur.Parent() {
		tag := goquery.NodeName(cur)
		if tag == "html" || tag == "body" {
			break
		}
		if id := cur.AttrOr("id", ""); identPattern.MatchString(id) {
			parts = append(parts, "#"+id)
			break
		}
		index := cur.PrevAllFiltered(tag).Length() + 1
		parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", tag, index))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

var trailingNumber = regexp.MustCompile(`^(.*\S)\s+\d+$`)

// group folds families of controls whose labels differ only by a trailing
// number (the 60 number buttons) into one label_prefix entry.
func group(elements []Element) []Element {
	type family struct {
		first int
		count int
	}
	families := make(map[string]*family)
	stems := make([]string, len(elements))
	for i, el := range elements {
		m := trailingNumber.FindStringSubmatch(el.Label)
		if m == nil {
			continue
		}
		stems[i] = el.Type + "\x00" + m[1]
		f, ok := families[stems[i]]
		if !ok {
			f = &family{first: i}
			families[stems[i]] = f
		}
		f.count++
	}

	var out []Element
	for i, el := range elements {
		f, ok := families[stems[i]]
		if !ok || f.count < groupThreshold {
			out = append(out, el)
			continue
		}
		if f.first != i {
			continue
		}
		stem := strings.SplitN(stems[i], "\x00", 2)[1]
		out = append(out, Element{
			Selector: flow(selector.ByLabelPrefix(el.tag, stem)),
			Type:     el.Type,
			Text:     el.Text,
			Label:    el.Label,
			Count:    f.count,
		})
	}
	return out
}

func extractNavigation(doc *goquery.Document) []NavItem {
	var items []NavItem
	seen := make(map[string]bool)

	doc.Find(`nav a[href], header a[href], [role="navigation"] a[href], nav button, [role="tablist"] [role="tab"]`).Each(func(_ int, s *goquery.Selection) {
		if !browser.Rendered(s.Get(0)) {
			return
		}
		href := s.AttrOr("href", "")
		if href == "#" || strings.HasPrefix(href, "javascript:") {
			return
		}
		key := flow(suggest(s))
		if seen[key] {
			return
		}
		seen[key] = true
		items = append(items, NavItem{
			Selector: key,
			Text:     truncate(collapse(s.Text())),
			Href:     href,
		})
	})
	return items
}

// flow renders sel in the YAML flow form scenario files accept.
func flow(sel selector.Selector) string {
	var n yaml.Node
	if err := n.Encode(sel); err != nil {
		return sel.String()
	}
	n.Style = yaml.FlowStyle
	out, err := yaml.Marshal(&n)
	if err != nil {
		return sel.String()
	}
	return strings.TrimSpace(string(out))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxText {
		return s
	}
	return string([]rune(s)[:maxText])
}
