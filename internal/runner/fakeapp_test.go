package runner

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	xhtml "golang.org/x/net/html"

	"github.com/v0xg/uiverify/internal/browser"
	"github.com/v0xg/uiverify/internal/selector"
)

// fakeApp is an in-memory stand-in for the lottery picker. It renders its
// state to HTML on every query so compiled CSS and XPath selectors resolve
// exactly as they would against markup, and it applies saves, picks and
// deletes a few queries late to exercise the polling waits.
type fakeApp struct {
	mu sync.Mutex

	// knobs
	delay             int
	strategyPicks     int
	cancelKeepsDialog bool
	deleteBroken      bool
	failScreenshot    bool
	onClick           func(label string)

	onGames    bool
	selected   map[int]bool
	games      []string
	confirming string
	nextID     int
	pending    []effect
	gen        int

	events      []string
	screenshots []string
	closes      int
}

type effect struct {
	after int
	apply func()
}

type fakeElement struct {
	node *xhtml.Node
	gen  int
}

func newFakeApp() *fakeApp {
	return &fakeApp{delay: 2, strategyPicks: 6, selected: make(map[int]bool)}
}

// appLauncher opens a fresh fakeApp per session.
type appLauncher struct {
	mu        sync.Mutex
	configure func(*fakeApp)
	apps      []*fakeApp
}

func (l *appLauncher) Open(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	app := newFakeApp()
	if l.configure != nil {
		l.configure(app)
	}
	l.mu.Lock()
	l.apps = append(l.apps, app)
	l.mu.Unlock()
	return app, nil
}

func (l *appLauncher) app(i int) *fakeApp {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.apps[i]
}

func (a *fakeApp) record(format string, args ...interface{}) {
	a.events = append(a.events, fmt.Sprintf(format, args...))
}

func (a *fakeApp) later(apply func()) {
	a.pending = append(a.pending, effect{after: a.delay, apply: apply})
}

func (a *fakeApp) tick() {
	var rest []effect
	for _, e := range a.pending {
		if e.after <= 0 {
			e.apply()
			continue
		}
		e.after--
		rest = append(rest, e)
	}
	a.pending = rest
}

func (a *fakeApp) Events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func (a *fakeApp) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if strings.Contains(url, "unreachable") {
		return errors.New("net::ERR_CONNECTION_REFUSED")
	}
	a.gen++
	a.onGames = false
	a.confirming = ""
	a.record("navigate %s", url)
	return nil
}

func (a *fakeApp) render() string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Loterias</title></head><body>`)
	b.WriteString(`<h1>Loterias &amp; IA</h1><nav><button type="button">Meus Jogos</button></nav>`)
	if a.onGames {
		b.WriteString(`<section><h2>Faça seu Jogo</h2>`)
		b.WriteString(`<select aria-label="Selecione a loteria"><option>Mega-Sena</option></select>`)
		fmt.Fprintf(&b, `<p class="counter">%d / 6</p><div class="grid">`, len(a.selected))
		for n := 1; n <= 60; n++ {
			fmt.Fprintf(&b, `<button type="button" aria-label="Selecionar número %02d" aria-pressed="%t">%02d</button>`,
				n, a.selected[n], n)
		}
		b.WriteString(`</div><button type="button">Surpresinha</button>`)
		b.WriteString(`<button type="button">Estratégia</button><button type="button">Salvar</button></section>`)

		b.WriteString(`<section class="games">`)
		for i := len(a.games) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, `<div class="game"><span>Jogo #%d</span><button type="button" aria-label="Remover jogo %s">x</button></div>`,
				i+1, html.EscapeString(a.games[i]))
		}
		b.WriteString(`</section>`)
	}
	if a.confirming != "" {
		fmt.Fprintf(&b, `<div role="dialog"><p>Tem certeza?</p>`+
			`<button type="button" aria-label="Confirmar exclusão do jogo %s">Excluir</button>`+
			`<button type="button" aria-label="Cancelar exclusão">Cancelar</button></div>`, a.confirming)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func (a *fakeApp) Query(ctx context.Context, q selector.Query) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tick()

	root, err := xhtml.Parse(strings.NewReader(a.render()))
	if err != nil {
		return nil, err
	}
	var nodes []*xhtml.Node
	if q.Dialect == selector.DialectXPath {
		nodes, err = htmlquery.QueryAll(root, q.Expr)
		if err != nil {
			return nil, err
		}
	} else {
		nodes = goquery.NewDocumentFromNode(root).Find(q.Expr).Nodes
	}
	out := make([]browser.Element, len(nodes))
	for i, n := range nodes {
		out[i] = fakeElement{node: n, gen: a.gen}
	}
	return out, nil
}

func (a *fakeApp) node(el browser.Element) (*xhtml.Node, error) {
	fe, ok := el.(fakeElement)
	if !ok {
		return nil, fmt.Errorf("foreign handle %T", el)
	}
	if fe.gen != a.gen {
		return nil, browser.ErrStaleElement
	}
	return fe.node, nil
}

func attrOf(n *xhtml.Node, name string) (string, bool) {
	for _, at := range n.Attr {
		if at.Key == name {
			return at.Val, true
		}
	}
	return "", false
}

func textOf(n *xhtml.Node) string {
	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func (a *fakeApp) Click(ctx context.Context, el browser.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	n, err := a.node(el)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	label, ok := attrOf(n, "aria-label")
	if !ok {
		label = textOf(n)
	}
	a.record("click %s", label)
	a.handle(label)
	hook := a.onClick
	a.mu.Unlock()

	if hook != nil {
		hook(label)
	}
	return nil
}

func (a *fakeApp) pick(count int) {
	a.selected = make(map[int]bool)
	for n := 7; n < 7+count; n++ {
		a.selected[n] = true
	}
}

func (a *fakeApp) handle(label string) {
	var num int
	var id string
	switch {
	case label == "Meus Jogos":
		a.onGames = true
	case fmtScan(label, "Selecionar número %d", &num):
		if a.selected[num] {
			delete(a.selected, num)
		} else {
			a.selected[num] = true
		}
	case label == "Salvar":
		if len(a.selected) == 6 {
			a.selected = make(map[int]bool)
			a.nextID++
			gameID := fmt.Sprintf("%04x", 0x7f3a+a.nextID)
			a.later(func() { a.games = append(a.games, gameID) })
		}
	case label == "Surpresinha":
		a.later(func() { a.pick(6) })
	case label == "Estratégia":
		picks := a.strategyPicks
		a.later(func() { a.pick(picks) })
	case strings.HasPrefix(label, "Remover jogo "):
		a.confirming = strings.TrimPrefix(label, "Remover jogo ")
	case label == "Cancelar exclusão":
		if !a.cancelKeepsDialog {
			a.confirming = ""
		}
	case fmtScan(label, "Confirmar exclusão do jogo %s", &id):
		a.confirming = ""
		if !a.deleteBroken {
			a.later(func() { a.games = remove(a.games, id) })
		}
	}
}

func fmtScan(s, format string, arg interface{}) bool {
	n, err := fmt.Sscanf(s, format, arg)
	return err == nil && n == 1
}

func remove(list []string, v string) []string {
	var out []string
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func (a *fakeApp) Attribute(ctx context.Context, el browser.Element, name string) (*string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.node(el)
	if err != nil {
		return nil, err
	}
	if v, ok := attrOf(n, name); ok {
		return &v, nil
	}
	return nil, nil
}

func (a *fakeApp) Visible(ctx context.Context, el browser.Element) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.node(el)
	if err != nil {
		return false, err
	}
	for p := n; p != nil; p = p.Parent {
		if _, hidden := attrOf(p, "hidden"); hidden || p.Data == "head" {
			return false, nil
		}
	}
	return true, nil
}

func (a *fakeApp) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failScreenshot {
		return errors.New("disk full")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("\x89PNG"), 0o644); err != nil {
		return err
	}
	a.screenshots = append(a.screenshots, filepath.Base(path))
	return nil
}

func (a *fakeApp) Content(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.render(), nil
}

func (a *fakeApp) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	return nil
}

func (a *fakeApp) Games() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := append([]string(nil), a.games...)
	sort.Strings(out)
	return out
}
