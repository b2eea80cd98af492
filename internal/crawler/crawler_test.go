package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/v0xg/uiverify/internal/browser"
	"github.com/v0xg/uiverify/internal/selector"
)

func lotteryPage() string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Loterias &amp; IA</title></head><body><div id="__next">`)
	b.WriteString(`<nav><button>Início</button><button>Meus Jogos</button><a href="#">Topo</a></nav>`)
	b.WriteString(`<select aria-label="Selecione a loteria"><option>Mega-Sena</option></select>`)
	for i := 1; i <= 60; i++ {
		fmt.Fprintf(&b, `<button type="button" aria-label="Selecionar número %02d">%02d</button>`, i, i)
	}
	b.WriteString(`<button id="save">Salvar</button>`)
	b.WriteString(`<input name="apelido" placeholder="Apelido do jogo">`)
	b.WriteString(`<input type="hidden" name="csrf">`)
	b.WriteString(`<div hidden><button>Fantasma</button></div>`)
	b.WriteString(`<ul><li><a href="/regras"><span>Regras</span></a></li></ul>`)
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func find(t *testing.T, pm *PageMap, sel string) Element {
	t.Helper()
	for _, el := range pm.Elements {
		if el.Selector == sel {
			return el
		}
	}
	t.Fatalf("no element with selector %s in %+v", sel, pm.Elements)
	return Element{}
}

func TestAnalyze(t *testing.T) {
	pm, err := Analyze("http://localhost:3000/", lotteryPage())
	require.NoError(t, err)

	assert.Equal(t, "Loterias & IA", pm.Title)
	assert.True(t, pm.IsSPA)

	save := find(t, pm, "{css: '#save'}")
	assert.Equal(t, "button", save.Type)
	assert.Equal(t, "Salvar", save.Text)

	nick := find(t, pm, "{attr: name, tag: input, value: apelido}")
	assert.Equal(t, "text", nick.Type)
	assert.Equal(t, "Apelido do jogo", nick.Placeholder)

	// The link's text lives in a child span, so only a structural path reaches it.
	rules := find(t, pm, "{css: '#__next > ul:nth-of-type(1) > li:nth-of-type(1) > a:nth-of-type(1)'}")
	assert.Equal(t, "link", rules.Type)
	assert.Equal(t, "Regras", rules.Text)

	for _, el := range pm.Elements {
		assert.NotEqual(t, "Fantasma", el.Text, "hidden controls are skipped")
		assert.NotEqual(t, "csrf", el.Name)
		assert.NotEqual(t, "Topo", el.Text, "fragment links are skipped")
	}

	var navTexts []string
	for _, n := range pm.Navigation {
		navTexts = append(navTexts, n.Text)
	}
	assert.Equal(t, []string{"Início", "Meus Jogos"}, navTexts)
}

func TestAnalyzeGroupsNumberedLabels(t *testing.T) {
	pm, err := Analyze("http://localhost:3000/", lotteryPage())
	require.NoError(t, err)

	var grouped []Element
	for _, el := range pm.Elements {
		if el.Count > 0 {
			grouped = append(grouped, el)
		}
		assert.NotContains(t, el.Label, "número 02", "family members are folded")
	}
	require.Len(t, grouped, 1)
	assert.Equal(t, 60, grouped[0].Count)

	var sel selector.Selector
	require.NoError(t, yaml.Unmarshal([]byte(grouped[0].Selector), &sel))
	assert.Equal(t, selector.ByLabelPrefix("button", "Selecionar número"), sel)
}

func TestSuggestedSelectorsParse(t *testing.T) {
	pm, err := Analyze("http://localhost:3000/", lotteryPage())
	require.NoError(t, err)
	for _, el := range append(pm.Elements, Element{Selector: pm.Navigation[1].Selector}) {
		var sel selector.Selector
		assert.NoError(t, yaml.Unmarshal([]byte(el.Selector), &sel), el.Selector)
	}
	assert.Equal(t, "{tag: button, text: Meus Jogos}", pm.Navigation[1].Selector)
}

func TestCrawlWaitsForControls(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			fmt.Fprint(w, `<html><body><div id="root">Carregando...</div></body></html>`)
			return
		}
		fmt.Fprint(w, lotteryPage())
	}))
	t.Cleanup(srv.Close)

	// The static driver re-reads only on navigation, so reload through a
	// session that navigates on every Content call.
	launcher, err := browser.NewLauncher(browser.Options{Driver: browser.DriverStatic, HTTPClient: srv.Client()})
	require.NoError(t, err)
	sess, err := launcher.Open(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	pm, err := Crawl(context.Background(), reloading{Session: sess, url: srv.URL}, srv.URL, Options{
		Settle:       time.Second,
		PollInterval: time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pm.Elements)
	assert.GreaterOrEqual(t, hits.Load(), int32(3))
}

func TestCrawlGivesUpAfterSettle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Nada aqui</p></body></html>`)
	}))
	t.Cleanup(srv.Close)

	launcher, err := browser.NewLauncher(browser.Options{Driver: browser.DriverStatic, HTTPClient: srv.Client()})
	require.NoError(t, err)
	sess, err := launcher.Open(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	start := time.Now()
	pm, err := Crawl(context.Background(), sess, srv.URL, Options{Settle: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Empty(t, pm.Elements)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCrawlNavigationError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	launcher, err := browser.NewLauncher(browser.Options{Driver: browser.DriverStatic, HTTPClient: srv.Client()})
	require.NoError(t, err)
	sess, err := launcher.Open(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	_, err = Crawl(context.Background(), sess, srv.URL, Options{})
	assert.ErrorContains(t, err, "failed to load")
}

type reloading struct {
	browser.Session
	url string
}

func (r reloading) Content(ctx context.Context) (string, error) {
	if err := r.Session.Navigate(ctx, r.url); err != nil {
		return "", err
	}
	return r.Session.Content(ctx)
}
