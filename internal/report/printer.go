// Package report turns runner events into the human-readable progress trace,
// the end-of-run summary and prometheus textfile metrics.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/v0xg/uiverify/internal/runner"
	"github.com/v0xg/uiverify/internal/scenario"
)

// Printer writes the progress trace. It is safe for concurrent scenarios;
// each line is written whole, and with several scenarios in flight lines
// are prefixed with the scenario name.
type Printer struct {
	mu       sync.Mutex
	out      io.Writer
	prefixed bool
	totals   map[string]int

	passStyle lipgloss.Style
	failStyle lipgloss.Style
	dimStyle  lipgloss.Style
}

// NewPrinter creates a printer. Colors are only emitted when out is a terminal.
func NewPrinter(out io.Writer, prefixed bool) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:       out,
		prefixed:  prefixed,
		totals:    make(map[string]int),
		passStyle: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),
		failStyle: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).Bold(true),
		dimStyle:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
	}
}

func (p *Printer) printf(name, format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if p.prefixed && name != "" {
		line = p.dimStyle.Render("["+name+"]") + " " + line
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *Printer) ScenarioStarted(name string, steps int) {
	p.mu.Lock()
	p.totals[name] = steps
	p.mu.Unlock()
	p.printf(name, "→ Running %s (%d steps)", name, steps)
}

func (p *Printer) StepStarted(string, int, scenario.Step) {}

func (p *Printer) StepFinished(name string, rec runner.StepRecord) {
	p.mu.Lock()
	total := p.totals[name]
	p.mu.Unlock()

	line := fmt.Sprintf("  [%d/%d] %s %s", rec.Index+1, total, rec.Kind, rec.Target)
	if rec.Err != nil {
		p.printf(name, "%s %s", line, p.failStyle.Render("✗"))
		return
	}
	p.printf(name, "%s %s", line, p.passStyle.Render("✓"))
}

func (p *Printer) ScenarioFinished(res runner.Result) {
	name := res.Scenario()
	if res.Passed() {
		p.printf(name, "%s %s passed %s", p.passStyle.Render("✓"), name, p.dimStyle.Render("("+round(res.Duration())+")"))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", p.failStyle.Render("✗"), name)
	if i := res.FailedStep(); i >= 0 {
		fmt.Fprintf(&b, " at step %d", i+1)
	}
	fmt.Fprintf(&b, " %s", p.dimStyle.Render("("+round(res.Duration())+")"))
	p.printf(name, "%s", b.String())

	for _, l := range strings.Split(res.Err().Error(), "\n") {
		p.printf(name, "    %s", l)
	}
	if path := res.FailureArtifact(); path != "" {
		p.printf(name, "    failure screenshot: %s", path)
	} else {
		p.printf(name, "    failure screenshot: unavailable")
	}
}

// Summary prints one line per scenario and the totals.
func (p *Printer) Summary(results []runner.Result) {
	passed, failed := 0, 0
	p.printf("", "")
	for _, res := range results {
		if res.Passed() {
			passed++
			p.printf("", "  %s %s", p.passStyle.Render("✓"), res.Scenario())
			continue
		}
		failed++
		p.printf("", "  %s %s", p.failStyle.Render("✗"), res.Scenario())
	}
	p.printf("", "%d passed, %d failed", passed, failed)
}

func round(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
