// Package runner executes scenarios against a browser session: one session
// per run, steps strictly in order, fail-fast, with a failure screenshot on
// the first failing step and teardown on every path.
package runner

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/v0xg/uiverify/internal/browser"
	"github.com/v0xg/uiverify/internal/scenario"
)

// Options configures execution behavior
type Options struct {
	// DefaultTimeout applies to wait steps that omit their own.
	DefaultTimeout time.Duration
	// NavigationTimeout bounds every page load.
	NavigationTimeout time.Duration
	// ActionTimeout bounds point operations: query, click, attribute reads, content.
	ActionTimeout time.Duration
	PollInterval  time.Duration
	// ArtifactTimeout bounds the failure screenshot, which runs even after cancellation.
	ArtifactTimeout time.Duration
	ArtifactsDir    string
	// SuccessScreenshot captures passed.png for every scenario, not only those asking for it.
	SuccessScreenshot bool
	Logger            *zap.Logger
	Observer          Observer
}

// Observer receives progress events. Calls for one run are sequential;
// RunAll may call it from several goroutines.
type Observer interface {
	ScenarioStarted(name string, steps int)
	StepStarted(name string, index int, step scenario.Step)
	StepFinished(name string, rec StepRecord)
	ScenarioFinished(res Result)
}

type nopObserver struct{}

func (nopObserver) ScenarioStarted(string, int)             {}
func (nopObserver) StepStarted(string, int, scenario.Step) {}
func (nopObserver) StepFinished(string, StepRecord)        {}
func (nopObserver) ScenarioFinished(Result)                {}

// Default option values.
const (
	DefaultTimeout           = 10 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	DefaultActionTimeout     = 5 * time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultArtifactTimeout   = 10 * time.Second
	DefaultArtifactsDir      = "verification"
)

func (o Options) withDefaults() Options {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = DefaultActionTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ArtifactTimeout <= 0 {
		o.ArtifactTimeout = DefaultArtifactTimeout
	}
	if o.ArtifactsDir == "" {
		o.ArtifactsDir = DefaultArtifactsDir
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// Runner executes scenarios. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	launcher browser.Launcher
	opts     Options
	logger   *zap.Logger
}

// New creates a runner that opens sessions through launcher.
func New(launcher browser.Launcher, opts Options) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		launcher: launcher,
		opts:     opts,
		logger:   opts.Logger.Named("runner"),
	}
}

// Run executes s against a freshly opened session and returns exactly one Result.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (res Result) {
	res = Result{
		runID:      uuid.NewString(),
		scenario:   s.Name,
		status:     StatusFailed,
		failedStep: -1,
		started:    time.Now(),
	}
	logger := r.logger.With(zap.String("scenario", s.Name), zap.String("run_id", res.runID))
	obs := r.opts.Observer

	obs.ScenarioStarted(s.Name, len(s.Steps))
	defer func() {
		res.duration = time.Since(res.started)
		logger.Info("scenario finished",
			zap.String("status", string(res.status)),
			zap.Duration("duration", res.duration),
			zap.Error(res.err))
		obs.ScenarioFinished(res)
	}()

	if err := s.Validate(); err != nil {
		res.err = &ScenarioError{Name: s.Name, Err: err}
		return res
	}

	dir := filepath.Join(r.opts.ArtifactsDir, s.Name)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to clear previous artifacts", zap.String("dir", dir), zap.Error(err))
	}

	sess, err := r.launcher.Open(ctx)
	if err != nil {
		res.err = &SessionError{Err: err}
		return res
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close session", zap.Error(err))
		}
	}()

	ex := &execution{
		opts:    r.opts,
		sess:    sess,
		baseURL: s.BaseURL,
		dir:     dir,
		values:  make(map[string]string),
		logger:  logger,
	}

	for i, step := range s.Steps {
		obs.StepStarted(s.Name, i, step)
		start := time.Now()

		err := ctx.Err()
		if err == nil {
			err = ex.run(ctx, step)
		}

		rec := StepRecord{
			Index:    i,
			Kind:     step.Kind(),
			Target:   step.Target(),
			Duration: time.Since(start),
			Err:      err,
		}
		res.steps = append(res.steps, rec)
		obs.StepFinished(s.Name, rec)

		if err != nil {
			res.failedStep = i
			res.err = &StepError{Index: i, Step: step, Err: err}
			logger.Debug("step failed", zap.Int("step", i), zap.String("kind", step.Kind()), zap.Error(err))

			// Capture even when ctx was cancelled; the artifact is the point.
			shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ArtifactTimeout)
			res.failureArtifact = ex.capture(shotCtx, "failure.png")
			cancel()
			res.artifacts = ex.artifacts
			res.captures = ex.captures
			return res
		}
		logger.Debug("step passed", zap.Int("step", i), zap.String("kind", step.Kind()))
	}

	if s.SuccessScreenshot || r.opts.SuccessScreenshot {
		shotCtx, cancel := context.WithTimeout(ctx, r.opts.ArtifactTimeout)
		ex.capture(shotCtx, "passed.png")
		cancel()
	}

	res.status = StatusPassed
	res.artifacts = ex.artifacts
	res.captures = ex.captures
	return res
}

// RunAll runs independent scenarios, at most parallel at a time, each with
// its own session. Results keep the order of scenarios.
func (r *Runner) RunAll(ctx context.Context, scenarios []*scenario.Scenario, parallel int) []Result {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]Result, len(scenarios))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, s := range scenarios {
		g.Go(func() error {
			results[i] = r.Run(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
