// Package config loads uiverify settings. Precedence, highest first:
// command-line flags, UIVERIFY_* environment variables (a .env file is
// loaded into the environment by the CLI), uiverify.toml, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "uiverify.toml"

// Duration is a time.Duration written as a Go duration string ("5s", "250ms").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Browser BrowserConfig `toml:"browser"`
	Runner  RunnerConfig  `toml:"runner"`
	Report  ReportConfig  `toml:"report"`
	AI      AIConfig      `toml:"ai"`
}

type BrowserConfig struct {
	Driver     string `toml:"driver"`
	Headless   bool   `toml:"headless"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	RemoteURL  string `toml:"remote_url"`
	ProfileDir string `toml:"profile_dir"`
}

type RunnerConfig struct {
	DefaultTimeout    Duration `toml:"default_timeout"`
	NavigationTimeout Duration `toml:"navigation_timeout"`
	PollInterval      Duration `toml:"poll_interval"`
	ArtifactsDir      string   `toml:"artifacts_dir"`
	SuccessScreenshot bool     `toml:"success_screenshot"`
	Parallel          int      `toml:"parallel"`
	// BaseURL overrides every scenario's base_url when set.
	BaseURL string `toml:"base_url"`
}

type ReportConfig struct {
	// MetricsFile receives run metrics in node-exporter textfile format.
	MetricsFile string `toml:"metrics_file"`
	// ReplayGIF writes an animated replay of each run's screenshots.
	ReplayGIF bool `toml:"replay_gif"`
}

type AIConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Browser: BrowserConfig{
			Driver:   "rod",
			Headless: true,
			Width:    1280,
			Height:   720,
		},
		Runner: RunnerConfig{
			DefaultTimeout:    Duration(10 * time.Second),
			NavigationTimeout: Duration(30 * time.Second),
			PollInterval:      Duration(100 * time.Millisecond),
			ArtifactsDir:      "verification",
			Parallel:          1,
		},
		AI: AIConfig{Provider: "claude"},
	}
}

// Load builds the configuration from defaults, the TOML file at path and the
// environment. A missing file is not an error unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.Browser.Driver = strings.ToLower(strings.TrimSpace(cfg.Browser.Driver))
	return cfg, cfg.Validate()
}

// applyEnv overlays UIVERIFY_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("UIVERIFY_DRIVER", &c.Browser.Driver)
	boolean("UIVERIFY_HEADLESS", &c.Browser.Headless)
	str("UIVERIFY_REMOTE_URL", &c.Browser.RemoteURL)
	str("UIVERIFY_PROFILE_DIR", &c.Browser.ProfileDir)
	str("UIVERIFY_BASE_URL", &c.Runner.BaseURL)
	duration("UIVERIFY_DEFAULT_TIMEOUT", &c.Runner.DefaultTimeout)
	duration("UIVERIFY_NAVIGATION_TIMEOUT", &c.Runner.NavigationTimeout)
	duration("UIVERIFY_POLL_INTERVAL", &c.Runner.PollInterval)
	str("UIVERIFY_ARTIFACTS_DIR", &c.Runner.ArtifactsDir)
	integer("UIVERIFY_PARALLEL", &c.Runner.Parallel)
	str("UIVERIFY_METRICS_FILE", &c.Report.MetricsFile)
	str("UIVERIFY_AI_PROVIDER", &c.AI.Provider)
	str("UIVERIFY_AI_MODEL", &c.AI.Model)

	return errors.Join(errs...)
}

// Validate rejects settings no run could use.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Browser.Driver)) {
	case "rod", "chromedp", "playwright", "static":
	default:
		return fmt.Errorf("browser.driver: unknown driver %q", c.Browser.Driver)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser: viewport must be positive, got %dx%d", c.Browser.Width, c.Browser.Height)
	}
	if c.Runner.DefaultTimeout <= 0 || c.Runner.NavigationTimeout <= 0 || c.Runner.PollInterval <= 0 {
		return fmt.Errorf("runner: timeouts and poll_interval must be positive")
	}
	if c.Runner.PollInterval > c.Runner.DefaultTimeout {
		return fmt.Errorf("runner: poll_interval %s exceeds default_timeout %s",
			c.Runner.PollInterval.Std(), c.Runner.DefaultTimeout.Std())
	}
	if c.Runner.Parallel < 1 {
		return fmt.Errorf("runner.parallel must be at least 1")
	}
	return nil
}
