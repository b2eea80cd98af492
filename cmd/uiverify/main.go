package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/uiverify/internal/browser"
	"github.com/v0xg/uiverify/internal/config"
	"github.com/v0xg/uiverify/internal/logging"
)

var (
	configPath string
	verbose    bool
	driver     string
	headless   bool
	width      int
	height     int
	remoteURL  string
	profile    string
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "uiverify",
		Short: "Run scripted UI verification scenarios against a web app",
		Long: `uiverify drives a browser through YAML scenarios: navigate, wait for
elements, click, assert, capture values and take screenshots. The first
failing step stops the run and leaves a failure screenshot behind.

Example:
  uiverify run                      # every built-in scenario
  uiverify run -s delete_flow       # one built-in scenario
  uiverify run ./checks/*.yaml --base-url http://staging:3000`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	pf.StringVar(&driver, "driver", "", "Browser driver: rod, chromedp, playwright, static")
	pf.BoolVar(&headless, "headless", true, "Run the browser without a window")
	pf.IntVar(&width, "width", 0, "Viewport width")
	pf.IntVar(&height, "height", 0, "Viewport height")
	pf.StringVar(&remoteURL, "remote-url", "", "Attach to a running browser at this DevTools URL")
	pf.StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")

	rootCmd.AddCommand(newRunCmd(), newValidateCmd(), newListCmd(), newDraftCmd())
	return rootCmd
}

// loadConfig reads the config file and environment, then applies the flags
// the user actually set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Browser.Driver = driver
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = headless
	}
	if flags.Changed("width") {
		cfg.Browser.Width = width
	}
	if flags.Changed("height") {
		cfg.Browser.Height = height
	}
	if flags.Changed("remote-url") {
		cfg.Browser.RemoteURL = remoteURL
	}
	if flags.Changed("profile") {
		cfg.Browser.ProfileDir = profile
	}
	return cfg, cfg.Validate()
}

func newLauncher(cfg config.Config, logger *zap.Logger) (browser.Launcher, error) {
	l, err := browser.NewLauncher(browser.Options{
		Driver:     cfg.Browser.Driver,
		Headless:   cfg.Browser.Headless,
		Width:      cfg.Browser.Width,
		Height:     cfg.Browser.Height,
		RemoteURL:  cfg.Browser.RemoteURL,
		ProfileDir: cfg.Browser.ProfileDir,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}
	return l, nil
}

func newLogger() *zap.Logger {
	return logging.New(verbose)
}
