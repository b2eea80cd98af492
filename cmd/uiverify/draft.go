package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/v0xg/uiverify/internal/ai"
	"github.com/v0xg/uiverify/internal/crawler"
)

var (
	provider  string
	model     string
	draftOut  string
	attempts  int
	settleFor = crawler.DefaultSettle
)

func newDraftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft <url> <prompt>",
		Short: "Draft a scenario for a page with an LLM",
		Long: `draft loads the page, lists its interactive controls and asks an LLM to
write a scenario for the prompt. The draft is checked by the scenario loader
before it is written; review it before committing.

Example:
  uiverify draft http://localhost:3000 "save a game with numbers 1 to 6 and check it is listed" -o scenarios/save.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: draft,
	}
	f := cmd.Flags()
	f.StringVar(&provider, "provider", "", "AI provider: claude, openai (default: from config or claude)")
	f.StringVar(&model, "model", "", "Specific model override")
	f.StringVarP(&draftOut, "output", "o", "", "Write the scenario here instead of stdout")
	f.IntVar(&attempts, "attempts", ai.DefaultAttempts, "Draft and revise round trips before giving up")
	f.DurationVar(&settleFor, "settle", crawler.DefaultSettle, "How long to wait for controls to render")
	return cmd
}

func draft(cmd *cobra.Command, args []string) error {
	url, prompt := args[0], args[1]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("provider") {
		cfg.AI.Provider = provider
	}
	if cmd.Flags().Changed("model") {
		cfg.AI.Model = model
	}

	logger := newLogger()
	defer logger.Sync()

	// Progress goes to stderr when the scenario itself is printed to stdout.
	progress := cmd.OutOrStdout()
	if draftOut == "" {
		progress = cmd.ErrOrStderr()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	aiProvider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Model)
	if err != nil {
		return fmt.Errorf("AI provider init failed: %w", err)
	}

	launcher, err := newLauncher(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(progress, "→ Crawling %s... ", url)
	sess, err := launcher.Open(ctx)
	if err != nil {
		fmt.Fprintln(progress, "failed")
		return fmt.Errorf("browser open failed: %w", err)
	}
	defer sess.Close()

	pageMap, err := crawler.Crawl(ctx, sess, url, crawler.Options{Settle: settleFor, Logger: logger})
	if err != nil {
		fmt.Fprintln(progress, "failed")
		return fmt.Errorf("crawl failed: %w", err)
	}
	fmt.Fprintf(progress, "done (found %d interactive elements)\n", len(pageMap.Elements))

	fmt.Fprintf(progress, "→ Drafting scenario via %s... ", cfg.AI.Provider)
	s, doc, err := ai.Draft(ctx, aiProvider, pageMap, prompt, attempts)
	if err != nil {
		fmt.Fprintln(progress, "failed")
		if doc != "" {
			logger.Sugar().Debugf("last draft:\n%s", doc)
		}
		return fmt.Errorf("draft failed: %w", err)
	}
	fmt.Fprintf(progress, "done (%s, %d steps)\n", s.Name, len(s.Steps))
	for _, w := range s.Warnings() {
		fmt.Fprintf(progress, "  warning: %s\n", w)
	}

	if draftOut == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), doc)
		return err
	}
	if err := os.WriteFile(draftOut, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	fmt.Fprintf(progress, "✓ Saved to %s\n", draftOut)
	return nil
}
