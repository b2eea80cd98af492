package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/v0xg/uiverify/internal/scenario"
	"github.com/v0xg/uiverify/scenarios"
)

// loadScenarios reads the given files and directories, or the built-in
// scenarios when there are none, keeping only names when it is non-empty.
func loadScenarios(paths, names []string) ([]*scenario.Scenario, error) {
	var all []*scenario.Scenario
	if len(paths) == 0 {
		builtin, err := scenario.LoadFS(scenarios.FS, ".")
		if err != nil {
			return nil, fmt.Errorf("built-in scenarios: %w", err)
		}
		all = builtin
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			found, err := scenario.LoadFS(os.DirFS(p), ".")
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			all = append(all, found...)
			continue
		}
		s, err := scenario.Load(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		all = append(all, s)
	}

	seen := make(map[string]bool)
	for _, s := range all {
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate scenario name %q", s.Name)
		}
		seen[s.Name] = true
	}

	if len(names) == 0 {
		if len(all) == 0 {
			return nil, fmt.Errorf("no scenarios found")
		}
		return all, nil
	}
	var picked []*scenario.Scenario
	for _, n := range names {
		if !seen[n] {
			return nil, fmt.Errorf("no scenario named %q", n)
		}
	}
	for _, s := range all {
		if slices.Contains(names, s.Name) {
			picked = append(picked, s)
		}
	}
	return picked, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [scenario.yaml]...",
		Short: "Check scenario files without starting a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			report := func(label string, s *scenario.Scenario, err error) {
				if err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s\n    %v\n", label, err)
					return
				}
				fmt.Fprintf(out, "✓ %s (%d steps)\n", s.Name, len(s.Steps))
				for _, w := range s.Warnings() {
					fmt.Fprintf(out, "    warning: %s\n", w)
				}
			}

			if len(args) == 0 {
				all, err := scenario.LoadFS(scenarios.FS, ".")
				if err != nil {
					report("built-in scenarios", nil, err)
				}
				for _, s := range all {
					report(s.Name, s, nil)
				}
			}
			for _, p := range args {
				s, err := scenario.Load(p)
				report(p, s, err)
			}

			if failed > 0 {
				return fmt.Errorf("%d invalid scenario file(s)", failed)
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := scenario.LoadFS(scenarios.FS, ".")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range all {
				fmt.Fprintf(out, "%-22s %2d steps  %s\n", s.Name, len(s.Steps), strings.TrimSpace(s.Description))
			}
			return nil
		},
	}
}
