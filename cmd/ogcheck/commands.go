package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/devtools/a11y"
	"github.com/openground/backend/internal/devtools/buttons"
	"github.com/openground/backend/internal/devtools/i18n"
	"github.com/openground/backend/internal/devtools/scan"
)

var writeFixes bool

var buttonsCmd = &cobra.Command{
	Use:   "buttons [dir]",
	Short: "Report legacy and unknown Button variants and raw styled buttons",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChecks(cmd, args, checkButtons)
	},
}

var i18nCmd = &cobra.Command{
	Use:   "i18n [dir]",
	Short: "Report hardcoded user-visible strings and missing locale keys",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChecks(cmd, args, checkI18n)
	},
}

var a11yCmd = &cobra.Command{
	Use:   "a11y [dir]",
	Short: "Report accessibility problems in HTML and JSX markup",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChecks(cmd, args, checkA11y)
	},
}

var allCmd = &cobra.Command{
	Use:   "all [dir]",
	Short: "Run every check",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChecks(cmd, args, checkButtons, checkI18n, checkA11y)
	},
}

type check int

const (
	checkButtons check = iota
	checkI18n
	checkA11y
)

func runChecks(cmd *cobra.Command, args []string, checks ...check) error {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	if info, err := os.Stat(root); err != nil {
		return err
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	cfg, err := scan.LoadConfig(root)
	if err != nil {
		return err
	}

	var (
		checkers []scan.Checker
		locales  bool
	)
	for _, c := range checks {
		switch c {
		case checkButtons:
			btn := buttons.New(cfg.Variants)
			if writeFixes {
				if err := applyButtonFixes(cmd.OutOrStdout(), root, cfg, btn); err != nil {
					return err
				}
			}
			checkers = append(checkers, btn)
		case checkI18n:
			checkers = append(checkers, i18n.New(cfg.I18n.Allowlist))
			locales = true
		case checkA11y:
			checkers = append(checkers, a11y.New())
		}
	}

	start := time.Now()
	findings, err := scan.Run(cmd.Context(), root, cfg, checkers...)
	if err != nil {
		return err
	}
	if locales {
		missing, err := i18n.CheckLocales(root, cfg.I18n)
		if err != nil {
			return err
		}
		findings = append(findings, missing...)
		scan.Sort(findings)
	}
	log.Debug("Scan finished",
		zap.String("root", root),
		zap.Int("checkers", len(checkers)),
		zap.Int("findings", len(findings)),
		zap.Duration("elapsed", time.Since(start)),
	)

	out := cmd.OutOrStdout()
	for _, f := range findings {
		fmt.Fprintln(out, f.String())
	}
	if len(findings) > 0 {
		fmt.Fprintf(out, "\n%d problem(s) found\n", len(findings))
		return errViolations
	}
	fmt.Fprintln(out, "No problems found")
	return nil
}

func applyButtonFixes(out io.Writer, root string, cfg scan.Config, btn *buttons.Checker) error {
	files, err := scan.Files(root, cfg)
	if err != nil {
		return err
	}
	for _, rel := range files {
		if !btn.Match(rel) {
			continue
		}
		path := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fixed, n := btn.Fix(content)
		if n == 0 {
			continue
		}
		if err := os.WriteFile(path, fixed, info.Mode().Perm()); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: rewrote %d variant(s)\n", rel, n)
	}
	return nil
}
