// Package scan walks a front-end source tree and runs file checkers over it
// concurrently. It is shared by the button, i18n and accessibility checkers.
package scan

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// ConfigFile is read from the scanned root when present
const ConfigFile = ".ogcheck.yaml"

// Config tunes the checkers
type Config struct {
	// Extensions limits which files are read at all
	Extensions []string `yaml:"extensions"`
	// Exclude lists directory names skipped anywhere in the tree
	Exclude []string   `yaml:"exclude"`
	I18n    I18nConfig `yaml:"i18n"`
	// Variants adds legacy to standard button variant mappings
	Variants map[string]string `yaml:"variants"`
}

// I18nConfig configures the hardcoded string and locale parity checks
type I18nConfig struct {
	Allowlist  []string `yaml:"allowlist"`
	LocalesDir string   `yaml:"locales_dir"`
	BaseLocale string   `yaml:"base_locale"`
}

// DefaultConfig is used for every field the config file leaves empty
func DefaultConfig() Config {
	return Config{
		Extensions: []string{".tsx", ".jsx", ".html", ".htm"},
		Exclude:    []string{"node_modules", ".next", "dist", "build", ".git"},
		I18n: I18nConfig{
			LocalesDir: "messages",
			BaseLocale: "en",
		},
	}
}

// LoadConfig reads root/.ogcheck.yaml over the defaults. A missing file is
// not an error.
func LoadConfig(root string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	if len(file.Extensions) > 0 {
		cfg.Extensions = file.Extensions
	}
	cfg.Exclude = append(cfg.Exclude, file.Exclude...)
	cfg.I18n.Allowlist = file.I18n.Allowlist
	if file.I18n.LocalesDir != "" {
		cfg.I18n.LocalesDir = file.I18n.LocalesDir
	}
	if file.I18n.BaseLocale != "" {
		cfg.I18n.BaseLocale = file.I18n.BaseLocale
	}
	cfg.Variants = file.Variants
	return cfg, nil
}

// Finding is one reported problem
type Finding struct {
	Path    string
	Line    int
	Rule    string
	Message string
	// Fixable findings can be rewritten automatically
	Fixable bool
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d: [%s] %s", f.Path, f.Line, f.Rule, f.Message)
}

// Checker inspects single files
type Checker interface {
	Name() string
	Match(path string) bool
	Check(path string, content []byte) ([]Finding, error)
}

// Files lists the files under root with one of cfg.Extensions, skipping
// excluded directories. Paths are relative to root, slash separated and
// sorted.
func Files(root string, cfg Config) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && slices.Contains(cfg.Exclude, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(cfg.Extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Run checks every file under root with the checkers matching it. Files are
// read and checked by a bounded pool of goroutines; the result is sorted by
// path, line and rule.
func Run(ctx context.Context, root string, cfg Config, checkers ...Checker) ([]Finding, error) {
	files, err := Files(root, cfg)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		findings []Finding
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, rel := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var matched []Checker
			for _, c := range checkers {
				if c.Match(rel) {
					matched = append(matched, c)
				}
			}
			if len(matched) == 0 {
				return nil
			}
			content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			for _, c := range matched {
				found, err := c.Check(rel, content)
				if err != nil {
					return fmt.Errorf("%s: %s: %w", c.Name(), rel, err)
				}
				mu.Lock()
				findings = append(findings, found...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	Sort(findings)
	return findings, nil
}

// Sort orders findings by path, line and rule
func Sort(findings []Finding) {
	slices.SortStableFunc(findings, func(a, b Finding) int {
		return cmp.Or(
			cmp.Compare(a.Path, b.Path),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Rule, b.Rule),
		)
	})
}

// LineAt returns the 1-based line of a byte offset
func LineAt(content []byte, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return bytes.Count(content[:offset], []byte{'\n'}) + 1
}

// HasExt reports whether path ends in one of exts
func HasExt(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(exts, ext)
}
