// Package i18n reports user-visible strings that bypass the translation
// function and locale files missing keys of the base locale.
package i18n

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/openground/backend/internal/devtools/scan"
)

// Rule names
const (
	RuleHardcodedText      = "i18n-text"
	RuleHardcodedAttribute = "i18n-attribute"
	RuleMissingKey         = "i18n-missing-key"
)

// IgnoreMarker on a line suppresses its findings
const IgnoreMarker = "i18n-ignore"

// literal user-visible attributes, matched inside a tag's source
var textAttr = regexp.MustCompile(`(?:^|\s)(placeholder|title|alt|aria-label|label)=["']([^"']*)["']`)

// Checker finds hardcoded strings in JSX
type Checker struct {
	allow map[string]struct{}
}

// New creates a checker. Allowlisted strings are compared case-insensitively.
func New(allowlist []string) *Checker {
	allow := make(map[string]struct{}, len(allowlist))
	for _, s := range allowlist {
		allow[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return &Checker{allow: allow}
}

func (c *Checker) Name() string { return "i18n" }

func (c *Checker) Match(path string) bool { return scan.HasExt(path, ".tsx", ".jsx") }

// Check scans the whole file, so text nodes and tags may span lines
func (c *Checker) Check(path string, content []byte) ([]scan.Finding, error) {
	ignored := ignoredLines(content)
	s := &jsxScanner{src: content}
	s.run()

	var findings []scan.Finding
	report := func(offset int, rule, msg string) {
		line := scan.LineAt(content, offset)
		if ignored[line] {
			return
		}
		findings = append(findings, scan.Finding{Path: path, Line: line, Rule: rule, Message: msg})
	}

	for _, sp := range s.texts {
		raw := string(content[sp.start:sp.end])
		text := strings.Join(strings.Fields(raw), " ")
		if !c.reportable(text) {
			continue
		}
		lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
		report(sp.start+lead, RuleHardcodedText, fmt.Sprintf("hardcoded text %q, use t()", text))
	}
	for _, sp := range s.tags {
		tag := content[sp.start:sp.end]
		for _, m := range textAttr.FindAllSubmatchIndex(tag, -1) {
			text := strings.TrimSpace(string(tag[m[4]:m[5]]))
			if !c.reportable(text) {
				continue
			}
			report(sp.start+m[2], RuleHardcodedAttribute,
				fmt.Sprintf("hardcoded %s %q, use t()", tag[m[2]:m[3]], text))
		}
	}
	scan.Sort(findings)
	return findings, nil
}

// ignoredLines returns the 1-based lines carrying IgnoreMarker
func ignoredLines(content []byte) map[int]bool {
	out := map[int]bool{}
	for i, line := range bytes.Split(content, []byte{'\n'}) {
		if bytes.Contains(line, []byte(IgnoreMarker)) {
			out[i+1] = true
		}
	}
	return out
}

func (c *Checker) reportable(text string) bool {
	if !strings.ContainsFunc(text, unicode.IsLetter) {
		return false
	}
	_, allowed := c.allow[strings.ToLower(text)]
	return !allowed
}

// CheckLocales compares every locale file in dir with the base locale and
// reports keys missing from the others. Nested keys are flattened with
// dots. A missing directory yields no findings.
func CheckLocales(root string, cfg scan.I18nConfig) ([]scan.Finding, error) {
	dir := filepath.Join(root, cfg.LocalesDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	baseName := cfg.BaseLocale + ".json"
	locales := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		keys, err := loadKeys(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		locales[e.Name()] = keys
	}
	base, ok := locales[baseName]
	if !ok {
		return nil, fmt.Errorf("base locale %s not found in %s", baseName, dir)
	}

	var findings []scan.Finding
	rel := filepath.ToSlash(cfg.LocalesDir)
	for name, keys := range locales {
		if name == baseName {
			continue
		}
		for _, key := range base {
			if _, found := slices.BinarySearch(keys, key); found {
				continue
			}
			findings = append(findings, scan.Finding{
				Path:    rel + "/" + name,
				Line:    1,
				Rule:    RuleMissingKey,
				Message: fmt.Sprintf("missing key %q (present in %s)", key, baseName),
			})
		}
	}
	scan.Sort(findings)
	return findings, nil
}

// loadKeys returns the sorted flattened keys of a locale file
func loadKeys(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var keys []string
	flatten("", tree, &keys)
	slices.Sort(keys)
	return keys, nil
}

func flatten(prefix string, tree map[string]any, keys *[]string) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, keys)
			continue
		}
		*keys = append(*keys, key)
	}
}
