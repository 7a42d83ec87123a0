// Package buttons checks that UI buttons use the design system's Button
// component with a standard variant, and rewrites legacy variant names.
package buttons

import (
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/openground/backend/internal/devtools/scan"
)

// Rule names
const (
	RuleLegacyVariant  = "button-variant"
	RuleUnknownVariant = "button-unknown-variant"
	RuleRawButton      = "raw-button"
)

// StandardVariants are the variants the Button component accepts
var StandardVariants = []string{"default", "destructive", "outline", "secondary", "ghost", "link"}

// LegacyVariants maps variant names of the old component library to the
// standard ones
var LegacyVariants = map[string]string{
	"primary":  "default",
	"danger":   "destructive",
	"error":    "destructive",
	"light":    "outline",
	"bordered": "outline",
	"text":     "ghost",
	"subtle":   "ghost",
	"dark":     "secondary",
}

var (
	buttonOpen = regexp.MustCompile(`<Button\b`)
	rawButton  = regexp.MustCompile(`<button\b`)
	// variant="x", variant='x', variant={"x"}; not data-variant
	variantAttr = regexp.MustCompile(`(?:^|\s)variant=(?:\{\s*)?["']([^"']*)["']`)
	btnClass    = regexp.MustCompile(`(?:^|\s)class(?:Name)?=(?:\{\s*)?["'][^"']*\bbtn\b`)
)

// Checker finds legacy and unknown Button variants and raw styled buttons
type Checker struct {
	variants map[string]string
}

// New creates a checker. extra adds or overrides legacy mappings.
func New(extra map[string]string) *Checker {
	variants := maps.Clone(LegacyVariants)
	maps.Copy(variants, extra)
	return &Checker{variants: variants}
}

func (c *Checker) Name() string { return "buttons" }

func (c *Checker) Match(path string) bool { return scan.HasExt(path, ".tsx", ".jsx") }

type variantUse struct {
	start, end int // of the variant value
	value      string
}

func (c *Checker) Check(path string, content []byte) ([]scan.Finding, error) {
	var findings []scan.Finding
	for _, use := range variants(content) {
		switch {
		case slices.Contains(StandardVariants, use.value):
		case c.variants[use.value] != "":
			findings = append(findings, scan.Finding{
				Path:    path,
				Line:    scan.LineAt(content, use.start),
				Rule:    RuleLegacyVariant,
				Message: fmt.Sprintf("legacy variant %q, use %q", use.value, c.variants[use.value]),
				Fixable: true,
			})
		default:
			findings = append(findings, scan.Finding{
				Path:    path,
				Line:    scan.LineAt(content, use.start),
				Rule:    RuleUnknownVariant,
				Message: fmt.Sprintf("unknown variant %q, expected one of %v", use.value, StandardVariants),
			})
		}
	}

	for _, loc := range rawButton.FindAllIndex(content, -1) {
		tag := content[loc[0]:tagEnd(content, loc[0])]
		if btnClass.Match(tag) {
			findings = append(findings, scan.Finding{
				Path:    path,
				Line:    scan.LineAt(content, loc[0]),
				Rule:    RuleRawButton,
				Message: `raw <button> styled with "btn" classes, use <Button>`,
			})
		}
	}
	return findings, nil
}

// Fix rewrites legacy variants and returns the new content and the number
// of replacements
func (c *Checker) Fix(content []byte) ([]byte, int) {
	uses := variants(content)
	out := make([]byte, 0, len(content))
	last, n := 0, 0
	for _, use := range uses {
		repl, ok := c.variants[use.value]
		if !ok || slices.Contains(StandardVariants, use.value) {
			continue
		}
		out = append(out, content[last:use.start]...)
		out = append(out, repl...)
		last = use.end
		n++
	}
	out = append(out, content[last:]...)
	return out, n
}

// variants returns the variant attribute values of every <Button> tag
func variants(content []byte) []variantUse {
	var uses []variantUse
	for _, loc := range buttonOpen.FindAllIndex(content, -1) {
		end := tagEnd(content, loc[0])
		m := variantAttr.FindSubmatchIndex(content[loc[0]:end])
		if m == nil {
			continue
		}
		start, stop := loc[0]+m[2], loc[0]+m[3]
		uses = append(uses, variantUse{start: start, end: stop, value: string(content[start:stop])})
	}
	return uses
}

// tagEnd returns the offset just past the '>' closing the tag opened at
// start. Braces and quotes are tracked so arrow functions in attribute
// expressions do not end the tag.
func tagEnd(content []byte, start int) int {
	depth := 0
	var quote byte
	for i := start + 1; i < len(content); i++ {
		ch := content[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'' || ch == '`':
			quote = ch
		case ch == '{':
			depth++
		case ch == '}':
			if depth > 0 {
				depth--
			}
		case ch == '>' && depth == 0:
			return i + 1
		}
	}
	return len(content)
}
