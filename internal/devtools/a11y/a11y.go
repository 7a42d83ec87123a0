// Package a11y runs static accessibility checks over HTML and JSX markup.
//
// JSX is not HTML, so before parsing it is rewritten into something the
// HTML parser keeps intact: attribute expressions become quoted strings,
// self-closing non-void elements get an explicit end tag and capitalised
// components become a neutral custom element. Line numbers are taken from
// the original source by matching the n-th element of a tag with the n-th
// occurrence of that tag in the file.
package a11y

import (
	"bytes"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/openground/backend/internal/devtools/scan"
)

// Rule names
const (
	RuleImgAlt       = "img-alt"
	RuleButtonName   = "button-name"
	RuleAnchorHref   = "anchor-href"
	RuleControlLabel = "control-label"
	RuleClickRole    = "click-role"
	RuleTabindex     = "tabindex"
	RuleHTMLLang     = "html-lang"
)

const componentTag = "x-component"

var (
	voidElements = []string{"area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta", "source", "track", "wbr"}
	interactive  = []string{"a", "button", "input", "select", "textarea", "summary", "option", "label", "details", componentTag}
	unlabelled   = []string{"hidden", "submit", "button", "reset", "image"}

	tagOpen = regexp.MustCompile(`<([A-Za-z][\w.-]*)`)
)

// Checker implements scan.Checker
type Checker struct{}

// New creates a checker
func New() *Checker { return &Checker{} }

func (c *Checker) Name() string { return "a11y" }

func (c *Checker) Match(path string) bool {
	return scan.HasExt(path, ".html", ".htm", ".tsx", ".jsx")
}

func (c *Checker) Check(path string, content []byte) ([]scan.Finding, error) {
	jsx := scan.HasExt(path, ".tsx", ".jsx")
	src := content
	if jsx {
		src = neutralize(content)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	r := &report{path: path, doc: doc, lines: tagLines(content, jsx)}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("alt"); !ok {
			r.add(s, RuleImgAlt, "img without alt attribute")
		}
	})

	doc.Find("button").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) != "" || hasAnyAttr(s, "aria-label", "aria-labelledby", "title") {
			return
		}
		if s.Find("img").FilterFunction(func(_ int, img *goquery.Selection) bool {
			return strings.TrimSpace(img.AttrOr("alt", "")) != ""
		}).Length() > 0 {
			return
		}
		r.add(s, RuleButtonName, "button without accessible name")
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("href"); !ok {
			r.add(s, RuleAnchorHref, "anchor without href, use a button for actions")
		}
	})

	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "input" && slices.Contains(unlabelled, strings.ToLower(s.AttrOr("type", "text"))) {
			return
		}
		if hasAnyAttr(s, "aria-label", "aria-labelledby", "title") || s.Closest("label").Length() > 0 {
			return
		}
		if id := strings.TrimSpace(s.AttrOr("id", "")); id != "" && labelFor(doc, id) {
			return
		}
		r.add(s, RuleControlLabel, goquery.NodeName(s)+" without label")
	})

	doc.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		if slices.Contains(interactive, goquery.NodeName(s)) {
			return
		}
		if _, ok := s.Attr("role"); !ok {
			r.add(s, RuleClickRole, fmt.Sprintf("click handler on <%s> without role", goquery.NodeName(s)))
		}
	})

	doc.Find("[tabindex]").Each(func(_ int, s *goquery.Selection) {
		v := strings.Trim(s.AttrOr("tabindex", ""), `'" `)
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			r.add(s, RuleTabindex, fmt.Sprintf("positive tabindex %d breaks the focus order", n))
		}
	})

	if len(r.lines["html"]) > 0 {
		doc.Find("html").Each(func(_ int, s *goquery.Selection) {
			if strings.TrimSpace(s.AttrOr("lang", "")) == "" {
				r.add(s, RuleHTMLLang, "html document without lang")
			}
		})
	}

	scan.Sort(r.findings)
	return r.findings, nil
}

type report struct {
	path     string
	doc      *goquery.Document
	lines    map[string][]int
	findings []scan.Finding
}

func (r *report) add(s *goquery.Selection, rule, msg string) {
	tag := goquery.NodeName(s)
	if tag == componentTag {
		return
	}
	line := 1
	if idx := r.doc.Find(tag).IndexOfSelection(s); idx >= 0 && idx < len(r.lines[tag]) {
		line = r.lines[tag][idx]
	}
	r.findings = append(r.findings, scan.Finding{Path: r.path, Line: line, Rule: rule, Message: msg})
}

func hasAnyAttr(s *goquery.Selection, names ...string) bool {
	for _, name := range names {
		if strings.TrimSpace(s.AttrOr(name, "")) != "" {
			return true
		}
	}
	return false
}

// labelFor reports whether a label points at id (for= in HTML, htmlFor= in JSX)
func labelFor(doc *goquery.Document, id string) bool {
	return doc.Find("label").FilterFunction(func(_ int, l *goquery.Selection) bool {
		return l.AttrOr("for", "") == id || l.AttrOr("htmlfor", "") == id
	}).Length() > 0
}

// tagLines maps lower-cased native tag names to the lines of their opening
// tags in source order
func tagLines(content []byte, jsx bool) map[string][]int {
	lines := map[string][]int{}
	for _, m := range tagOpen.FindAllSubmatchIndex(content, -1) {
		name := string(content[m[2]:m[3]])
		if jsx && isUpper(name[0]) {
			continue
		}
		name = strings.ToLower(name)
		lines[name] = append(lines[name], scan.LineAt(content, m[0]))
	}
	return lines
}

// neutralize rewrites JSX tags so the HTML parser keeps their structure
func neutralize(src []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(src))
	i := 0
	for i < len(src) {
		if src[i] != '<' || i+1 >= len(src) {
			out.WriteByte(src[i])
			i++
			continue
		}
		j := i + 1
		closing := src[j] == '/'
		if closing {
			j++
		}
		if j >= len(src) || !isLetter(src[j]) {
			out.WriteByte(src[i])
			i++
			continue
		}
		k := j
		for k < len(src) && isNameChar(src[k]) {
			k++
		}
		name := string(src[j:k])
		if isUpper(name[0]) {
			name = componentTag
		}
		if closing {
			out.WriteString("</" + name)
			i = k
			continue
		}

		out.WriteString("<" + name)
		p, selfClosing := k, false
	attrs:
		for p < len(src) {
			switch ch := src[p]; {
			case ch == '"' || ch == '\'':
				end := bytes.IndexByte(src[p+1:], ch)
				if end < 0 {
					out.Write(src[p:])
					p = len(src)
					continue
				}
				out.Write(src[p : p+end+2])
				p += end + 2
			case ch == '{':
				end := matchBrace(src, p)
				out.WriteByte('"')
				out.WriteString(sanitize(src[p+1 : min(end, len(src))]))
				out.WriteByte('"')
				p = end + 1
			case ch == '/' && p+1 < len(src) && src[p+1] == '>':
				selfClosing = true
				p += 2
				break attrs
			case ch == '>':
				p++
				break attrs
			default:
				out.WriteByte(ch)
				p++
			}
		}
		out.WriteByte('>')
		if selfClosing && !slices.Contains(voidElements, strings.ToLower(name)) {
			out.WriteString("</" + name + ">")
		}
		i = p
	}
	return out.Bytes()
}

// matchBrace returns the offset of the '}' closing the '{' at start, or
// len(src) when there is none
func matchBrace(src []byte, start int) int {
	depth := 0
	var quote byte
	for i := start; i < len(src); i++ {
		ch := src[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'' || ch == '`':
			quote = ch
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(src)
}

func sanitize(expr []byte) string {
	return strings.NewReplacer(`"`, `'`, "\n", " ", "\r", " ").Replace(strings.TrimSpace(string(expr)))
}

func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

func isNameChar(b byte) bool {
	return isLetter(b) || (b >= '0' && b <= '9') || b == '-' || b == '.' || b == '_' || b == ':'
}
