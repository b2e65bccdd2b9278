// Package extractor pulls the main text out of a fetched page using an
// ordered list of CSS selectors and cleans it of markup and boilerplate.
package extractor

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	DefaultSelectors = []string{"div#content", "div.content", "article", "section", "main"}

	DefaultBoilerplate = []string{"details", "read more", "more details", "подробиці", "читати далі", "деталі"}

	whitespaceRe = regexp.MustCompile(`\s+`)

	skippedElements = map[string]bool{
		"script":   true,
		"style":    true,
		"noscript": true,
		"template": true,
	}
)

type Extractor struct {
	selectors   []string
	matchers    []cascadia.Selector
	boilerplate *regexp.Regexp
}

type Result struct {
	Text     string
	Selector string
	Links    []string
}

func New(selectors []string, boilerplate []string) (*Extractor, error) {
	if len(selectors) == 0 {
		return nil, fmt.Errorf("no content selectors configured")
	}

	e := &Extractor{
		selectors: make([]string, 0, len(selectors)),
		matchers:  make([]cascadia.Selector, 0, len(selectors)),
	}
	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		m, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
		}
		e.selectors = append(e.selectors, sel)
		e.matchers = append(e.matchers, m)
	}

	e.boilerplate = compilePhrases(boilerplate)
	return e, nil
}

// compilePhrases builds one case-insensitive alternation, longest phrase
// first so "more details" wins over "details".
func compilePhrases(phrases []string) *regexp.Regexp {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool {
		return utf8.RuneCountInString(quoted[i]) > utf8.RuneCountInString(quoted[j])
	})
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

// Extract returns the cleaned text of the first selector that yields any,
// along with that selector. Both are empty when nothing matched.
func (e *Extractor) Extract(doc *goquery.Document) (string, string) {
	for i, m := range e.matchers {
		sel := doc.FindMatcher(m)
		if sel.Length() == 0 {
			continue
		}

		parts := collectText(sel.Nodes)
		if len(parts) == 0 {
			continue
		}

		if text := e.Clean(strings.Join(parts, " ")); text != "" {
			return text, e.selectors[i]
		}
	}
	return "", ""
}

func (e *Extractor) ExtractFromHTML(body []byte) (*Result, error) {
	return e.ExtractFromReader(bytes.NewReader(body))
}

func (e *Extractor) ExtractFromReader(r io.Reader) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	text, selector := e.Extract(doc)
	return &Result{
		Text:     text,
		Selector: selector,
		Links:    Links(doc),
	}, nil
}

// Links returns the raw href of every anchor in document order.
func Links(doc *goquery.Document) []string {
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// collectText walks each matched subtree once. A match nested inside
// another match is already covered by its ancestor.
func collectText(nodes []*html.Node) []string {
	matched := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		matched[n] = true
	}

	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				parts = append(parts, n.Data)
			}
			return
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range nodes {
		if hasMatchedAncestor(n, matched) {
			continue
		}
		walk(n)
	}
	return parts
}

func hasMatchedAncestor(n *html.Node, matched map[*html.Node]bool) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if matched[p] {
			return true
		}
	}
	return false
}

// Clean strips tags, collapses whitespace, drops pipes and removes
// boilerplate phrases that stand as whole words.
func (e *Extractor) Clean(text string) string {
	text = stripTags(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "|", " ")
	text = e.removeBoilerplate(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func stripTags(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			// Raw keeps entities as they were; the input is already text.
			b.Write(z.Raw())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func (e *Extractor) removeBoilerplate(text string) string {
	if e.boilerplate == nil {
		return text
	}

	var b strings.Builder
	last := 0
	pos := 0
	for pos < len(text) {
		loc := e.boilerplate.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]

		if isWordBoundary(text, start, end) {
			b.WriteString(text[last:start])
			last = end
			pos = end
			continue
		}

		// Not a whole word; retry one rune further so a later occurrence inside
		// the rejected span can still match.
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func isWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
