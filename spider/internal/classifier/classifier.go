// Package classifier decides whether extracted page text is worth keeping.
package classifier

import (
	"strings"
	"unicode/utf8"
)

type Reason string

const (
	ReasonNone        Reason = ""
	ReasonEmpty       Reason = "empty"
	ReasonTooShort    Reason = "too_short"
	ReasonBoilerplate Reason = "boilerplate_keyword"
	ReasonExcludedURL Reason = "excluded_url"
)

const DefaultMinLength = 100

var (
	DefaultRejectKeywords = []string{
		"page not found",
		"404 not found",
		"access denied",
		"all rights reserved",
		"privacy policy",
		"cookie policy",
		"terms of use",
		"annual report",
		"сторінку не знайдено",
	}

	DefaultExcludedURLTerms = []string{
		"login", "signin", "register", "signup", "search",
		"admin", "contact", "policy", "privacy", "wp-json",
	}
)

type Config struct {
	// MinLength is counted in runes.
	MinLength        int
	RejectKeywords   []string
	ExcludedURLTerms []string
}

type Verdict struct {
	Rejected bool
	Reason   Reason
}

type Classifier struct {
	minLength int
	keywords  []string
	urlTerms  []string
}

func New(cfg Config) *Classifier {
	c := &Classifier{minLength: cfg.MinLength}
	if c.minLength < 0 {
		c.minLength = 0
	}
	c.keywords = lowerAll(cfg.RejectKeywords)
	c.urlTerms = lowerAll(cfg.ExcludedURLTerms)
	return c
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Classifier) Reject(text, pageURL string) bool {
	return c.Classify(text, pageURL).Rejected
}

// Classify checks, in order, emptiness, length, reject keywords and the URL.
func (c *Classifier) Classify(text, pageURL string) Verdict {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Verdict{Rejected: true, Reason: ReasonEmpty}
	}
	if utf8.RuneCountInString(trimmed) < c.minLength {
		return Verdict{Rejected: true, Reason: ReasonTooShort}
	}

	lowerText := strings.ToLower(trimmed)
	for _, kw := range c.keywords {
		if strings.Contains(lowerText, kw) {
			return Verdict{Rejected: true, Reason: ReasonBoilerplate}
		}
	}

	lowerURL := strings.ToLower(pageURL)
	for _, term := range c.urlTerms {
		if strings.Contains(lowerURL, term) {
			return Verdict{Rejected: true, Reason: ReasonExcludedURL}
		}
	}

	return Verdict{}
}
