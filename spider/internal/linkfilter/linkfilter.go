// Package linkfilter decides which hrefs found on a page are worth crawling.
package linkfilter

import (
	"net/url"
	"strings"
)

var (
	DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".pdf"}

	DefaultPathTerms = []string{
		"Special:",
		"Спеціальна:",
		"%D0%A1%D0%BF%D0%B5%D1%86%D1%96%D0%B0%D0%BB%D1%8C%D0%BD%D0%B0:",
		"ir.lib",
		"repository",
		"conferences",
		"visnyk",
		"journal",
		"archive",
	}
)

type Config struct {
	AllowedDomains     []string
	ExcludedExtensions []string
	ExcludedPathTerms  []string
}

type Filter struct {
	domains    []string
	extensions []string
	terms      []string
}

func New(cfg Config) *Filter {
	f := &Filter{}
	for _, d := range cfg.AllowedDomains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			f.domains = append(f.domains, d)
		}
	}
	for _, ext := range cfg.ExcludedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions = append(f.extensions, ext)
	}
	for _, term := range cfg.ExcludedPathTerms {
		if term = strings.TrimSpace(term); term != "" {
			f.terms = append(f.terms, term)
		}
	}
	return f
}

// Filter resolves hrefs against base and keeps the ones that pass every
// rule, in their original order. Fragments are dropped; queries are kept.
func (f *Filter) Filter(base string, hrefs []string) []string {
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return nil
	}

	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}

		abs := baseURL.ResolveReference(ref)
		if f.allowed(abs) {
			out = append(out, canonical(abs))
		}
	}
	return out
}

// Allowed applies the same rules to an absolute URL.
func (f *Filter) Allowed(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() {
		return false
	}
	return f.allowed(u)
}

// Canonical returns rawURL without its fragment, or rawURL itself if it does not parse.
func Canonical(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	return canonical(u)
}

func canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func (f *Filter) allowed(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if !f.hostAllowed(strings.ToLower(u.Hostname())) {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, ext := range f.extensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	escaped := canonical(u)
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		unescaped = escaped
	}
	for _, term := range f.terms {
		if strings.Contains(escaped, term) || strings.Contains(unescaped, term) {
			return false
		}
	}
	return true
}

func (f *Filter) hostAllowed(host string) bool {
	if host == "" {
		return false
	}
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
