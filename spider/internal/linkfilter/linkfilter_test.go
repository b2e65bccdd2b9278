package linkfilter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deidaraiorek/campusrag/spider/internal/linkfilter"
)

func defaultFilter() *linkfilter.Filter {
	return linkfilter.New(linkfilter.Config{
		AllowedDomains:     []string{"vntu.edu.ua"},
		ExcludedExtensions: linkfilter.DefaultExtensions,
		ExcludedPathTerms:  linkfilter.DefaultPathTerms,
	})
}

func TestFilter_ThreeHrefScenario(t *testing.T) {
	f := defaultFilter()

	got := f.Filter("https://vntu.edu.ua/uk/news.html", []string{
		"/uk/about.html",
		"https://example.com/x",
		"/files/report.pdf",
	})

	assert.Equal(t, []string{"https://vntu.edu.ua/uk/about.html"}, got)
}

func TestFilter_Rules(t *testing.T) {
	f := defaultFilter()
	base := "https://vntu.edu.ua/uk/dir/page.html"

	tests := []struct {
		name string
		href string
		want []string
	}{
		{"relative", "other.html", []string{"https://vntu.edu.ua/uk/dir/other.html"}},
		{"protocol relative", "//vntu.edu.ua/x", []string{"https://vntu.edu.ua/x"}},
		{"fragment only", "#top", []string{"https://vntu.edu.ua/uk/dir/page.html"}},
		{"query only", "?page=2", []string{"https://vntu.edu.ua/uk/dir/page.html?page=2"}},
		{"fragment stripped", "/a#section", []string{"https://vntu.edu.ua/a"}},
		{"subdomain", "https://library.vntu.edu.ua/", []string{"https://library.vntu.edu.ua/"}},
		{"lookalike host", "https://evilvntu.edu.ua/", []string{}},
		{"domain in path only", "https://example.com/vntu.edu.ua", []string{}},
		{"mailto", "mailto:office@vntu.edu.ua", []string{}},
		{"javascript", "javascript:void(0)", []string{}},
		{"tel", "tel:+380432", []string{}},
		{"uppercase extension", "/img/PHOTO.JPG", []string{}},
		{"extension before query", "/doc.pdf?download=1", []string{}},
		{"extension only in query", "/view?file=a.pdf", []string{"https://vntu.edu.ua/view?file=a.pdf"}},
		{"excluded term", "/repository/item", []string{}},
		{"excluded cyrillic term", "/wiki/Спеціальна:Пошук", []string{}},
		{"excluded escaped term", "/wiki/%D0%A1%D0%BF%D0%B5%D1%86%D1%96%D0%B0%D0%BB%D1%8C%D0%BD%D0%B0:X", []string{}},
		{"unparseable", "http://[::1", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Filter(base, []string{tt.href}))
		})
	}
}

func TestFilter_QueryStringsAreDistinct(t *testing.T) {
	f := defaultFilter()

	got := f.Filter("https://vntu.edu.ua/", []string{"/a", "/a?x=1", "/a"})
	assert.Equal(t, []string{"https://vntu.edu.ua/a", "https://vntu.edu.ua/a?x=1", "https://vntu.edu.ua/a"}, got)
}

func TestFilter_Idempotent(t *testing.T) {
	f := defaultFilter()
	base := "https://vntu.edu.ua/uk/"
	hrefs := []string{"news.html", "#x", "https://vntu.edu.ua/a?b=c#d", "/archive/2019", "https://other.org/", "/Спеціальна:X"}

	once := f.Filter(base, hrefs)
	twice := f.Filter(base, once)
	assert.Equal(t, once, twice)
}

func TestFilter_BadBase(t *testing.T) {
	f := defaultFilter()
	assert.Empty(t, f.Filter("::not a url", []string{"/a"}))
	assert.Empty(t, f.Filter("/relative/base", []string{"/a"}))
}

func TestNew_Normalizes(t *testing.T) {
	f := linkfilter.New(linkfilter.Config{
		AllowedDomains:     []string{" .VNTU.edu.ua "},
		ExcludedExtensions: []string{"PDF"},
	})

	assert.True(t, f.Allowed("https://vntu.edu.ua/a"))
	assert.False(t, f.Allowed("https://vntu.edu.ua/a.pdf"))
}

func TestAllowed(t *testing.T) {
	f := defaultFilter()

	assert.True(t, f.Allowed("https://vntu.edu.ua/uk/about-university/vntu-today.html"))
	assert.True(t, f.Allowed("http://VNTU.edu.ua:8080/"))
	assert.False(t, f.Allowed("/relative"))
	assert.False(t, f.Allowed("ftp://vntu.edu.ua/file"))
	assert.False(t, f.Allowed("https://vntu.edu.ua/conferences/2020"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "https://site/a?x=1", linkfilter.Canonical("https://site/a?x=1#frag"))
}
