package classifier_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deidaraiorek/campusrag/spider/internal/classifier"
)

func defaultClassifier() *classifier.Classifier {
	return classifier.New(classifier.Config{
		MinLength:        classifier.DefaultMinLength,
		RejectKeywords:   classifier.DefaultRejectKeywords,
		ExcludedURLTerms: classifier.DefaultExcludedURLTerms,
	})
}

func TestClassify(t *testing.T) {
	c := defaultClassifier()
	long := strings.Repeat("Faculty of computer science offers programs. ", 5)

	tests := []struct {
		name string
		text string
		url  string
		want classifier.Verdict
	}{
		{"accepted", long, "https://vntu.edu.ua/uk/fks.html", classifier.Verdict{}},
		{"empty", "   ", "https://vntu.edu.ua/a", classifier.Verdict{Rejected: true, Reason: classifier.ReasonEmpty}},
		{"fifty chars", strings.Repeat("a", 50), "https://vntu.edu.ua/a", classifier.Verdict{Rejected: true, Reason: classifier.ReasonTooShort}},
		{"keyword", long + " All Rights Reserved", "https://vntu.edu.ua/a", classifier.Verdict{Rejected: true, Reason: classifier.ReasonBoilerplate}},
		{"cyrillic keyword", long + " Сторінку не знайдено", "https://vntu.edu.ua/a", classifier.Verdict{Rejected: true, Reason: classifier.ReasonBoilerplate}},
		{"url term", long, "https://vntu.edu.ua/Login?next=/", classifier.Verdict{Rejected: true, Reason: classifier.ReasonExcludedURL}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text, tt.url)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Rejected, c.Reject(tt.text, tt.url))
		})
	}
}

func TestClassify_LengthInRunes(t *testing.T) {
	c := classifier.New(classifier.Config{MinLength: 100})

	// 100 Cyrillic letters are 200 bytes but exactly at the threshold.
	assert.False(t, c.Reject(strings.Repeat("ї", 100), "https://site/"))
	assert.True(t, c.Reject(strings.Repeat("ї", 99), "https://site/"))
}

func TestClassify_ThresholdMonotonic(t *testing.T) {
	text := strings.Repeat("x", 120)
	lower := classifier.New(classifier.Config{MinLength: 50})
	higher := classifier.New(classifier.Config{MinLength: 150})

	for _, n := range []int{10, 60, 100, 120, 200} {
		sample := text[:min(n, len(text))]
		if lower.Reject(sample, "https://site/") {
			assert.True(t, higher.Reject(sample, "https://site/"), "length %d rejected at 50 but accepted at 150", n)
		}
	}
}

func TestClassify_ZeroMinLength(t *testing.T) {
	c := classifier.New(classifier.Config{MinLength: 0})
	assert.False(t, c.Reject("ok", "https://site/"))
	assert.True(t, c.Reject("", "https://site/"))
}
