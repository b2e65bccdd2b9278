// Package textprocessor turns page text into the normalized form fed to
// the embedding model when the index is built with normalization on.
// Queries against such an index go through the same processor.
package textprocessor

import (
	"strings"
)

type TextProcessor struct {
	tokenizer *Tokenizer
	stemmer   *Stemmer
}

func NewTextProcessor(language string, stopWords map[string]bool) *TextProcessor {
	return &TextProcessor{
		tokenizer: NewTokenizer(stopWords),
		stemmer:   NewStemmer(language),
	}
}

func (tp *TextProcessor) Process(text string) []string {
	tokens := tp.tokenizer.Tokenize(text)

	stemmed := make([]string, len(tokens))
	for i, token := range tokens {
		stemmed[i] = tp.stemmer.Stem(token)
	}
	return stemmed
}

// Normalize is Process joined back into a single space-separated string.
func (tp *TextProcessor) Normalize(text string) string {
	return strings.Join(tp.Process(text), " ")
}

func (tp *TextProcessor) Language() string {
	return tp.stemmer.Language()
}
