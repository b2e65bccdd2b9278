package textprocessor

import (
	"github.com/kljensen/snowball"
)

type Stemmer struct {
	language string
}

// NewStemmer returns a snowball stemmer. Languages snowball does not know
// leave words unchanged.
func NewStemmer(language string) *Stemmer {
	if language == "" {
		language = "english"
	}
	return &Stemmer{language: language}
}

func (s *Stemmer) Stem(word string) string {
	stemmed, err := snowball.Stem(word, s.language, true)
	if err != nil {
		return word
	}
	return stemmed
}

func (s *Stemmer) Language() string {
	return s.language
}
