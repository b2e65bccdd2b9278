package textprocessor

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Tokenizer struct {
	StopWords map[string]bool
	minLength int
	maxLength int
}

func NewTokenizer(stopWords map[string]bool) *Tokenizer {
	if stopWords == nil {
		stopWords = DefaultStopWords()
	}
	return &Tokenizer{
		StopWords: stopWords,
		minLength: 2,
		maxLength: 50,
	}
}

// Tokenize lowercases text and keeps runs of letters, so digits and
// punctuation act as separators. Lengths are counted in runes.
func (t *Tokenizer) Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if t.StopWords[word] {
			continue
		}

		n := utf8.RuneCountInString(word)
		if n < t.minLength || n > t.maxLength {
			continue
		}

		tokens = append(tokens, word)
	}
	return tokens
}

// LoadStopWords reads one word per line; blank lines and lines starting with # are ignored.
func LoadStopWords(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stopwords: %w", err)
	}
	defer f.Close()

	words := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stopwords: %w", err)
	}
	return words, nil
}

func DefaultStopWords() map[string]bool {
	words := []string{
		// English
		"a", "an", "the",
		"i", "me", "my", "we", "our", "you", "your", "he", "him", "his", "she", "her",
		"it", "its", "they", "them", "their",
		"of", "at", "by", "for", "with", "about", "between", "into", "through",
		"during", "before", "after", "to", "from", "up", "down", "in", "out", "on", "off", "over", "under",
		"and", "or", "but", "if", "while", "because", "as", "until", "than", "so", "nor",
		"is", "am", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did",
		"will", "would", "should", "could", "can", "may", "might", "must",
		"this", "that", "these", "those",
		"what", "which", "who", "whom", "when", "where", "why", "how",
		"all", "each", "every", "both", "more", "most", "other", "some", "such",
		"no", "not", "only", "same", "then", "there", "too", "very",

		// Ukrainian
		"і", "й", "та", "а", "але", "або", "в", "у", "на", "з", "із", "зі", "до", "від",
		"за", "по", "про", "для", "під", "над", "при", "через", "що", "як", "це", "цей",
		"ця", "ці", "той", "та", "ті", "він", "вона", "воно", "вони", "ми", "ви", "я",
		"не", "ні", "так", "також", "бо", "якщо", "щоб", "де", "коли", "чи", "вже", "ще",
		"є", "був", "була", "було", "були", "бути", "може", "їх", "його", "її",
	}

	stopWords := make(map[string]bool, len(words))
	for _, word := range words {
		stopWords[word] = true
	}
	return stopWords
}
