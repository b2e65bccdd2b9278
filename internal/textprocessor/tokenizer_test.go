package textprocessor_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/deidaraiorek/campusrag/internal/textprocessor"
)

func TestTokenize(t *testing.T) {
	tok := textprocessor.NewTokenizer(nil)

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"stopwords removed", "The quick brown fox", []string{"quick", "brown", "fox"}},
		{"single letters dropped", "x y zz", []string{"zz"}},
		{"numbers split", "abc123def", []string{"abc", "def"}},
		{"cyrillic kept", "Вступ до ВНТУ", []string{"вступ", "внту"}},
		{"empty", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tok.Tokenize(tt.input)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestTokenize_MaxLength(t *testing.T) {
	tok := textprocessor.NewTokenizer(map[string]bool{})

	long := strings.Repeat("ж", 51)
	result := tok.Tokenize("ok " + long)
	if !reflect.DeepEqual(result, []string{"ok"}) {
		t.Errorf("Tokenize() = %v, want [ok]", result)
	}
}
