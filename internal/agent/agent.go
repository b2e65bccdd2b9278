// Package agent answers questions with retrieved page text as context.
package agent

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/deidaraiorek/campusrag/internal/retrieval"
)

const (
	MaxContexts     = 5
	MaxContextChars = 500
	MaxPromptChars  = 5000
	MaxAnswerChars  = 5000
)

const DefaultInstructions = "You are a friendly assistant for the university. " +
	"Answer briefly and to the point, using only confirmed facts. " +
	"Do not invent details you have no exact information about. " +
	"Use the following context to answer:"

const NoContextAnswer = "Sorry, I could not find any information about that yet."

type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) iter.Seq2[string, error]
}

type Agent struct {
	retriever    Retriever
	generator    Generator
	Instructions string
}

func New(r Retriever, g Generator) *Agent {
	return &Agent{retriever: r, generator: g, Instructions: DefaultInstructions}
}

// BuildContext numbers up to MaxContexts results, cuts each to
// MaxContextChars and the whole block to MaxPromptChars.
func BuildContext(results []retrieval.Result) string {
	if len(results) > MaxContexts {
		results = results[:MaxContexts]
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Context %d: %s", i+1, truncate(r.Text, MaxContextChars))
	}
	return truncate(strings.Join(blocks, "\n\n"), MaxPromptChars)
}

func (a *Agent) Prompt(query string, results []retrieval.Result) string {
	return a.Instructions + "\n\n" + BuildContext(results) + "\n\nQuestion: " + query + "\nAnswer:"
}

// Answer retrieves k contexts and streams the generated answer, cut at
// MaxAnswerChars. Retrieval errors are returned before anything streams.
// A generation failure ends the stream with an "Error: ..." fragment.
func (a *Agent) Answer(ctx context.Context, query string, k int) (iter.Seq[string], error) {
	results, err := a.retriever.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return func(yield func(string) bool) { yield(NoContextAnswer) }, nil
	}

	prompt := a.Prompt(query, results)
	slog.DebugContext(ctx, "generating answer", "contexts", min(len(results), MaxContexts), "prompt_chars", utf8.RuneCountInString(prompt))

	return func(yield func(string) bool) {
		remaining := MaxAnswerChars
		for frag, err := range a.generator.Generate(ctx, prompt) {
			if err != nil {
				slog.WarnContext(ctx, "generation failed", "error", err)
				prefix := ""
				if remaining < MaxAnswerChars {
					prefix = "\n"
				}
				yield(prefix + "Error: " + err.Error())
				return
			}

			n := utf8.RuneCountInString(frag)
			if n >= remaining {
				if frag = truncate(frag, remaining); frag != "" {
					yield(frag)
				}
				return
			}
			remaining -= n
			if !yield(frag) {
				return
			}
		}
	}, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	i, n := 0, 0
	for i = range s {
		if n == limit {
			break
		}
		n++
	}
	return s[:i]
}
