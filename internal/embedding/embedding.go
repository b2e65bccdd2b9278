// Package embedding turns text into fixed-length vectors. Every embedder
// reports a model identity that is recorded in the index manifest, so an
// index is only ever queried with the model that built it.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownProvider = errors.New("unknown embedding provider")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Config struct {
	Provider     string
	Model        string
	Dimension    int
	OllamaURL    string
	GeminiAPIKey string
}

func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "hashing":
		return NewHashing(cfg.Dimension), nil
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.Model), nil
	case "gemini":
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
