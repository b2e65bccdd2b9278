// Package retrieval answers free-text queries against a loaded embedding index.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deidaraiorek/campusrag/internal/middleware"
	"github.com/deidaraiorek/campusrag/internal/vectorindex"
)

var (
	ErrInvalidK          = errors.New("number of results must be at least 1")
	ErrEmptyQuery        = errors.New("query is empty")
	ErrModelMismatch     = errors.New("embedding model does not match index")
	ErrMissingNormalizer = errors.New("index was built normalized but no normalizer was given")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

type Normalizer interface {
	Normalize(text string) string
}

type Result struct {
	Text     string  `json:"text"`
	URL      string  `json:"url"`
	Distance float32 `json:"distance"`
}

// Service is read-only after construction and safe for concurrent use.
type Service struct {
	embedder   Embedder
	index      *vectorindex.Index
	normalizer Normalizer
	logger     *QueryLogger
}

// NewService refuses an embedder other than the one that built the index.
// The normalizer is only consulted when the index was built normalized.
func NewService(e Embedder, idx *vectorindex.Index, n Normalizer, l *QueryLogger) (*Service, error) {
	m := idx.Manifest()
	if e.Model() != m.Model {
		return nil, fmt.Errorf("%w: index built with %q, embedder is %q", ErrModelMismatch, m.Model, e.Model())
	}
	if m.Normalized && n == nil {
		return nil, ErrMissingNormalizer
	}
	if !m.Normalized {
		n = nil
	}
	return &Service{embedder: e, index: idx, normalizer: n, logger: l}, nil
}

func (s *Service) Len() int { return s.index.Len() }

func (s *Service) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	var results []Result
	var err error
	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(QueryLogEntry{
				Query:         query,
				NumResults:    len(results),
				Duration:      time.Since(start),
				CorrelationID: middleware.GetCorrelationID(ctx),
			})
		}
	}()

	text := query
	if s.normalizer != nil {
		if text = s.normalizer.Normalize(query); strings.TrimSpace(text) == "" {
			err = fmt.Errorf("%w: nothing left after normalization", ErrEmptyQuery)
			return nil, err
		}
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Search(vec, k)
	if err != nil {
		return nil, err
	}

	results = make([]Result, len(hits))
	for i, h := range hits {
		e := s.index.Entry(h.Index)
		results[i] = Result{Text: e.Text, URL: e.URL, Distance: h.Distance}
	}
	return results, nil
}
