// Package builder turns a page corpus into an embedding index.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/deidaraiorek/campusrag/internal/corpus"
	"github.com/deidaraiorek/campusrag/internal/embedding"
	"github.com/deidaraiorek/campusrag/internal/vectorindex"
)

// Normalizer rewrites page text before it is embedded. Queries against the
// resulting index must go through the same normalizer.
type Normalizer interface {
	Normalize(text string) string
	Language() string
}

type Builder struct {
	Embedder      embedding.Embedder
	Concurrency   int
	RatePerSecond float64 // 0 means unlimited
	Normalizer    Normalizer
}

type BuildReport struct {
	Input     int
	Dropped   int
	Embedded  int
	Dimension int
	Model     string
	Duration  time.Duration
}

func (b *Builder) Build(ctx context.Context, records []corpus.Record) (*vectorindex.Index, BuildReport, error) {
	start := time.Now()
	report := BuildReport{Input: len(records), Model: b.Embedder.Model()}

	kept, dropped := corpus.NonEmpty(records)
	texts := make([]string, 0, len(kept))
	entries := make([]vectorindex.Entry, 0, len(kept))
	for _, rec := range kept {
		text := rec.Text
		if b.Normalizer != nil {
			// Normalizing can leave nothing, e.g. a page of dates and stopwords.
			if text = b.Normalizer.Normalize(text); strings.TrimSpace(text) == "" {
				dropped++
				continue
			}
		}
		texts = append(texts, text)
		entries = append(entries, vectorindex.Entry{URL: rec.URL, Text: rec.Text})
	}

	report.Dropped = dropped
	if dropped > 0 {
		slog.WarnContext(ctx, "dropped records with empty text", "count", dropped)
	}
	if len(entries) == 0 {
		return nil, report, vectorindex.ErrEmptyCorpus
	}

	vectors, err := b.embedAll(ctx, entries, texts)
	if err != nil {
		return nil, report, err
	}
	report.Embedded = len(vectors)

	meta := vectorindex.Manifest{Model: report.Model}
	if b.Normalizer != nil {
		meta.Normalized = true
		meta.NormalizeLanguage = b.Normalizer.Language()
	}

	idx, err := vectorindex.Build(entries, vectors, meta)
	if err != nil {
		return nil, report, err
	}
	report.Dimension = idx.Dimension()
	report.Duration = time.Since(start)
	return idx, report, nil
}

// embedAll embeds texts[i] into position i; entries only name the page in errors.
func (b *Builder) embedAll(ctx context.Context, entries []vectorindex.Entry, texts []string) ([][]float32, error) {
	limit := b.Concurrency
	if limit < 1 {
		limit = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if b.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(b.RatePerSecond), 1)
	}

	vectors := make([][]float32, len(texts))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, text := range texts {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			vec, err := b.Embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed %s: %w", entries[i].URL, err)
			}
			vectors[i] = vec

			if n := done.Add(1); n%100 == 0 {
				slog.InfoContext(gctx, "embedding progress", "done", n, "total", len(texts))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %s has %d dims, want %d",
				vectorindex.ErrDimensionMismatch, entries[i].URL, len(v), dim)
		}
	}
	return vectors, nil
}
