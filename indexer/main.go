package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/deidaraiorek/campusrag/indexer/internal/builder"
	"github.com/deidaraiorek/campusrag/internal/config"
	"github.com/deidaraiorek/campusrag/internal/corpus"
	"github.com/deidaraiorek/campusrag/internal/embedding"
	"github.com/deidaraiorek/campusrag/internal/logger"
	"github.com/deidaraiorek/campusrag/internal/middleware"
	"github.com/deidaraiorek/campusrag/internal/textprocessor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = middleware.WithCorrelationID(ctx, uuid.New().String())

	if err := run(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "indexing failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.InfoContext(ctx, "starting indexer", "corpus", cfg.CorpusPath, "index_dir", cfg.IndexDir)

	// Older crawls wrote one object per line; rewrite in place as an array.
	n, err := corpus.Fix(cfg.CorpusPath, cfg.CorpusPath)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "corpus loaded", "records", n)

	records, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		return err
	}

	emb, err := embedding.New(ctx, embedding.Config{
		Provider:     cfg.EmbedProvider,
		Model:        cfg.EmbedModel,
		Dimension:    cfg.EmbedDimension,
		OllamaURL:    cfg.OllamaURL,
		GeminiAPIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		return err
	}

	b := &builder.Builder{
		Embedder:      emb,
		Concurrency:   cfg.EmbedConcurrency,
		RatePerSecond: cfg.EmbedRatePerSec,
	}
	if cfg.Normalize {
		tp, err := newTextProcessor(cfg)
		if err != nil {
			return err
		}
		b.Normalizer = tp
	}

	idx, report, err := b.Build(ctx, records)
	if err != nil {
		return err
	}

	if err := idx.Save(cfg.IndexDir); err != nil {
		return err
	}

	slog.InfoContext(ctx, "index written",
		"dir", cfg.IndexDir,
		"model", report.Model,
		"entries", report.Embedded,
		"dropped", report.Dropped,
		"dimension", report.Dimension,
		"duration", report.Duration,
	)
	return nil
}

func newTextProcessor(cfg *config.Config) (*textprocessor.TextProcessor, error) {
	var stopWords map[string]bool
	if cfg.StopwordsPath != "" {
		words, err := textprocessor.LoadStopWords(cfg.StopwordsPath)
		if err != nil {
			return nil, err
		}
		stopWords = words
	}
	return textprocessor.NewTextProcessor(cfg.NormalizeLanguage, stopWords), nil
}
