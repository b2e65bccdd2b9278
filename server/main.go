package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/deidaraiorek/campusrag/internal/agent"
	"github.com/deidaraiorek/campusrag/internal/config"
	"github.com/deidaraiorek/campusrag/internal/embedding"
	"github.com/deidaraiorek/campusrag/internal/generation"
	"github.com/deidaraiorek/campusrag/internal/logger"
	"github.com/deidaraiorek/campusrag/internal/middleware"
	"github.com/deidaraiorek/campusrag/internal/retrieval"
	"github.com/deidaraiorek/campusrag/internal/textprocessor"
	"github.com/deidaraiorek/campusrag/internal/vectorindex"
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

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	idx, err := vectorindex.Load(cfg.IndexDir)
	if err != nil {
		return err
	}
	m := idx.Manifest()
	slog.Info("index loaded", "dir", cfg.IndexDir, "entries", idx.Len(), "model", m.Model, "normalized", m.Normalized)

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

	var normalizer retrieval.Normalizer
	if m.Normalized {
		stopWords, err := loadStopWords(cfg.StopwordsPath)
		if err != nil {
			return err
		}
		normalizer = textprocessor.NewTextProcessor(m.NormalizeLanguage, stopWords)
	}

	queryLog, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	svc, err := retrieval.NewService(emb, idx, normalizer, queryLog)
	if err != nil {
		return err
	}

	gen := generation.NewClient(cfg.OllamaURL, cfg.GenerationModel, time.Duration(cfg.GenerationTimeout)*time.Second)
	ag := agent.New(svc, gen)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.CorrelationID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "entries": svc.Len(), "model": m.Model})
	})
	r.Post("/search", retrieval.NewHandler(svc, cfg.DefaultNumResults).Search)
	r.Post("/agent", agent.NewHandler(ag, cfg.DefaultNumResults).Ask)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.ServerPort)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func loadStopWords(path string) (map[string]bool, error) {
	if path == "" {
		return nil, nil
	}
	return textprocessor.LoadStopWords(path)
}
