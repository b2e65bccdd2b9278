package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/deidaraiorek/campusrag/internal/config"
	"github.com/deidaraiorek/campusrag/internal/corpus"
	"github.com/deidaraiorek/campusrag/internal/logger"
	"github.com/deidaraiorek/campusrag/internal/middleware"
	"github.com/deidaraiorek/campusrag/spider/internal/classifier"
	"github.com/deidaraiorek/campusrag/spider/internal/extractor"
	"github.com/deidaraiorek/campusrag/spider/internal/fetcher"
	"github.com/deidaraiorek/campusrag/spider/internal/linkfilter"
	"github.com/deidaraiorek/campusrag/spider/internal/scheduler"
	"github.com/deidaraiorek/campusrag/spider/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = middleware.WithCorrelationID(ctx, uuid.New().String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.InfoContext(ctx, "shutting down gracefully")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "crawl failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := storage.NewDatabase(cfg.CrawlDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Reset(); err != nil {
		return err
	}

	ex, err := extractor.New(cfg.ContentSelectors, cfg.BoilerplatePhrases)
	if err != nil {
		return err
	}

	filter := linkfilter.New(linkfilter.Config{
		AllowedDomains:     cfg.AllowedDomains,
		ExcludedExtensions: cfg.ExcludedExtensions,
		ExcludedPathTerms:  cfg.ExcludedPathTerms,
	})

	c := classifier.New(classifier.Config{
		MinLength:        cfg.MinTextLength,
		RejectKeywords:   cfg.RejectKeywords,
		ExcludedURLTerms: cfg.ExcludedURLTerms,
	})

	timeout := time.Duration(cfg.FetchTimeoutSec) * time.Second
	f := fetcher.New(fetcher.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   timeout,
		Retries:   cfg.FetchRetries,
	})

	sched := scheduler.New(scheduler.Config{
		StartURLs:       cfg.StartURLs,
		Workers:         cfg.Workers,
		MaxPages:        cfg.MaxPages,
		FollowRejected:  cfg.FollowRejected,
		BrowserFallback: cfg.BrowserFallback,
	}, f, ex, filter, c, db)
	if cfg.BrowserFallback {
		browser := fetcher.NewBrowserFetcher(cfg.UserAgent, timeout)
		defer browser.Close()
		sched.WithBrowser(browser)
	}

	stats, err := sched.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// An interrupted crawl still exports what it accepted.
	records, err := db.Records()
	if err != nil {
		return err
	}
	if err := corpus.Save(cfg.CorpusPath, records); err != nil {
		return err
	}

	slog.InfoContext(ctx, "corpus written",
		"path", cfg.CorpusPath,
		"records", len(records),
		"rejected", stats.Rejected,
		"fetch_errors", stats.FetchErrors,
		"rejections", stats.Rejections,
	)
	return nil
}
