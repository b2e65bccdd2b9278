// Package scheduler runs one crawl: it drains a fresh frontier with a pool
// of workers, keeps pages the classifier accepts and follows their links.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deidaraiorek/campusrag/spider/internal/classifier"
	"github.com/deidaraiorek/campusrag/spider/internal/extractor"
	"github.com/deidaraiorek/campusrag/spider/internal/fetcher"
	"github.com/deidaraiorek/campusrag/spider/internal/frontier"
	"github.com/deidaraiorek/campusrag/spider/internal/linkfilter"
	"github.com/deidaraiorek/campusrag/spider/internal/storage"
)

var ErrNoSeeds = errors.New("no allowed start urls")

type Config struct {
	StartURLs []string
	Workers   int
	// MaxPages caps accepted pages; 0 means no cap.
	MaxPages int
	// FollowRejected enqueues links found on pages the classifier rejected.
	FollowRejected  bool
	BrowserFallback bool
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Response, error)
}

type HTMLRenderer interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Sink receives crawl output. storage.Database implements it.
type Sink interface {
	SavePage(page *storage.Page) error
	SaveLinks(fromURL string, toURLs []string) error
	LogFetch(entry *storage.FetchLog) error
}

type Stats struct {
	Fetched     int
	Accepted    int
	Rejected    int
	FetchErrors int
	Enqueued    int
	BrowserUsed int
	Rejections  map[classifier.Reason]int
	Duration    time.Duration
}

type Scheduler struct {
	config     Config
	fetcher    PageFetcher
	browser    HTMLRenderer
	extractor  *extractor.Extractor
	filter     *linkfilter.Filter
	classifier *classifier.Classifier
	sink       Sink

	fetched     atomic.Int64
	accepted    atomic.Int64
	rejected    atomic.Int64
	fetchErrors atomic.Int64
	enqueued    atomic.Int64
	browserUsed atomic.Int64

	mu         sync.Mutex
	rejections map[classifier.Reason]int
}

func New(config Config, f PageFetcher, ex *extractor.Extractor, filter *linkfilter.Filter, c *classifier.Classifier, sink Sink) *Scheduler {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Scheduler{
		config:     config,
		fetcher:    f,
		extractor:  ex,
		filter:     filter,
		classifier: c,
		sink:       sink,
	}
}

// WithBrowser sets the renderer used when BrowserFallback is on.
func (s *Scheduler) WithBrowser(r HTMLRenderer) *Scheduler {
	s.browser = r
	return s
}

// Run crawls until the frontier is exhausted, MaxPages pages have been
// accepted, or ctx is cancelled. Page-level failures are logged and
// counted; Run only returns an error when it cannot start or ctx ends early.
func (s *Scheduler) Run(ctx context.Context) (Stats, error) {
	s.reset()
	start := time.Now()

	f := frontier.New()
	for _, u := range s.config.StartURLs {
		u = linkfilter.Canonical(u)
		if !s.filter.Allowed(u) {
			slog.WarnContext(ctx, "start url not allowed, skipping", "url", u)
			continue
		}
		if f.Add(u) {
			s.enqueued.Add(1)
		}
	}
	if f.Size() == 0 {
		return s.snapshot(start), ErrNoSeeds
	}

	slog.InfoContext(ctx, "crawl started", "workers", s.config.Workers, "seeds", f.Size(),
		"max_pages", s.config.MaxPages, "follow_rejected", s.config.FollowRejected)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID, f)
		}(i)
	}
	wg.Wait()

	stats := s.snapshot(start)
	slog.InfoContext(ctx, "crawl finished",
		"fetched", stats.Fetched, "accepted", stats.Accepted, "rejected", stats.Rejected,
		"fetch_errors", stats.FetchErrors, "enqueued", stats.Enqueued, "duration", stats.Duration)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Scheduler) worker(ctx context.Context, workerID int, f *frontier.Frontier) {
	for {
		url, ok := f.Next(ctx)
		if !ok {
			slog.DebugContext(ctx, "worker exiting", "worker", workerID)
			return
		}

		done := s.crawlURL(ctx, url, f)
		f.Done()

		if done {
			slog.InfoContext(ctx, "max pages reached", "max_pages", s.config.MaxPages)
			f.Close()
			return
		}
	}
}

// crawlURL processes one URL and reports whether the page cap was reached.
func (s *Scheduler) crawlURL(ctx context.Context, url string, f *frontier.Frontier) bool {
	resp, err := s.fetcher.Fetch(ctx, url)
	if err == nil && resp.URL != "" && resp.URL != url && !s.filter.Allowed(resp.URL) {
		err = fmt.Errorf("redirected to disallowed url %s", resp.URL)
	}
	if err != nil {
		s.fetchErrors.Add(1)
		slog.WarnContext(ctx, "fetch failed", "url", url, "error", err)
		s.logFetch(ctx, url, fetcher.StatusCode(err), storage.OutcomeFetchError, err.Error())
		return false
	}

	// A redirect target reached here must not be fetched again on its own.
	if final := linkfilter.Canonical(resp.URL); final != "" && final != url && !f.MarkVisited(final) {
		slog.InfoContext(ctx, "redirect target already visited, skipping", "url", url, "final", final)
		s.logFetch(ctx, url, resp.StatusCode, storage.OutcomeRejected, "duplicate of "+final)
		return false
	}

	page, err := s.extractor.ExtractFromHTML(resp.Body)
	if err != nil {
		s.fetchErrors.Add(1)
		slog.WarnContext(ctx, "parse failed", "url", url, "error", err)
		s.logFetch(ctx, url, resp.StatusCode, storage.OutcomeFetchError, err.Error())
		return false
	}
	s.fetched.Add(1)

	if page.Text == "" && s.config.BrowserFallback && s.browser != nil {
		if rendered := s.render(ctx, url); rendered != nil && rendered.Text != "" {
			page = rendered
			s.browserUsed.Add(1)
		}
	}

	verdict := s.classifier.Classify(page.Text, url)
	capReached := false
	if verdict.Rejected {
		s.rejected.Add(1)
		s.countRejection(verdict.Reason)
		slog.InfoContext(ctx, "page rejected", "url", url, "reason", verdict.Reason)
		s.logFetch(ctx, url, resp.StatusCode, storage.OutcomeRejected, string(verdict.Reason))
	} else {
		var emitted bool
		emitted, capReached = s.emit(ctx, url, page.Text)
		if !emitted {
			s.logFetch(ctx, url, resp.StatusCode, storage.OutcomeRejected, "page limit reached")
			return true
		}
		slog.InfoContext(ctx, "page accepted", "url", url, "selector", page.Selector, "chars", len([]rune(page.Text)))
		s.logFetch(ctx, url, resp.StatusCode, storage.OutcomeAccepted, "")
	}

	if verdict.Rejected && !s.config.FollowRejected {
		return capReached
	}

	base := url
	if resp.URL != "" {
		base = resp.URL
	}
	links := s.filter.Filter(base, page.Links)
	if len(links) > 0 {
		if err := s.sink.SaveLinks(url, links); err != nil {
			slog.WarnContext(ctx, "failed to save links", "url", url, "error", err)
		}
	}
	if !capReached {
		added := f.AddAll(links)
		s.enqueued.Add(int64(added))
		slog.DebugContext(ctx, "links enqueued", "url", url, "found", len(page.Links), "kept", len(links), "new", added)
	}
	return capReached
}

// emit stores an accepted page unless the cap is already used up. The
// second result reports whether this page filled the cap.
func (s *Scheduler) emit(ctx context.Context, url, text string) (bool, bool) {
	n := s.accepted.Add(1)
	limit := int64(s.config.MaxPages)
	if limit > 0 && n > limit {
		s.accepted.Add(-1)
		return false, true
	}

	if err := s.sink.SavePage(&storage.Page{URL: url, Text: text, CrawledAt: time.Now().UTC()}); err != nil {
		slog.ErrorContext(ctx, "failed to save page", "url", url, "error", err)
	}
	return true, limit > 0 && n == limit
}

func (s *Scheduler) render(ctx context.Context, url string) *extractor.Result {
	slog.InfoContext(ctx, "no text from http fetch, retrying with browser", "url", url)

	html, err := s.browser.FetchHTML(ctx, url)
	if err != nil {
		slog.WarnContext(ctx, "browser fetch failed", "url", url, "error", err)
		return nil
	}
	res, err := s.extractor.ExtractFromHTML([]byte(html))
	if err != nil {
		slog.WarnContext(ctx, "browser parse failed", "url", url, "error", err)
		return nil
	}
	return res
}

func (s *Scheduler) logFetch(ctx context.Context, url string, status int, outcome, detail string) {
	entry := &storage.FetchLog{
		URL:        url,
		StatusCode: status,
		Outcome:    outcome,
		Error:      detail,
		FetchedAt:  time.Now().UTC(),
	}
	if err := s.sink.LogFetch(entry); err != nil {
		slog.WarnContext(ctx, "failed to write fetch log", "url", url, "error", err)
	}
}

func (s *Scheduler) countRejection(reason classifier.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[reason]++
}

func (s *Scheduler) reset() {
	s.fetched.Store(0)
	s.accepted.Store(0)
	s.rejected.Store(0)
	s.fetchErrors.Store(0)
	s.enqueued.Store(0)
	s.browserUsed.Store(0)

	s.mu.Lock()
	s.rejections = make(map[classifier.Reason]int)
	s.mu.Unlock()
}

func (s *Scheduler) snapshot(start time.Time) Stats {
	s.mu.Lock()
	rejections := make(map[classifier.Reason]int, len(s.rejections))
	for k, v := range s.rejections {
		rejections[k] = v
	}
	s.mu.Unlock()

	return Stats{
		Fetched:     int(s.fetched.Load()),
		Accepted:    int(s.accepted.Load()),
		Rejected:    int(s.rejected.Load()),
		FetchErrors: int(s.fetchErrors.Load()),
		Enqueued:    int(s.enqueued.Load()),
		BrowserUsed: int(s.browserUsed.Load()),
		Rejections:  rejections,
		Duration:    time.Since(start),
	}
}
