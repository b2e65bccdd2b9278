package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var ErrBrowserClosed = errors.New("browser fetcher closed")

// BrowserFetcher renders pages in one headless Chrome process shared by all
// workers; each FetchHTML opens its own tab. Close shuts the process down.
type BrowserFetcher struct {
	userAgent string
	timeout   time.Duration
	settle    time.Duration

	mu          sync.Mutex
	browserCtx  context.Context
	allocCancel context.CancelFunc
	closeTabs   context.CancelFunc
	closed      bool
}

func NewBrowserFetcher(userAgent string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		userAgent: userAgent,
		timeout:   timeout,
		settle:    500 * time.Millisecond,
	}
}

// browser starts Chrome on first use and returns the context new tabs are
// opened from. Cancelling the first context of an allocator kills Chrome,
// so that context is kept here until Close.
func (bf *BrowserFetcher) browser() (context.Context, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.closed {
		return nil, ErrBrowserClosed
	}
	if bf.browserCtx != nil {
		return bf.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(bf.userAgent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-downloads", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, closeTabs := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		closeTabs()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	slog.Info("headless browser started")

	bf.browserCtx, bf.allocCancel, bf.closeTabs = browserCtx, allocCancel, closeTabs
	return browserCtx, nil
}

// FetchHTML loads url in a new tab, waits for the body plus a short settle
// period for scripts, and returns the rendered document.
func (bf *BrowserFetcher) FetchHTML(ctx context.Context, urlStr string) (string, error) {
	browserCtx, err := bf.browser()
	if err != nil {
		return "", err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, bf.timeout)
	defer cancel()
	// The tab hangs off the shared browser, so tie it to the caller as well.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var rendered string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(bf.settle),
		chromedp.OuterHTML("html", &rendered, chromedp.ByQuery),
	); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("render %s: %w", urlStr, err)
	}
	return rendered, nil
}

// Close stops Chrome. Later FetchHTML calls return ErrBrowserClosed.
func (bf *BrowserFetcher) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.closed {
		return nil
	}
	bf.closed = true
	if bf.closeTabs != nil {
		bf.closeTabs()
		bf.allocCancel()
	}
	return nil
}
