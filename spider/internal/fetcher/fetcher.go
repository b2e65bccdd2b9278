package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxBodyBytes = 10 * 1024 * 1024

var (
	ErrNotHTML  = errors.New("non-html content")
	ErrTooLarge = errors.New("response body too large")
)

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

type Response struct {
	// URL is the address after redirects.
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
}

type Options struct {
	UserAgent      string
	Timeout        time.Duration
	Retries        int
	InitialBackoff time.Duration
}

type Fetcher struct {
	client         *http.Client
	userAgent      string
	retries        int
	initialBackoff time.Duration
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:      opts.UserAgent,
		retries:        opts.Retries,
		initialBackoff: opts.InitialBackoff,
	}
}

// Fetch GETs urlStr and returns the HTML body. Transport errors and 5xx
// responses are retried with exponential backoff; 4xx and non-HTML
// responses fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialBackoff
	b.MaxElapsedTime = 0

	var result *Response
	attempts := 0
	op := func() error {
		attempts++
		resp, err := f.fetchOnce(ctx, urlStr)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Code < 500 {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrNotHTML) || errors.Is(err, ErrTooLarge) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = resp
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.retries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", urlStr, attempts, err)
	}

	result.Attempts = attempts
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, urlStr string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !IsHTMLContentType(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}
	if resp.ContentLength > maxBodyBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxBodyBytes)
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// StatusCode extracts the HTTP status from a Fetch error, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func IsHTMLContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	htmlTypes := []string{
		"text/html",
		"application/xhtml+xml",
		"application/xhtml",
	}

	for _, htmlType := range htmlTypes {
		if strings.HasPrefix(contentType, htmlType) {
			return true
		}
	}

	return false
}
