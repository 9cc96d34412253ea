package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"carscout/internal/domain"

	"go.uber.org/zap"
)

// PageResult is the outcome of one successful page fetch.
type PageResult struct {
	StatusCode int
	Body       string
	FinalURL   string
	Elapsed    time.Duration
}

// Fetcher retrieves a single page. Implementations must be safe for
// concurrent use by multiple site sub-jobs.
type Fetcher interface {
	Fetch(ctx context.Context, url, referer string) (*PageResult, error)
}

// Options tunes the politeness and retry behaviour of a Client.
type Options struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Timeout    time.Duration
	// Backoff is the base wait before the first retry; it doubles per
	// attempt with jitter on top. Zero means the 2s default.
	Backoff time.Duration
}

// DefaultOptions matches the delays the target sites tolerate.
func DefaultOptions() Options {
	return Options{
		MinDelay:   1 * time.Second,
		MaxDelay:   3 * time.Second,
		MaxRetries: 3,
		Timeout:    20 * time.Second,
	}
}

// clientStatusError marks a 4xx response other than a block (403/429). It is
// permanent for the requested URL and is never retried.
type clientStatusError struct {
	code int
}

func (e *clientStatusError) Error() string {
	return fmt.Sprintf("client error: %d", e.code)
}

// blockMarkers are body substrings that identify an active refusal. A page
// matching one is classified blocked and never retried.
var blockMarkers = []string{
	"access denied",
	"captcha",
	"cloudflare",
	"unusual traffic",
	"request blocked",
	"are you a robot",
}

// Client is the polite HTTP client shared by all extractors. One user agent
// is chosen at construction and kept for the whole session.
type Client struct {
	http      *http.Client
	userAgent string
	opts      Options
	logger    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewClient builds a Client with a session user agent drawn from the pool.
func NewClient(pool *UAPool, opts Options, logger *zap.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
		},
		userAgent: pool.Pick(),
		opts:      opts,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch retrieves url, sleeping a random politeness delay first and retrying
// transient failures with exponential backoff. A 403/429 or a body matching a
// block marker returns domain.ErrBlocked immediately.
func (c *Client) Fetch(ctx context.Context, url, referer string) (*PageResult, error) {
	if err := c.politeSleep(ctx, c.opts.MinDelay, c.opts.MaxDelay); err != nil {
		return nil, err
	}

	var lastErr error
	backoff := c.opts.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		res, err := c.doRequest(ctx, url, referer)
		if err == nil {
			return res, nil
		}
		var cse *clientStatusError
		if err == domain.ErrBlocked || errors.As(err, &cse) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		if attempt < c.opts.MaxRetries {
			// Jittered exponential backoff between attempts.
			wait := backoff + time.Duration(c.intn(int(backoff/2)))
			c.logger.Warn("fetch failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(err))
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", url, c.opts.MaxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, url, referer string) (*PageResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-IE,en;q=0.9")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrBlocked
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error: %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// The page is gone or the request is malformed; retrying the same
		// URL cannot help.
		return nil, &clientStatusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if IsBlockedBody(string(body)) {
		return nil, domain.ErrBlocked
	}

	return &PageResult{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		FinalURL:   resp.Request.URL.String(),
		Elapsed:    time.Since(start),
	}, nil
}

// IsBlockedBody reports whether a response body looks like a challenge or
// denial page rather than real content.
func IsBlockedBody(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// politeSleep waits a uniform random duration in [min, max], honouring
// cancellation. This is the primary anti-blocking mechanism.
func (c *Client) politeSleep(ctx context.Context, min, max time.Duration) error {
	if max <= min {
		return sleepCtx(ctx, min)
	}
	span := int(max - min)
	return sleepCtx(ctx, min+time.Duration(c.intn(span)))
}

func (c *Client) intn(n int) int {
	if n <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Intn(n)
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SleepBetween exposes the context-aware random delay for callers that pace
// themselves between sites rather than between pages.
func SleepBetween(ctx context.Context, min, max time.Duration) error {
	if max <= min {
		return sleepCtx(ctx, min)
	}
	span := int64(max - min)
	return sleepCtx(ctx, min+time.Duration(rand.Int63n(span)))
}
