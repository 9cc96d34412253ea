package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carscout/internal/domain"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserClient fetches pages through headless Chrome for sites that render
// their listings with JavaScript. It satisfies the same Fetcher contract as
// the plain HTTP client, including politeness delays and block detection.
type BrowserClient struct {
	opts    Options
	ua      string
	logger  *zap.Logger
	ctxPool sync.Pool
}

// NewBrowserClient builds a BrowserClient sharing the session user-agent
// convention of the HTTP client.
func NewBrowserClient(pool *UAPool, opts Options, logger *zap.Logger) *BrowserClient {
	b := &BrowserClient{
		opts:   opts,
		ua:     pool.Pick(),
		logger: logger,
	}
	b.ctxPool.New = func() interface{} {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", ""),
			chromedp.Flag("disable-dev-shm-usage", ""),
			chromedp.UserAgent(b.ua),
		)
		allocCtx, _ := chromedp.NewExecAllocator(context.Background(), allocOpts...)
		return allocCtx
	}
	return b
}

// Fetch navigates to url and returns the rendered document.
func (b *BrowserClient) Fetch(ctx context.Context, url, referer string) (*PageResult, error) {
	if err := SleepBetween(ctx, b.opts.MinDelay, b.opts.MaxDelay); err != nil {
		return nil, err
	}

	allocCtx := b.ctxPool.Get().(context.Context)
	defer b.ctxPool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	taskCtx, tcancel := context.WithTimeout(taskCtx, b.opts.Timeout)
	defer tcancel()

	start := time.Now()
	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser fetch %s: %w", url, err)
	}

	if IsBlockedBody(html) {
		b.logger.Warn("challenge page served to browser client", zap.String("url", url))
		return nil, domain.ErrBlocked
	}

	return &PageResult{
		StatusCode: 200,
		Body:       html,
		FinalURL:   url,
		Elapsed:    time.Since(start),
	}, nil
}
