package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"carscout/internal/domain"
	"carscout/internal/fetch"
	"carscout/internal/monitoring"
	"carscout/internal/processor"
	"carscout/internal/sites"
	"carscout/internal/storage"

	"go.uber.org/zap"
)

// Options tunes a Coordinator.
type Options struct {
	// Workers bounds how many site sub-jobs run at once. Kept small so the
	// service stays polite even across sites.
	Workers int
	// SiteGapMin/Max is the random pause before a site's first fetch.
	SiteGapMin time.Duration
	SiteGapMax time.Duration
	// MaxConsecutiveErrors aborts a site after this many error-only pages
	// in a row.
	MaxConsecutiveErrors int
}

func DefaultOptions() Options {
	return Options{
		Workers:              2,
		SiteGapMin:           5 * time.Second,
		SiteGapMax:           10 * time.Second,
		MaxConsecutiveErrors: 3,
	}
}

// Coordinator orchestrates a scrape run across all enabled sites. At most
// one run exists system-wide; a start request during a run is rejected, not
// queued.
type Coordinator struct {
	registry *sites.Registry
	store    storage.Store
	proc     *processor.Processor
	httpF    fetch.Fetcher
	browserF fetch.Fetcher
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	opts     Options

	mu          sync.Mutex
	status      domain.RunStatus
	stopFlag    bool
	cancel      context.CancelFunc
	running     map[int64]*domain.ScrapeLog
	lastSummary *domain.RunSummary
	done        chan struct{}
}

func New(registry *sites.Registry, store storage.Store, proc *processor.Processor,
	httpF, browserF fetch.Fetcher, metrics *monitoring.Metrics, logger *zap.Logger, opts Options) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxConsecutiveErrors < 1 {
		opts.MaxConsecutiveErrors = 3
	}
	return &Coordinator{
		registry: registry,
		store:    store,
		proc:     proc,
		httpF:    httpF,
		browserF: browserF,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		status:   domain.RunIdle,
		running:  make(map[int64]*domain.ScrapeLog),
	}
}

// Start begins a run in the background. It returns domain.ErrRunInProgress
// when a run is already active, leaving that run untouched.
func (c *Coordinator) Start(ctx context.Context) error {
	settings, err := c.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	c.mu.Lock()
	if c.status == domain.RunRunning {
		c.mu.Unlock()
		return domain.ErrRunInProgress
	}
	// The run outlives the triggering request, so it gets its own context;
	// cancel is reserved for process shutdown, not cooperative stop.
	runCtx, cancel := context.WithCancel(context.Background())
	c.status = domain.RunRunning
	c.stopFlag = false
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.runAll(runCtx, settings)
	}()
	return nil
}

// Stop requests a cooperative stop. Site sub-jobs notice it at page
// boundaries; in-flight fetches are allowed to complete.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == domain.RunRunning {
		c.stopFlag = true
	}
}

// Shutdown cancels the run context outright. Used on process exit.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.stopFlag = true
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// publish stores a snapshot of an in-flight log under the coordinator lock.
// runSite mutates its own log freely between publishes; Status only ever sees
// these immutable copies.
func (c *Coordinator) publish(log *domain.ScrapeLog) {
	cp := *log
	cp.Errors = append([]string(nil), log.Errors...)
	c.mu.Lock()
	c.running[cp.ID] = &cp
	c.mu.Unlock()
}

func (c *Coordinator) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopFlag
}

// Status reports whether a run is active plus the in-flight and recent logs.
func (c *Coordinator) Status(ctx context.Context) (bool, []domain.ScrapeLog, []domain.ScrapeLog, error) {
	c.mu.Lock()
	isRunning := c.status == domain.RunRunning
	inFlight := make([]domain.ScrapeLog, 0, len(c.running))
	for _, l := range c.running {
		inFlight = append(inFlight, *l)
	}
	c.mu.Unlock()

	recent, err := c.store.RecentScrapeLogs(ctx, 10)
	if err != nil {
		return isRunning, inFlight, nil, err
	}
	return isRunning, inFlight, recent, nil
}

// LastSummary returns the summary of the most recently finished run, or nil.
func (c *Coordinator) LastSummary() *domain.RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSummary == nil {
		return nil
	}
	cp := *c.lastSummary
	return &cp
}

func (c *Coordinator) runAll(ctx context.Context, settings *domain.Settings) {
	started := time.Now().UTC()
	summary := domain.RunSummary{StartedAt: started}

	var enabled []string
	for _, name := range c.registry.Names() {
		if settings.SiteEnabled(name) {
			enabled = append(enabled, name)
		}
	}
	c.logger.Info("scrape run started",
		zap.Strings("sites", enabled), zap.Int("workers", c.opts.Workers))

	// Bounded worker pool over site sub-jobs. Pages within a site stay
	// strictly sequential; only sites run concurrently.
	var (
		wg    sync.WaitGroup
		smu   sync.Mutex
		tasks = make(chan string)
	)
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range tasks {
				log := c.runSite(ctx, name, settings)
				smu.Lock()
				summary.SitesScraped++
				summary.ListingsFound += log.ListingsFound
				summary.ListingsNew += log.ListingsNew
				summary.ListingsUpdated += log.ListingsUpdated
				summary.ListingsRemoved += log.ListingsRemoved
				if log.IsBlocked {
					summary.SitesBlocked++
				}
				smu.Unlock()
			}
		}()
	}
	for _, name := range enabled {
		tasks <- name
	}
	close(tasks)
	wg.Wait()

	completed := time.Now().UTC()
	summary.CompletedAt = &completed

	c.mu.Lock()
	if c.stopFlag {
		summary.Status = domain.RunStopped
	} else {
		summary.Status = domain.RunCompleted
	}
	c.status = summary.Status
	c.lastSummary = &summary
	c.cancel = nil
	c.mu.Unlock()

	c.metrics.IncRuns(string(summary.Status))
	c.logger.Info("scrape run finished",
		zap.String("status", string(summary.Status)),
		zap.Int("found", summary.ListingsFound),
		zap.Int("new", summary.ListingsNew),
		zap.Int("updated", summary.ListingsUpdated),
		zap.Int("removed", summary.ListingsRemoved),
		zap.Int("blocked_sites", summary.SitesBlocked))
}

// runSite executes one site sub-job: fetch pages sequentially, extract,
// process, and finalize exactly one terminal ScrapeLog.
func (c *Coordinator) runSite(ctx context.Context, name string, settings *domain.Settings) *domain.ScrapeLog {
	log := &domain.ScrapeLog{
		SiteName:  name,
		Status:    domain.ScrapeRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := c.store.CreateScrapeLog(ctx, log); err != nil {
		c.logger.Error("could not create scrape log", zap.String("site", name), zap.Error(err))
		log.Status = domain.ScrapeFailed
		log.Errors = append(log.Errors, err.Error())
		return log
	}

	c.publish(log)
	defer func() {
		c.mu.Lock()
		delete(c.running, log.ID)
		c.mu.Unlock()
	}()

	extractor, err := c.registry.Get(name)
	if err != nil {
		c.finalize(ctx, log, domain.ScrapeFailed, err)
		return log
	}
	fetcher := c.httpF
	if extractor.RenderJS() && c.browserF != nil {
		fetcher = c.browserF
	}

	// Pause between sites so the wider crawl stays polite.
	if err := fetch.SleepBetween(ctx, c.opts.SiteGapMin, c.opts.SiteGapMax); err != nil {
		c.finalize(ctx, log, domain.ScrapeStopped, nil)
		return log
	}

	var (
		seenURLs    []string
		consecutive int
		referer     string
		terminal    = domain.ScrapeCompleted
	)

	maxPages := settings.MaxPagesPerSite
	if maxPages < 1 {
		maxPages = 1
	}

	for page := 1; page <= maxPages; page++ {
		if c.stopped() || ctx.Err() != nil {
			terminal = domain.ScrapeStopped
			break
		}

		pageURL := extractor.ListURL(page)
		res, err := fetcher.Fetch(ctx, pageURL, referer)
		if err != nil {
			if errors.Is(err, domain.ErrBlocked) {
				log.IsBlocked = true
				log.Errors = append(log.Errors, fmt.Sprintf("page %d: %v", page, err))
				c.metrics.IncErrors("blocked")
				terminal = domain.ScrapeBlocked
				break
			}
			if ctx.Err() != nil {
				terminal = domain.ScrapeStopped
				break
			}
			log.Errors = append(log.Errors, fmt.Sprintf("page %d: %v", page, err))
			c.metrics.IncErrors("fetch_failed")
			terminal = domain.ScrapeFailed
			break
		}
		referer = pageURL
		c.metrics.ObserveFetch(name, res.Elapsed)

		listings, hasNext, skipped := extractor.Extract(res)
		log.PagesScraped++
		if skipped > 0 {
			log.Errors = append(log.Errors, fmt.Sprintf("page %d: %d malformed listings skipped", page, skipped))
			c.metrics.IncErrors("extraction")
		}
		if len(listings) == 0 && skipped > 0 {
			consecutive++
			if consecutive >= c.opts.MaxConsecutiveErrors {
				log.Errors = append(log.Errors, fmt.Sprintf("aborted after %d consecutive extraction failures", consecutive))
				terminal = domain.ScrapeFailed
				break
			}
			c.publish(log)
			continue
		}
		consecutive = 0

		stats, err := c.proc.ProcessBatch(ctx, listings, settings)
		if err != nil {
			log.Errors = append(log.Errors, err.Error())
			c.metrics.IncErrors("storage")
			terminal = domain.ScrapeFailed
			break
		}
		log.ListingsFound += stats.Found
		log.ListingsNew += stats.New
		log.ListingsUpdated += stats.Updated
		log.Errors = append(log.Errors, stats.Warnings...)
		for _, l := range listings {
			seenURLs = append(seenURLs, l.URL)
		}
		c.publish(log)

		if !hasNext {
			break
		}
	}

	// Removal accounting only makes sense after a full pass; a site that
	// aborted early has not observed its whole catalogue.
	if terminal == domain.ScrapeCompleted {
		removed, err := c.proc.FinishSite(ctx, name, seenURLs)
		if err != nil {
			log.Errors = append(log.Errors, err.Error())
		} else {
			log.ListingsRemoved = removed
		}
	}

	c.finalize(ctx, log, terminal, nil)
	return log
}

// finalize moves a log to its single terminal state and persists it.
func (c *Coordinator) finalize(ctx context.Context, log *domain.ScrapeLog, status domain.ScrapeStatus, cause error) {
	if cause != nil {
		log.Errors = append(log.Errors, cause.Error())
	}
	now := time.Now().UTC()
	log.Status = status
	log.CompletedAt = &now

	// Persist even when the run context was cancelled.
	uctx := ctx
	if uctx.Err() != nil {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := c.store.UpdateScrapeLog(uctx, log); err != nil {
		c.logger.Error("could not finalize scrape log",
			zap.String("site", log.SiteName), zap.Error(err))
	}
	c.logger.Info("site sub-job finished",
		zap.String("site", log.SiteName),
		zap.String("status", string(status)),
		zap.Int("pages", log.PagesScraped),
		zap.Int("found", log.ListingsFound),
		zap.Bool("blocked", log.IsBlocked))
}

// TestSiteResult summarizes a one-page, non-persisting extraction test.
type TestSiteResult struct {
	Site          string `json:"site"`
	Status        string `json:"status"`
	ListingsFound int    `json:"listings_found"`
	HasNextPage   bool   `json:"has_next_page"`
	Skipped       int    `json:"skipped"`
	DurationMs    int64  `json:"duration_ms"`
}

// TestSite fetches a single page of one site and reports what the extractor
// sees, without touching storage.
func (c *Coordinator) TestSite(ctx context.Context, name string) (*TestSiteResult, error) {
	extractor, err := c.registry.Get(name)
	if err != nil {
		return nil, err
	}
	fetcher := c.httpF
	if extractor.RenderJS() && c.browserF != nil {
		fetcher = c.browserF
	}

	start := time.Now()
	res, err := fetcher.Fetch(ctx, extractor.ListURL(1), "")
	if err != nil {
		return nil, err
	}
	listings, hasNext, skipped := extractor.Extract(res)
	return &TestSiteResult{
		Site:          name,
		Status:        "success",
		ListingsFound: len(listings),
		HasNextPage:   hasNext,
		Skipped:       skipped,
		DurationMs:    time.Since(start).Milliseconds(),
	}, nil
}
