package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
	"github.com/maltedev/amazon-seller-scraper/internal/ratelimit"
)

// Recorder receives every completed record in order.
type Recorder interface {
	Append(ctx context.Context, rec models.ProductRecord) error
	Flush() error
}

type WalkerOptions struct {
	// MaxPages and MaxPerPage cap the walk; 0 means unbounded.
	MaxPages    int
	MaxPerPage  int
	SettleDelay time.Duration
	Limiter     ratelimit.RateLimiter
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Walker drives a search from the first results page through the
// following ones, visiting every entry in order.
type Walker struct {
	driver  browser.Driver
	layout  *Layout
	visitor *ProductVisitor
	sink    Recorder
	opts    WalkerOptions
	stats   *Stats
	logger  *slog.Logger
}

func NewWalker(driver browser.Driver, layout *Layout, visitor *ProductVisitor, sink Recorder, opts WalkerOptions) *Walker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		driver:  driver,
		layout:  layout,
		visitor: visitor,
		sink:    sink,
		opts:    opts,
		stats:   &Stats{},
		logger:  logger.With("component", "walker"),
	}
}

func (w *Walker) Stats() *Stats {
	return w.stats
}

// Run walks the search results for keyword. It only fails when the search
// page cannot be opened or the final flush fails; everything that goes
// wrong with a single entry is counted and logged.
func (w *Walker) Run(ctx context.Context, keyword string) (Snapshot, error) {
	searchURL := w.layout.SearchURL(keyword)
	w.stats.start(keyword)

	tabs, err := browser.NewTabs(ctx, w.driver, searchURL, browser.TabsOptions{
		SettleDelay: w.opts.SettleDelay,
		Limiter:     w.opts.Limiter,
		Logger:      w.logger,
	})
	if err != nil {
		w.stats.finish(false)
		return w.stats.Snapshot(), fmt.Errorf("failed to open search page: %w", err)
	}
	defer func() {
		if err := tabs.Close(); err != nil {
			w.logger.Warn("failed to close tabs", "error", err)
		}
	}()

	w.logger.Info("search started", "keyword", keyword, "url", searchURL)

	for pageNum := 1; ; pageNum++ {
		w.stats.addPage()
		w.opts.Metrics.IncPage()

		w.processPage(ctx, tabs, pageNum)

		if ctx.Err() != nil {
			w.logger.Info("search interrupted", "page", pageNum)
			break
		}
		if w.opts.MaxPages > 0 && pageNum >= w.opts.MaxPages {
			w.logger.Info("page limit reached", "pages", pageNum)
			break
		}
		if !w.nextPage(ctx, tabs) {
			w.logger.Info("no more pages", "pages", pageNum)
			break
		}
	}

	flushErr := w.sink.Flush()
	w.opts.Metrics.IncCheckpoint(flushErr)
	w.stats.finish(ctx.Err() != nil)

	snap := w.stats.Snapshot()
	w.logger.Info("search completed",
		"pages", snap.Pages,
		"records", snap.Records,
		"skipped", snap.Skipped,
		"failed", snap.Failed)

	if flushErr != nil {
		return snap, fmt.Errorf("failed to write results: %w", flushErr)
	}
	return snap, nil
}

func (w *Walker) processPage(ctx context.Context, tabs *browser.Tabs, pageNum int) {
	entries, err := tabs.Root().FindAll(w.layout.Entries)
	if err != nil {
		w.logger.Warn("failed to list entries", "page", pageNum, "error", err)
		return
	}

	if w.opts.MaxPerPage > 0 && len(entries) > w.opts.MaxPerPage {
		entries = entries[:w.opts.MaxPerPage]
	}

	w.logger.Info("processing page", "page", pageNum, "entries", len(entries))

	for i, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		rec, err := w.visitor.Visit(ctx, tabs, entry)
		switch {
		case errors.Is(err, ErrNoProductLink):
			w.record(OutcomeSkipped)
			w.logger.Debug("entry skipped", "page", pageNum, "index", i, "title", rec.Title)
		case err != nil:
			w.record(OutcomeFailed)
			w.logger.Warn("entry failed", "page", pageNum, "index", i, "url", rec.ProductURL, "error", err)
		default:
			err := w.sink.Append(ctx, rec)
			w.opts.Metrics.IncCheckpoint(err)
			if err != nil {
				w.logger.Error("failed to checkpoint results", "error", err)
			}
			w.record(OutcomeRecorded)
			w.logger.Info("record added", "page", pageNum, "index", i, "asin", rec.ASIN, "seller", rec.Merchant)
		}
	}
}

func (w *Walker) record(outcome string) {
	w.stats.addEntry(outcome)
	w.opts.Metrics.IncEntry(outcome)
}

// nextPage clicks the first usable next-page control. A missing or
// disabled control means the last page has been reached.
func (w *Walker) nextPage(ctx context.Context, tabs *browser.Tabs) bool {
	root := tabs.Root()

	for _, locator := range w.layout.NextPage {
		next, err := root.Find(locator)
		if err != nil {
			continue
		}

		if disabled(next) {
			return false
		}

		if err := next.Click(); err != nil {
			w.logger.Warn("failed to click next page", "locator", locator, "error", err)
			continue
		}

		return tabs.Settle(ctx) == nil
	}

	return false
}

func disabled(el browser.Element) bool {
	if v, _ := el.Attribute("aria-disabled"); v == "true" {
		return true
	}
	class, _ := el.Attribute("class")
	return strings.Contains(class, "s-pagination-disabled")
}
