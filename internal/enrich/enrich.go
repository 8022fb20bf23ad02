// Package enrich fills the seller columns of an existing result file by
// visiting each row's seller page again.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
	"github.com/maltedev/amazon-seller-scraper/internal/queue"
	"github.com/maltedev/amazon-seller-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-seller-scraper/internal/scraper"
	"github.com/maltedev/amazon-seller-scraper/internal/storage"
)

var ErrNoSellerLinks = errors.New("table has no seller_link column")

// SellerColumns are the columns enrichment writes.
var SellerColumns = []string{
	models.ColStoreRating,
	models.ColCompanyName,
	models.ColPhone,
	models.ColAddress,
	models.ColSellerCountry,
	models.ColEmail,
	models.ColCompanyURL,
	models.ColAbout,
}

type Options struct {
	MaxRetries  int
	SettleDelay time.Duration
	// Limiter spaces seller page visits and backs off on failures. Optional.
	Limiter *ratelimit.AdaptiveRateLimiter
	// Overwrite re-resolves rows that already have a company name.
	Overwrite bool
	// Checkpoint is called with the table after every enriched row.
	Checkpoint func(storage.Table) error
	Logger     *slog.Logger
}

type Result struct {
	Tasks       int
	Enriched    int
	Failed      int
	Interrupted bool
}

type Enricher struct {
	driver   browser.Driver
	resolver *scraper.SellerResolver
	opts     Options
	logger   *slog.Logger
}

func New(driver browser.Driver, resolver *scraper.SellerResolver, opts Options) *Enricher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		driver:   driver,
		resolver: resolver,
		opts:     opts,
		logger:   logger.With("component", "enricher"),
	}
}

// Run enriches t in place. Rows without a seller link, or sold by the
// marketplace operator, are left alone.
func (e *Enricher) Run(ctx context.Context, t *storage.Table) (Result, error) {
	if t.Index(models.ColSellerLink) < 0 {
		return Result{}, ErrNoSellerLinks
	}
	t.EnsureColumns(SellerColumns...)

	q := queue.NewInMemoryQueue()
	defer q.Close()

	for i := range t.Rows {
		link := t.Cell(i, models.ColSellerLink)
		if link == "" || link == models.Unavailable {
			continue
		}
		if !e.opts.Overwrite && t.Cell(i, models.ColCompanyName) != "" {
			continue
		}
		if err := q.Push(&queue.Task{
			ID:       strconv.Itoa(i),
			Row:      i,
			URL:      link,
			Merchant: t.Cell(i, models.ColMerchant),
		}); err != nil {
			return Result{}, fmt.Errorf("failed to queue row %d: %w", i, err)
		}
	}

	res := Result{Tasks: q.Size()}
	if res.Tasks == 0 {
		e.logger.Info("nothing to enrich")
		return res, nil
	}

	tabs, err := browser.NewTabs(ctx, e.driver, "", browser.TabsOptions{
		SettleDelay: e.opts.SettleDelay,
		Logger:      e.logger,
	})
	if err != nil {
		return res, err
	}
	defer tabs.Close()

	e.logger.Info("enrichment started", "tasks", res.Tasks)

	for {
		task, err := q.Pop(ctx)
		if errors.Is(err, queue.ErrQueueEmpty) || errors.Is(err, queue.ErrQueueClosed) {
			break
		}
		if err != nil {
			res.Interrupted = true
			break
		}

		if e.opts.Limiter != nil {
			if err := e.opts.Limiter.Wait(ctx); err != nil {
				res.Interrupted = true
				break
			}
		}

		info, err := e.resolver.Visit(ctx, tabs, task.URL)
		if err != nil {
			e.recordError()
			requeued, qErr := queue.Retry(q, task, err, e.opts.MaxRetries)
			if qErr != nil {
				return res, fmt.Errorf("failed to requeue row %d: %w", task.Row, qErr)
			}
			if !requeued {
				res.Failed++
				e.logger.Warn("seller page failed", "row", task.Row, "url", task.URL, "retries", task.Retries, "error", err)
			}
			continue
		}
		e.recordSuccess()

		apply(t, task.Row, info)
		res.Enriched++
		e.logger.Info("row enriched", "row", task.Row, "seller", task.Merchant, "company", info.CompanyName)

		if e.opts.Checkpoint != nil {
			if err := e.opts.Checkpoint(*t); err != nil {
				e.logger.Error("failed to checkpoint table", "error", err)
			}
		}
	}

	e.logger.Info("enrichment completed",
		"tasks", res.Tasks,
		"enriched", res.Enriched,
		"failed", res.Failed,
		"interrupted", res.Interrupted)

	return res, nil
}

func (e *Enricher) recordError() {
	if e.opts.Limiter != nil {
		e.opts.Limiter.RecordError()
	}
}

func (e *Enricher) recordSuccess() {
	if e.opts.Limiter != nil {
		e.opts.Limiter.RecordSuccess()
	}
}

func apply(t *storage.Table, row int, info models.SellerInfo) {
	rec := models.ProductRecord{SellerInfo: info}
	for _, col := range SellerColumns {
		t.Set(row, col, rec.Get(col))
	}
}
