package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/amazon-seller-scraper/internal/ratelimit"
)

// Tabs is the stack of open pages for one run. Index 0 is the root page
// (the search results); every page opened for an entry is pushed on top and
// must be popped before the next entry starts.
type Tabs struct {
	driver  Driver
	pages   []Page
	settle  time.Duration
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
}

type TabsOptions struct {
	// SettleDelay is slept after every navigation.
	SettleDelay time.Duration
	// Limiter spaces out page opens. Optional.
	Limiter ratelimit.RateLimiter
	Logger  *slog.Logger
}

// NewTabs opens the root page and navigates it to rootURL. An empty rootURL
// leaves the root blank.
func NewTabs(ctx context.Context, driver Driver, rootURL string, opts TabsOptions) (*Tabs, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tabs{
		driver:  driver,
		settle:  opts.SettleDelay,
		limiter: opts.Limiter,
		logger:  logger.With("component", "tabs"),
	}

	root, err := driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open root page: %w", err)
	}

	if rootURL != "" {
		if err := root.Navigate(ctx, rootURL); err != nil {
			root.Close()
			return nil, fmt.Errorf("failed to load root page: %w", err)
		}
		if err := t.Settle(ctx); err != nil {
			root.Close()
			return nil, err
		}
	}

	t.pages = append(t.pages, root)
	return t, nil
}

func (t *Tabs) Root() Page {
	return t.pages[0]
}

func (t *Tabs) Current() Page {
	return t.pages[len(t.pages)-1]
}

func (t *Tabs) Depth() int {
	return len(t.pages)
}

// Open navigates a new page to url and makes it current. On failure the
// page is discarded and the stack is unchanged.
func (t *Tabs) Open(ctx context.Context, url string) (Page, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	page, err := t.driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if err := page.Navigate(ctx, url); err != nil {
		if cerr := page.Close(); cerr != nil {
			t.logger.Debug("failed to close page after navigation error", "url", url, "error", cerr)
		}
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	t.pages = append(t.pages, page)
	t.logger.Debug("opened page", "url", url, "depth", len(t.pages))

	if err := t.Settle(ctx); err != nil {
		return page, err
	}
	return page, nil
}

// Settle blocks for the configured post-navigation delay.
func (t *Tabs) Settle(ctx context.Context) error {
	if t.settle <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.settle)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CloseTop closes the current page and returns to the one below it.
func (t *Tabs) CloseTop() error {
	if len(t.pages) <= 1 {
		return ErrRootPage
	}

	top := t.pages[len(t.pages)-1]
	t.pages = t.pages[:len(t.pages)-1]

	if err := top.Close(); err != nil {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}

// Unwind closes pages until the stack is back to depth. The root page
// always survives.
func (t *Tabs) Unwind(depth int) error {
	if depth < 1 {
		depth = 1
	}

	var errs []error
	for len(t.pages) > depth {
		if err := t.CloseTop(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		t.logger.Warn("errors while unwinding tabs", "error", err)
		return err
	}
	return nil
}

// Close tears down every page including the root.
func (t *Tabs) Close() error {
	var errs []error
	for i := len(t.pages) - 1; i >= 0; i-- {
		if err := t.pages[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.pages = t.pages[:0]
	return errors.Join(errs...)
}
