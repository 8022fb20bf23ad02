package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser drives a Chromium session through playwright.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	ElementTimeout time.Duration
	NavRetries     int
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		ElementTimeout: 5 * time.Second,
		NavRetries:     3,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "ja-JP,ja;q=0.9,en;q=0.8",
		TimezoneID:     "Asia/Tokyo",
		Locale:         "ja-JP",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o *Options) withDefaults() *Options {
	d := DefaultOptions()
	out := *o
	if out.Timeout == 0 {
		out.Timeout = d.Timeout
	}
	if out.ElementTimeout == 0 {
		out.ElementTimeout = d.ElementTimeout
	}
	if out.NavRetries == 0 {
		out.NavRetries = d.NavRetries
	}
	if out.UserAgent == "" {
		out.UserAgent = d.UserAgent
	}
	if out.ViewportWidth == 0 || out.ViewportHeight == 0 {
		out.ViewportWidth, out.ViewportHeight = d.ViewportWidth, d.ViewportHeight
	}
	if out.Locale == "" {
		out.Locale = d.Locale
	}
	if out.TimezoneID == "" {
		out.TimezoneID = d.TimezoneID
	}
	if out.AcceptLanguage == "" {
		out.AcceptLanguage = d.AcceptLanguage
	}
	headers := make(map[string]string, len(d.ExtraHeaders)+1)
	for k, v := range d.ExtraHeaders {
		headers[k] = v
	}
	for k, v := range o.ExtraHeaders {
		headers[k] = v
	}
	headers["Accept-Language"] = out.AcceptLanguage
	out.ExtraHeaders = headers
	return &out
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.withDefaults()

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &pwPage{page: page, browser: b}, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}

func (b *Browser) navigateWithRetry(ctx context.Context, page playwright.Page, url string) error {
	var lastErr error

	for i := 0; i < b.opts.NavRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * time.Second):
			}
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err != nil {
			lastErr = err
			b.logger.Error("navigation failed", "error", err, "attempt", i+1)
			continue
		}

		if err := b.checkBotProtection(page); err != nil {
			b.logger.Error("bot protection check failed", "url", url, "error", err)
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", b.opts.NavRetries, lastErr)
}

// Interstitial markers Amazon shows instead of the requested page.
var (
	captchaMarkers = []string{
		"/errors/validateCaptcha",
		"表示されている文字を入力してください",
		"Type the characters you see in this image",
	}
	continueMarkers = []string{
		"ショッピングを続ける",
		"Continue shopping",
	}
	continueButtons = []string{
		`button:has-text("ショッピングを続ける")`,
		`button:has-text("Continue shopping")`,
		`input[type="submit"]`,
		`.a-button-primary`,
	}
)

// checkBotProtection returns ErrBlocked for a captcha page and clicks through
// the "continue shopping" interstitial when one is shown.
func (b *Browser) checkBotProtection(page playwright.Page) error {
	content, err := page.Content()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}

	if containsAny(content, captchaMarkers) {
		return ErrBlocked
	}

	if !containsAny(content, continueMarkers) {
		return nil
	}

	b.logger.Info("interstitial detected, attempting to continue")

	for _, selector := range continueButtons {
		button := page.Locator(selector).First()

		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		if err := button.Click(); err != nil {
			b.logger.Error("failed to click button", "selector", selector, "error", err)
			continue
		}

		page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		})

		newContent, _ := page.Content()
		if !containsAny(newContent, continueMarkers) {
			b.logger.Info("passed interstitial")
			return nil
		}
	}

	return fmt.Errorf("%w: could not pass interstitial", ErrBlocked)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// selector converts a locator into a playwright selector with an explicit
// engine prefix. Parenthesised XPath like "(//a | //b)[last()]" is not
// auto-detected by playwright.
func selector(locator string) string {
	kind, expr := ParseLocator(locator)
	return kind + "=" + expr
}

type pwPage struct {
	page    playwright.Page
	browser *Browser
}

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.browser.navigateWithRetry(ctx, p.page, url)
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Evaluate(expression string, args ...any) (any, error) {
	v, err := p.page.Evaluate(expression, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return v, nil
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

func (p *pwPage) Find(locator string) (Element, error) {
	return first(p.page.Locator(selector(locator)), p.browser.opts.ElementTimeout)
}

func (p *pwPage) FindAll(locator string) ([]Element, error) {
	return all(p.page.Locator(selector(locator)), p.browser.opts.ElementTimeout)
}

type pwElement struct {
	loc     playwright.Locator
	timeout time.Duration
}

func first(loc playwright.Locator, timeout time.Duration) (Element, error) {
	loc = loc.First()
	count, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve locator: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return &pwElement{loc: loc, timeout: timeout}, nil
}

func all(loc playwright.Locator, timeout time.Duration) ([]Element, error) {
	locs, err := loc.All()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve locator: %w", err)
	}
	out := make([]Element, 0, len(locs))
	for _, l := range locs {
		out = append(out, &pwElement{loc: l, timeout: timeout})
	}
	return out, nil
}

func (e *pwElement) ms() *float64 {
	return playwright.Float(float64(e.timeout.Milliseconds()))
}

func (e *pwElement) Find(locator string) (Element, error) {
	return first(e.loc.Locator(selector(locator)), e.timeout)
}

func (e *pwElement) FindAll(locator string) ([]Element, error) {
	return all(e.loc.Locator(selector(locator)), e.timeout)
}

func (e *pwElement) Text() (string, error) {
	text, err := e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: e.ms()})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *pwElement) Attribute(name string) (string, error) {
	return e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: e.ms()})
}

func (e *pwElement) Click() error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: e.ms()})
}
