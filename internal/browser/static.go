package browser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
)

// StaticOptions configures the HTTP-only driver.
type StaticOptions struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	// Transport replaces the HTTP transport, e.g. with an httpmock one.
	Transport http.RoundTripper
}

// StaticDriver fetches pages over plain HTTP with colly and evaluates
// locators against the parsed document. No JavaScript runs, so it only works
// for server-rendered markup; clicking an anchor follows its href.
type StaticDriver struct {
	collector      *colly.Collector
	acceptLanguage string
	logger         *slog.Logger
}

func NewStatic(opts StaticOptions) *StaticDriver {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultOptions().UserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = DefaultOptions().AcceptLanguage
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(opts.Timeout)
	if opts.Transport != nil {
		c.WithTransport(opts.Transport)
	}

	return &StaticDriver{
		collector:      c,
		acceptLanguage: opts.AcceptLanguage,
		logger:         slog.Default().With("component", "static-driver"),
	}
}

func (d *StaticDriver) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &staticPage{driver: d}, nil
}

func (d *StaticDriver) Close() error {
	return nil
}

// fetch downloads url and returns the parsed document and the final URL
// after redirects.
func (d *StaticDriver) fetch(ctx context.Context, url string) (*html.Node, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	// Clone shares the transport but not the callbacks.
	c := d.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", d.acceptLanguage)
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var (
		body     []byte
		finalURL = url
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL.String()
	})

	if err := c.Visit(url); err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", url, err)
	}

	d.logger.Debug("fetched page", "url", finalURL, "bytes", len(body))
	return doc, finalURL, nil
}

type staticPage struct {
	driver *StaticDriver
	doc    *html.Node
	url    string
	closed bool
}

func (p *staticPage) Navigate(ctx context.Context, url string) error {
	if p.closed {
		return fmt.Errorf("page closed")
	}
	doc, final, err := p.driver.fetch(ctx, url)
	if err != nil {
		return err
	}
	p.doc, p.url = doc, final
	return nil
}

func (p *staticPage) URL() string {
	return p.url
}

func (p *staticPage) Evaluate(string, ...any) (any, error) {
	return nil, ErrUnsupported
}

func (p *staticPage) Close() error {
	p.closed = true
	p.doc = nil
	return nil
}

func (p *staticPage) Find(locator string) (Element, error) {
	return findFirst(p, p.doc, locator)
}

func (p *staticPage) FindAll(locator string) ([]Element, error) {
	return findAll(p, p.doc, locator)
}

type staticElement struct {
	page *staticPage
	node *html.Node
}

func (e *staticElement) Find(locator string) (Element, error) {
	return findFirst(e.page, e.node, locator)
}

func (e *staticElement) FindAll(locator string) ([]Element, error) {
	return findAll(e.page, e.node, locator)
}

func (e *staticElement) Text() (string, error) {
	return strings.TrimSpace(htmlquery.InnerText(e.node)), nil
}

func (e *staticElement) Attribute(name string) (string, error) {
	return htmlquery.SelectAttr(e.node, name), nil
}

// Click follows an anchor's href in the owning page.
func (e *staticElement) Click() error {
	if e.node.Type != html.ElementNode || e.node.Data != "a" {
		return fmt.Errorf("%w: click on <%s>", ErrUnsupported, e.node.Data)
	}
	href := htmlquery.SelectAttr(e.node, "href")
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return fmt.Errorf("%w: anchor without navigable href", ErrUnsupported)
	}
	return e.page.Navigate(context.Background(), ResolveURL(e.page.url, href))
}

func queryNodes(top *html.Node, locator string) ([]*html.Node, error) {
	if top == nil {
		return nil, ErrNotFound
	}

	kind, expr := ParseLocator(locator)
	if kind == KindCSS {
		return goquery.NewDocumentFromNode(top).Find(expr).Nodes, nil
	}

	nodes, err := htmlquery.QueryAll(top, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return nodes, nil
}

func findFirst(page *staticPage, top *html.Node, locator string) (Element, error) {
	nodes, err := queryNodes(top, locator)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return &staticElement{page: page, node: n}, nil
		}
	}
	return nil, ErrNotFound
}

func findAll(page *staticPage, top *html.Node, locator string) ([]Element, error) {
	nodes, err := queryNodes(top, locator)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, &staticElement{page: page, node: n})
		}
	}
	return out, nil
}
