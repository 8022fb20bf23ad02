package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/contact"
	"github.com/maltedev/amazon-seller-scraper/internal/extract"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

type ResolverOptions struct {
	// OperatorName is the seller name the marketplace itself sells under.
	OperatorName string
	// Inferrer is asked for contact details the about text does not yield
	// by pattern. Nil disables inference.
	Inferrer     contact.Inferrer
	InferTimeout time.Duration
	// CacheSize bounds the per-run seller cache; 0 disables it.
	CacheSize int
	Metrics   *Metrics
	Logger    *slog.Logger
}

// SellerResolver turns the seller reference on a product page into company
// details from the seller's own page. It never fails: anything it cannot
// find is left empty.
type SellerResolver struct {
	layout       *Layout
	operator     string
	inferrer     contact.Inferrer
	inferTimeout time.Duration
	cache        *lru.Cache[string, models.SellerInfo]
	metrics      *Metrics
	logger       *slog.Logger
}

func NewSellerResolver(layout *Layout, opts ResolverOptions) (*SellerResolver, error) {
	if opts.OperatorName == "" {
		opts.OperatorName = "Amazon.co.jp"
	}
	if opts.InferTimeout == 0 {
		opts.InferTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &SellerResolver{
		layout:       layout,
		operator:     opts.OperatorName,
		inferrer:     opts.Inferrer,
		inferTimeout: opts.InferTimeout,
		metrics:      opts.Metrics,
		logger:       logger.With("component", "seller-resolver"),
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, models.SellerInfo](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create seller cache: %w", err)
		}
		r.cache = cache
	}

	return r, nil
}

// IsOperator reports whether name is the marketplace operator.
func (r *SellerResolver) IsOperator(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), r.operator)
}

// Resolve reads the seller reference from the product page and fills the
// seller part of a record.
func (r *SellerResolver) Resolve(ctx context.Context, tabs *browser.Tabs, page browser.Page) models.SellerInfo {
	name, link, via := r.locate(page)

	switch {
	case name == "" && link == "":
		r.logger.Debug("no seller reference found", "url", page.URL())
		r.metrics.IncSellerLookup("none")
		return models.SellerInfo{}
	case r.IsOperator(name):
		r.metrics.IncSellerLookup("operator")
		return models.OperatorSold(name)
	case link == "":
		r.metrics.IncSellerLookup("name_only")
		return models.SellerInfo{Merchant: name}
	}

	r.logger.Debug("seller located", "seller", name, "strategy", via)
	return r.ResolveLink(ctx, tabs, name, browser.ResolveURL(page.URL(), link))
}

// ResolveLink fetches seller details from link. A seller page that cannot
// be opened yields just the name and link.
func (r *SellerResolver) ResolveLink(ctx context.Context, tabs *browser.Tabs, name, link string) models.SellerInfo {
	info, err := r.Visit(ctx, tabs, link)
	if err != nil {
		r.logger.Warn("failed to open seller page", "seller", name, "url", link, "error", err)
		return models.SellerInfo{Merchant: name, SellerLink: link}
	}
	info.Merchant = name
	return info
}

// Visit opens the seller page in a new tab, extracts it and closes the tab
// again. Only a failure to open the page is returned.
func (r *SellerResolver) Visit(ctx context.Context, tabs *browser.Tabs, link string) (models.SellerInfo, error) {
	if r.cache != nil {
		if info, ok := r.cache.Get(link); ok {
			r.metrics.IncSellerLookup("cache_hit")
			return info, nil
		}
	}

	depth := tabs.Depth()
	defer tabs.Unwind(depth)

	page, err := tabs.Open(ctx, link)
	if err != nil {
		r.metrics.IncSellerLookup("failed")
		return models.SellerInfo{}, fmt.Errorf("failed to open seller page: %w", err)
	}

	info := r.extractSellerPage(ctx, page)
	info.SellerLink = link
	r.metrics.IncSellerLookup("visited")

	if r.cache != nil {
		r.cache.Add(link, info)
	}
	return info, nil
}

func (r *SellerResolver) locate(page browser.Scope) (name, link, via string) {
	for _, s := range r.layout.Seller {
		name = extract.Text(page, s.Locator, "")
		if s.LinkAttr != "" {
			link = extract.Attr(page, s.Locator, s.LinkAttr, "")
		}
		if name != "" || link != "" {
			return name, link, s.Name
		}
	}
	return "", "", ""
}

func (r *SellerResolver) extractSellerPage(ctx context.Context, page browser.Page) models.SellerInfo {
	l := r.layout

	info := models.SellerInfo{
		StoreRating: l.StoreRating.From(page),
		About:       l.About.From(page),
	}

	block := extract.Find(page, l.InfoBlock)
	info.CompanyName = l.CompanyName.From(block)
	info.Phone = l.Phone.From(block)

	parts := extract.All(block, l.AddressBlocks, extract.ChildText(l.AddressPart))
	info.Address = strings.Join(parts, ",")
	info.SellerCountry = countryOf(parts)

	c := r.contactFrom(ctx, info.About)
	info.Email, info.CompanyURL = c.Email, c.URL

	return info
}

// contactFrom extracts email and URL from the about text by pattern and
// escalates to the inferrer for whatever is still missing.
func (r *SellerResolver) contactFrom(ctx context.Context, about string) contact.Contact {
	c := contact.FromText(about)
	if about == "" || c.Complete() || r.inferrer == nil {
		return c
	}

	ctx, cancel := context.WithTimeout(ctx, r.inferTimeout)
	defer cancel()

	inferred, err := r.inferrer.Infer(ctx, about)
	if err != nil {
		r.logger.Warn("contact inference failed", "error", err)
		r.metrics.IncInference("error")
		return c
	}
	r.metrics.IncInference("ok")
	return c.Merge(inferred)
}
