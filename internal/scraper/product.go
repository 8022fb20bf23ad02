package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/extract"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

// ErrNoProductLink marks a search entry without a product link. The entry
// is skipped; it is not a failure.
var ErrNoProductLink = errors.New("entry has no product link")

// ProductVisitor builds one record from one search result entry.
type ProductVisitor struct {
	layout  *Layout
	sellers *SellerResolver
	logger  *slog.Logger
}

func NewProductVisitor(layout *Layout, sellers *SellerResolver, logger *slog.Logger) *ProductVisitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductVisitor{
		layout:  layout,
		sellers: sellers,
		logger:  logger.With("component", "product-visitor"),
	}
}

// Visit opens the entry's product page in a new tab, extracts the product
// and seller fields and closes every tab it opened before returning,
// whatever the outcome.
func (v *ProductVisitor) Visit(ctx context.Context, tabs *browser.Tabs, entry browser.Element) (models.ProductRecord, error) {
	l := v.layout

	var rec models.ProductRecord
	rec.Title = l.EntryTitle.From(entry)

	href := extract.Attr(entry, l.EntryLink, "href", "")
	if href == "" {
		return rec, ErrNoProductLink
	}
	rec.ProductURL = browser.ResolveURL(tabs.Root().URL(), href)

	depth := tabs.Depth()
	defer tabs.Unwind(depth)

	page, err := tabs.Open(ctx, rec.ProductURL)
	if err != nil {
		return rec, fmt.Errorf("failed to open product page: %w", err)
	}

	price, _ := extract.First(page, l.Price, "")
	for _, t := range l.PriceClean {
		price = t(price)
	}
	rec.Price = price

	rec.Brand = l.Brand.From(page)
	rec.ReviewCount = l.ReviewCount.From(page)
	rec.BoughtCount = l.BoughtCount.From(page)

	var via string
	rec.ASIN, via = extract.First(page, l.ASIN, "")
	if rec.ASIN == "" {
		rec.ASIN = ASINFromURL(rec.ProductURL)
		via = "url"
	}

	rec.Badge, _ = extract.First(page, l.Badge, "")

	rec.SellerInfo = v.sellers.Resolve(ctx, tabs, page)

	v.logger.Debug("product extracted",
		"asin", rec.ASIN,
		"asin_source", via,
		"seller", rec.Merchant)

	return rec, nil
}
