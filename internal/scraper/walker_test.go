package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-seller-scraper/internal/contact"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

type pipeline struct {
	driver   *trackingDriver
	recorder *memoryRecorder
	walker   *Walker
	metrics  *Metrics
	inferred int
}

func newPipeline(t *testing.T, mt *httpmock.MockTransport, opts WalkerOptions) *pipeline {
	t.Helper()

	p := &pipeline{driver: newTrackingDriver(mt), metrics: NewMetrics()}
	p.recorder = &memoryRecorder{driver: p.driver}

	layout := DefaultLayout(base)
	resolver, err := NewSellerResolver(layout, ResolverOptions{
		CacheSize: 16,
		Metrics:   p.metrics,
		Inferrer: contact.InferFunc(func(ctx context.Context, text string) (contact.Contact, error) {
			p.inferred++
			return contact.Contact{Email: "ignored@example.com", URL: "https://clay-kobo.jp"}, nil
		}),
	})
	require.NoError(t, err)

	opts.Metrics = p.metrics
	p.walker = NewWalker(p.driver, layout, NewProductVisitor(layout, resolver, nil), p.recorder, opts)
	return p
}

func TestWalker_Run(t *testing.T) {
	p := newPipeline(t, newSite(t), WalkerOptions{})

	snap, err := p.walker.Run(context.Background(), "clay")
	require.NoError(t, err)

	assert.Equal(t, "clay", snap.Keyword)
	assert.Equal(t, 2, snap.Pages)
	assert.Equal(t, 3, snap.Entries)
	assert.Equal(t, 3, snap.Records)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 0, snap.Failed)
	assert.False(t, snap.Running)
	assert.False(t, snap.Interrupted)

	require.Len(t, p.recorder.records, 3)

	first := p.recorder.records[0]
	assert.Equal(t, models.ProductRecord{
		Title:       "Clay A",
		ProductURL:  base + "/dp/B0TEST0001/ref=sr_1_1",
		ASIN:        "B0TEST0001",
		Price:       "1280",
		Brand:       "クレイ工房",
		ReviewCount: "1234",
		BoughtCount: "過去1か月で100点以上購入されました",
		Badge:       "Amazon's Choice",
		SellerInfo: models.SellerInfo{
			Merchant:      "クレイ工房",
			SellerLink:    base + "/sp?seller=A1",
			StoreRating:   "4.5 out of 5 (98% positive)",
			CompanyName:   "株式会社クレイ工房",
			Phone:         "03-1234-5678",
			Address:       "1-2-3,渋谷区,東京都,JP",
			SellerCountry: "JP",
			Email:         "info@clay-kobo.jp",
			CompanyURL:    "https://clay-kobo.jp",
			About:         "手作り粘土の専門店です。お問い合わせ: info@clay-kobo.jp",
		},
	}, first)

	second := p.recorder.records[1]
	assert.Equal(t, "Clay C", second.Title)
	assert.Equal(t, "B0TEST0003", second.ASIN)
	assert.Equal(t, "ヘラ堂", second.Brand)
	assert.Equal(t, "ベストセラー1位 - 粘土", second.Badge)
	assert.Empty(t, second.Price)
	assert.Equal(t, models.OperatorSold("Amazon.co.jp"), second.SellerInfo)

	third := p.recorder.records[2]
	assert.Equal(t, "B0TEST0004", third.ASIN)
	assert.Equal(t, first.SellerInfo, third.SellerInfo)

	// The seller page was visited once and its about text inferred once.
	assert.Equal(t, 1, p.inferred)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.SellerLookups.WithLabelValues("visited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.SellerLookups.WithLabelValues("cache_hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.SellerLookups.WithLabelValues("operator")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.PagesTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.metrics.EntriesTotal.WithLabelValues(OutcomeRecorded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.EntriesTotal.WithLabelValues(OutcomeSkipped)))
}

func TestWalker_TabsBalancedPerEntry(t *testing.T) {
	p := newPipeline(t, newSite(t), WalkerOptions{})

	_, err := p.walker.Run(context.Background(), "clay")
	require.NoError(t, err)

	// Only the search page is open whenever a record is handed over.
	for i, open := range p.recorder.openAtAdd {
		assert.Equal(t, 1, open, "record %d", i)
	}
	// Search page, product page and seller page at the deepest point.
	assert.Equal(t, 3, p.driver.max)
	assert.Equal(t, 0, p.driver.Open())
}

func TestWalker_ProductPageFailure(t *testing.T) {
	mt := newSite(t)
	mt.RegisterResponder("GET", base+"/dp/B0TEST0003", httpmock.NewStringResponder(503, "unavailable"))

	p := newPipeline(t, mt, WalkerOptions{})

	snap, err := p.walker.Run(context.Background(), "clay")
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Entries)
	assert.Equal(t, 2, snap.Records)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 0, p.driver.Open())
	for _, open := range p.recorder.openAtAdd {
		assert.Equal(t, 1, open)
	}
}

func TestWalker_SellerPageFailureKeepsRecord(t *testing.T) {
	mt := newSite(t)
	mt.RegisterResponder("GET", base+"/sp?seller=A1", httpmock.NewStringResponder(404, "gone"))

	p := newPipeline(t, mt, WalkerOptions{MaxPages: 1})

	snap, err := p.walker.Run(context.Background(), "clay")
	require.NoError(t, err)

	require.Equal(t, 2, snap.Records)
	assert.Equal(t, models.SellerInfo{
		Merchant:   "クレイ工房",
		SellerLink: base + "/sp?seller=A1",
	}, p.recorder.records[0].SellerInfo)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.SellerLookups.WithLabelValues("failed")))
}

func TestWalker_Limits(t *testing.T) {
	tests := []struct {
		name    string
		opts    WalkerOptions
		pages   int
		entries int
		records int
		skipped int
	}{
		{name: "one page", opts: WalkerOptions{MaxPages: 1}, pages: 1, entries: 2, records: 2, skipped: 1},
		{name: "one entry per page", opts: WalkerOptions{MaxPerPage: 1}, pages: 2, entries: 2, records: 2, skipped: 0},
		{name: "unbounded", opts: WalkerOptions{}, pages: 2, entries: 3, records: 3, skipped: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, newSite(t), tt.opts)

			snap, err := p.walker.Run(context.Background(), "clay")
			require.NoError(t, err)

			assert.Equal(t, tt.pages, snap.Pages)
			assert.Equal(t, tt.entries, snap.Entries)
			assert.Equal(t, tt.records, snap.Records)
			assert.Equal(t, tt.skipped, snap.Skipped)
			assert.Len(t, p.recorder.records, tt.records)
		})
	}
}

func TestWalker_SearchPageFailure(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("GET", base+"/s?k=clay", httpmock.NewStringResponder(500, "boom"))

	p := newPipeline(t, mt, WalkerOptions{})

	snap, err := p.walker.Run(context.Background(), "clay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open search page")
	assert.Zero(t, snap.Entries)
	assert.Zero(t, p.recorder.flushes)
}

func TestWalker_CancelledContextStillFlushes(t *testing.T) {
	p := newPipeline(t, newSite(t), WalkerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	p.recorder.onAppend = cancel

	snap, err := p.walker.Run(ctx, "clay")
	require.NoError(t, err)

	assert.True(t, snap.Interrupted)
	assert.Equal(t, 1, snap.Records)
	assert.Equal(t, 1, snap.Pages)
	assert.Equal(t, 1, p.recorder.flushes)
	assert.Equal(t, 0, p.driver.Open())
}

func TestWalker_FlushError(t *testing.T) {
	p := newPipeline(t, newSite(t), WalkerOptions{MaxPages: 1})
	p.recorder.flushErr = errors.New("disk full")

	snap, err := p.walker.Run(context.Background(), "clay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 2, snap.Records)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.CheckpointTotal.WithLabelValues("error")))
}

func TestWalker_StatsVisibleAfterRun(t *testing.T) {
	p := newPipeline(t, newSite(t), WalkerOptions{MaxPages: 1})

	snap, err := p.walker.Run(context.Background(), "clay")
	require.NoError(t, err)

	assert.Equal(t, snap, p.walker.Stats().Snapshot())
	assert.False(t, snap.StartedAt.IsZero())
	assert.False(t, snap.FinishedAt.Before(snap.StartedAt))
}
