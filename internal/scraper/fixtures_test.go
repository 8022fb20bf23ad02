package scraper

import (
	"context"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

const base = "https://www.amazon.co.jp"

const searchPage1 = `<html><body>
<div data-component-type="s-search-result"><a class="img" href="/dp/B0TEST0001/ref=sr_1_1"><img src="a.jpg"></a><h2><a href="/dp/B0TEST0001/ref=sr_1_1"><span>Clay A</span></a></h2></div>
<div data-component-type="s-search-result"><h2><span>Sponsored banner</span></h2></div>
<div data-component-type="s-search-result"><a href="/dp/B0TEST0003"><img src="c.jpg"></a><h2><span>Clay C</span></h2></div>
<div role="navigation"><span><ul><li><span>1</span></li><li><span><a href="/s?k=clay&amp;page=2">次へ</a></span></li></ul></span></div>
</body></html>`

const searchPage2 = `<html><body>
<div data-component-type="s-search-result"><a href="/dp/B0TEST0004"><img src="d.jpg"></a><h2><span>Clay D</span></h2></div>
<div role="navigation"><span><ul><li><span><a href="/s?k=clay">1</a></span></li><li><span class="s-pagination-item s-pagination-next s-pagination-disabled">次へ</span></li></ul></span></div>
</body></html>`

const productA = `<html><body>
<a id="bylineInfo" href="/stores/clay">クレイ工房のストアを表示</a>
<span id="acrCustomerReviewText">1,234個の評価</span>
<div id="corePriceDisplay_desktop_feature_div"><div><span>-10%</span><span><span>hidden</span><span><span>￥</span><span>1,280</span></span></span></div></div>
<span id="social-proofing-faceout-title-tk_bought"><span>過去1か月で100点以上購入されました</span></span>
<div id="acBadge_feature_div"><div class="ac-badge-wrapper"><span class="ac-badge-text-primary">Amazon's</span><span class="ac-badge-text-secondary">Choice</span></div></div>
<div id="merchantInfoFeature_feature_div"><div class="offer-display-feature-text"><a id="sellerProfileTriggerId" href="/sp?seller=A1">クレイ工房</a></div></div>
<table id="productDetails_detailBullets_sections1"><tr><th>ASIN</th><td> B0TEST0001 </td></tr></table>
</body></html>`

const productC = `<html><body>
<a id="bylineInfo">ブランド: ヘラ堂</a>
<div id="zeitgeistBadge_feature_div"><div class="zg-badge-wrapper"><a href="/bestsellers"><i class="p13n-best-seller-badge">ベストセラー1位</i></a><span class="cat-link">粘土</span></div></div>
<div id="merchantInfoFeature_feature_div"><span class="a-size-small offer-display-feature-text-message">Amazon.co.jp</span></div>
</body></html>`

const productD = `<html><body>
<a id="bylineInfo">クレイ工房のストアを表示</a>
<div id="detailBullets_feature_div"><ul><li><span><span>ASIN : </span><span>B0TEST0004</span></span></li></ul></div>
<div id="merchantInfoFeature_feature_div"><a id="sellerProfileTriggerId" href="/sp?seller=A1">クレイ工房</a></div>
</body></html>`

const sellerA1 = `<html><body>
<div id="seller-info-feedback-summary"><span><a href="#">4.5 out of 5 (98% positive)</a></span></div>
<div id="spp-expander-about-seller"><div><p>手作り粘土の専門店です。お問い合わせ: info@clay-kobo.jp</p></div></div>
<div id="page-section-detail-seller-info"><div><div><div>
<div><span>詳細な出品者情報</span></div>
<div><span>販売業者:</span><span>株式会社クレイ工房</span></div>
<div><span>電話番号:</span><span>03-1234-5678</span></div>
<div><span>住所:</span></div>
<div class="a-row indent-left"><span>1-2-3</span></div>
<div class="a-row indent-left"><span>渋谷区</span></div>
<div class="a-row indent-left"><span>東京都</span></div>
<div class="a-row indent-left"><span>JP</span></div>
</div></div></div></div>
</body></html>`

// newSite serves the fixture pages. Extra responders can override them.
func newSite(t *testing.T) *httpmock.MockTransport {
	t.Helper()
	mt := httpmock.NewMockTransport()
	pages := map[string]string{
		base + "/s?k=clay":                 searchPage1,
		base + "/s?k=clay&page=2":          searchPage2,
		base + "/dp/B0TEST0001/ref=sr_1_1": productA,
		base + "/dp/B0TEST0003":            productC,
		base + "/dp/B0TEST0004":            productD,
		base + "/sp?seller=A1":             sellerA1,
	}
	for url, body := range pages {
		mt.RegisterResponder("GET", url, httpmock.NewStringResponder(200, body))
	}
	return mt
}

// trackingDriver counts open pages so tests can check that every tab
// opened for an entry is closed again.
type trackingDriver struct {
	browser.Driver
	mu   sync.Mutex
	open int
	max  int
}

func newTrackingDriver(mt *httpmock.MockTransport) *trackingDriver {
	return &trackingDriver{Driver: browser.NewStatic(browser.StaticOptions{Transport: mt})}
}

func (d *trackingDriver) NewPage(ctx context.Context) (browser.Page, error) {
	p, err := d.Driver.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.open++
	if d.open > d.max {
		d.max = d.open
	}
	d.mu.Unlock()
	return &trackedPage{Page: p, driver: d}, nil
}

func (d *trackingDriver) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type trackedPage struct {
	browser.Page
	driver *trackingDriver
	closed bool
}

func (p *trackedPage) Close() error {
	if !p.closed {
		p.closed = true
		p.driver.mu.Lock()
		p.driver.open--
		p.driver.mu.Unlock()
	}
	return p.Page.Close()
}

// memoryRecorder collects records and notes how many pages were open at
// the moment each record was appended.
type memoryRecorder struct {
	driver    *trackingDriver
	records   []models.ProductRecord
	openAtAdd []int
	flushes   int
	flushErr  error
	onAppend  func()
}

func (r *memoryRecorder) Append(ctx context.Context, rec models.ProductRecord) error {
	r.records = append(r.records, rec)
	if r.driver != nil {
		r.openAtAdd = append(r.openAtAdd, r.driver.Open())
	}
	if r.onAppend != nil {
		r.onAppend()
	}
	return nil
}

func (r *memoryRecorder) Flush() error {
	r.flushes++
	return r.flushErr
}
