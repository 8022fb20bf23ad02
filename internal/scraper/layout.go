package scraper

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/maltedev/amazon-seller-scraper/internal/browser"
	"github.com/maltedev/amazon-seller-scraper/internal/extract"
)

// SellerStrategy locates the seller identity on a product page. LinkAttr is
// empty for layouts that show only a name.
type SellerStrategy struct {
	Name     string
	Locator  string
	LinkAttr string
}

// Layout holds every locator the pipeline uses. Nothing outside this table
// knows about the marketplace's markup.
type Layout struct {
	BaseURL string

	// Search results page.
	Entries    string
	EntryTitle extract.FieldSpec
	EntryLink  string
	NextPage   []string

	// Product page.
	Price       []extract.Strategy
	PriceClean  []extract.Transform
	Brand       extract.FieldSpec
	ReviewCount extract.FieldSpec
	BoughtCount extract.FieldSpec
	ASIN        []extract.Strategy
	Badge       []extract.Strategy
	Seller      []SellerStrategy

	// Seller page. CompanyName, Phone and the address locators are relative
	// to InfoBlock.
	StoreRating   extract.FieldSpec
	InfoBlock     string
	CompanyName   extract.FieldSpec
	Phone         extract.FieldSpec
	AddressBlocks string
	AddressPart   string
	About         extract.FieldSpec
}

// SearchURL returns the first results page for keyword.
func (l *Layout) SearchURL(keyword string) string {
	return strings.TrimRight(l.BaseURL, "/") + "/s?k=" + url.QueryEscape(keyword)
}

var (
	asinPattern    = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	asinURLPattern = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})(?:[/?]|$)`)
	countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)

	errNotASIN = errors.New("value is not an ASIN")
)

// ASINFromURL extracts the ASIN from a product URL.
func ASINFromURL(productURL string) string {
	m := asinURLPattern.FindStringSubmatch(productURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func readASIN(el browser.Element) (string, error) {
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "ASIN"))
	text = strings.TrimLeft(text, ": ：")
	if !asinPattern.MatchString(text) {
		return "", errNotASIN
	}
	return text, nil
}

// readChoiceBadge reads the "Amazon's Choice" layout: primary and secondary
// label spans, or the whole wrapper text when the spans are missing.
func readChoiceBadge(el browser.Element) (string, error) {
	primary := extract.Text(el, `.//span[contains(@class,"ac-badge-text-primary")]`, "")
	secondary := extract.Text(el, `.//span[contains(@class,"ac-badge-text-secondary")]`, "")
	if label := strings.TrimSpace(primary + " " + secondary); label != "" {
		return extract.Collapse(label), nil
	}
	text, err := el.Text()
	return extract.Collapse(text), err
}

// readRankBadge reads the best-seller layout: the badge label and its
// category link.
func readRankBadge(el browser.Element) (string, error) {
	label := extract.Text(el, `.//*[contains(@class,"p13n-best-seller-badge")]`, "")
	if label == "" {
		text, err := el.Text()
		return extract.Collapse(text), err
	}
	if category := extract.Text(el, `.//span[contains(@class,"cat-link")]`, ""); category != "" {
		return extract.Collapse(label + " - " + category), nil
	}
	return extract.Collapse(label), nil
}

// countryOf returns the trailing two-letter country code of an address.
func countryOf(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	if countryPattern.MatchString(last) {
		return last
	}
	return ""
}

// DefaultLayout returns the locators for amazon.co.jp.
func DefaultLayout(baseURL string) *Layout {
	if baseURL == "" {
		baseURL = "https://www.amazon.co.jp"
	}

	stripNumber := extract.Strip(",", "，", "￥", "¥")

	return &Layout{
		BaseURL: baseURL,

		Entries: `//div[@data-component-type="s-search-result"]`,
		EntryTitle: extract.FieldSpec{
			Locator:    `.//h2//span`,
			Transforms: []extract.Transform{extract.Collapse},
		},
		EntryLink: `.//a`,
		NextPage: []string{
			`//div[@role="navigation"]/span/ul/li[last()]/span/a`,
			`css=a.s-pagination-next`,
		},

		Price: []extract.Strategy{
			{Name: "core-price", Locator: `//*[@id="corePriceDisplay_desktop_feature_div"]/div[1]/span[2]/span[2]/span[2]`},
			{Name: "price-whole", Locator: `//*[@id="corePriceDisplay_desktop_feature_div"]//span[contains(@class,"a-price-whole")]`},
		},
		PriceClean: []extract.Transform{stripNumber, extract.TrimSpace},
		Brand: extract.FieldSpec{
			Locator: `//a[@id="bylineInfo"]`,
			Transforms: []extract.Transform{
				extract.Strip("のストアを表示", "ブランド: ", "ブランド：", "Visit the ", " Store", "Brand: "),
				extract.TrimSpace,
			},
		},
		ReviewCount: extract.FieldSpec{
			Locator:    `//span[@id="acrCustomerReviewText"]`,
			Transforms: []extract.Transform{extract.Strip("個の評価", " ratings", " rating", ","), extract.TrimSpace},
		},
		BoughtCount: extract.FieldSpec{
			Locator:    `//*[@id="social-proofing-faceout-title-tk_bought"]`,
			Transforms: []extract.Transform{extract.Collapse},
		},
		ASIN: []extract.Strategy{
			{Name: "detail-table", Locator: `//*[@id="productDetails_detailBullets_sections1"]/tbody/tr[1]/td`, Read: readASIN},
			{Name: "detail-bullets", Locator: `//*[@id="detailBullets_feature_div"]//li[contains(., "ASIN")]/span/span[2]`, Read: readASIN},
			{Name: "detail-table", Locator: `//table[contains(@id,"productDetails")]//tr[th[contains(., "ASIN")]]/td`, Read: readASIN},
		},
		Badge: []extract.Strategy{
			{Name: "choice", Locator: `//*[@id="acBadge_feature_div"]/div[contains(@class,"ac-badge-wrapper")]`, Read: readChoiceBadge},
			{Name: "best-seller", Locator: `//*[@id="zeitgeistBadge_feature_div"]//div[contains(@class,"zg-badge-wrapper")]`, Read: readRankBadge},
		},
		Seller: []SellerStrategy{
			{Name: "profile-link", Locator: `//a[@id="sellerProfileTriggerId"]`, LinkAttr: "href"},
			{Name: "merchant-info", Locator: `//*[@id="merchant-info"]//a[contains(@href,"seller=")]`, LinkAttr: "href"},
			{Name: "offer-display", Locator: `//*[@id="merchantInfoFeature_feature_div"]//*[contains(@class,"offer-display-feature-text-message")]`},
		},

		StoreRating: extract.FieldSpec{
			Locator:    `//*[@id="seller-info-feedback-summary"]/span/a`,
			Transforms: []extract.Transform{extract.Collapse},
		},
		InfoBlock:     `//*[@id="page-section-detail-seller-info"]/div/div/div`,
		CompanyName:   extract.FieldSpec{Locator: `.//div[2]/span[2]`, Transforms: []extract.Transform{extract.TrimSpace}},
		Phone:         extract.FieldSpec{Locator: `.//div[3]/span[2]`, Transforms: []extract.Transform{extract.TrimSpace}},
		AddressBlocks: `.//div[contains(@class,"indent-left")]`,
		AddressPart:   `.//span`,
		About: extract.FieldSpec{
			Locator:    `(//*[@id="spp-expander-about-seller"]/div[1]/div[2] | //*[@id="spp-expander-about-seller"]/div)[last()]`,
			Transforms: []extract.Transform{extract.TrimSpace},
		},
	}
}
