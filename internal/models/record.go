package models

import (
	"fmt"
	"time"
)

// Unavailable marks seller company fields that cannot exist because the
// marketplace operator itself sells the product. It is distinct from the
// empty string, which means "looked for but not found".
const Unavailable = "N/A (sold by operator)"

// Column keys in persisted order.
const (
	ColTitle         = "title"
	ColProductURL    = "product_url"
	ColASIN          = "asin"
	ColPrice         = "price"
	ColBrand         = "brand"
	ColReviewCount   = "review_count"
	ColBoughtCount   = "bought_count"
	ColBadge         = "badge"
	ColMerchant      = "merchant"
	ColSellerLink    = "seller_link"
	ColStoreRating   = "store_rating"
	ColCompanyName   = "company_name"
	ColPhone         = "phone"
	ColAddress       = "address"
	ColSellerCountry = "seller_country"
	ColEmail         = "email"
	ColCompanyURL    = "company_url"
	ColAbout         = "about"
)

var columns = []string{
	ColTitle, ColProductURL, ColASIN, ColPrice, ColBrand, ColReviewCount,
	ColBoughtCount, ColBadge, ColMerchant, ColSellerLink, ColStoreRating,
	ColCompanyName, ColPhone, ColAddress, ColSellerCountry, ColEmail,
	ColCompanyURL, ColAbout,
}

// Columns returns every record column in persisted order.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// ProductRecord is one flat output row. Every field is always present;
// missing values are empty strings.
type ProductRecord struct {
	Title       string `json:"title"`
	ProductURL  string `json:"product_url"`
	ASIN        string `json:"asin"`
	Price       string `json:"price"`
	Brand       string `json:"brand"`
	ReviewCount string `json:"review_count"`
	BoughtCount string `json:"bought_count"`
	Badge       string `json:"badge"`
	SellerInfo
}

// SellerInfo is the seller-level part of a record.
type SellerInfo struct {
	Merchant      string `json:"merchant"`
	SellerLink    string `json:"seller_link"`
	StoreRating   string `json:"store_rating"`
	CompanyName   string `json:"company_name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	SellerCountry string `json:"seller_country"`
	Email         string `json:"email"`
	CompanyURL    string `json:"company_url"`
	About         string `json:"about"`
}

// OperatorSold returns the seller info for a product sold by the marketplace
// operator: the name is kept, every company field is Unavailable.
func OperatorSold(name string) SellerInfo {
	return SellerInfo{
		Merchant:      name,
		StoreRating:   Unavailable,
		CompanyName:   Unavailable,
		Phone:         Unavailable,
		Address:       Unavailable,
		SellerCountry: Unavailable,
		Email:         Unavailable,
		CompanyURL:    Unavailable,
		About:         Unavailable,
	}
}

func (r *ProductRecord) field(key string) *string {
	switch key {
	case ColTitle:
		return &r.Title
	case ColProductURL:
		return &r.ProductURL
	case ColASIN:
		return &r.ASIN
	case ColPrice:
		return &r.Price
	case ColBrand:
		return &r.Brand
	case ColReviewCount:
		return &r.ReviewCount
	case ColBoughtCount:
		return &r.BoughtCount
	case ColBadge:
		return &r.Badge
	case ColMerchant:
		return &r.Merchant
	case ColSellerLink:
		return &r.SellerLink
	case ColStoreRating:
		return &r.StoreRating
	case ColCompanyName:
		return &r.CompanyName
	case ColPhone:
		return &r.Phone
	case ColAddress:
		return &r.Address
	case ColSellerCountry:
		return &r.SellerCountry
	case ColEmail:
		return &r.Email
	case ColCompanyURL:
		return &r.CompanyURL
	case ColAbout:
		return &r.About
	}
	return nil
}

// Get returns the value of a column, or "" for an unknown key.
func (r ProductRecord) Get(key string) string {
	if p := r.field(key); p != nil {
		return *p
	}
	return ""
}

// Set assigns a column value.
func (r *ProductRecord) Set(key, value string) error {
	p := r.field(key)
	if p == nil {
		return fmt.Errorf("unknown column %q", key)
	}
	*p = value
	return nil
}

// Values returns the record as a row in the given column order.
func (r ProductRecord) Values(cols []string) []string {
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = r.Get(c)
	}
	return row
}

// RecordFromRow rebuilds a record from a header/row pair. Unknown headers
// are ignored so derived files with extra columns still load.
func RecordFromRow(headers, row []string) ProductRecord {
	var r ProductRecord
	for i, h := range headers {
		if i >= len(row) {
			break
		}
		_ = r.Set(h, row[i])
	}
	return r
}

// ValidateColumns reports the first key that is not a record column.
func ValidateColumns(cols []string) error {
	var probe ProductRecord
	for _, c := range cols {
		if probe.field(c) == nil {
			return fmt.Errorf("unknown column %q", c)
		}
	}
	return nil
}

// RunInfo describes one pipeline run.
type RunInfo struct {
	ID        string    `json:"id"`
	Keyword   string    `json:"keyword"`
	StartedAt time.Time `json:"started_at"`
}
