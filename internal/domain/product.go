package domain

import "strings"

// MarketplaceID identifies the feed source. Constant for every run of this
// service.
const MarketplaceID = 1

// Product is a normalized catalog record. PostgreSQL is the system of record;
// the same document is denormalized into Elasticsearch for querying. The json
// tags match the search index field names.
//
// A Product is immutable after construction except for SimilarSKUs, which the
// similarity phase sets exactly once.
type Product struct {
	UUID                 string   `json:"uuid"`
	MarketplaceID        int      `json:"marketplace_id"`
	ProductID            int64    `json:"product_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Brand                string   `json:"brand"`
	SellerID             int      `json:"seller_id"`
	SellerName           string   `json:"seller_name"`
	FirstImageURL        string   `json:"first_image_url"`
	CategoryID           int      `json:"category_id"`
	CategoryLvl1         *string  `json:"category_lvl_1"`
	CategoryLvl2         *string  `json:"category_lvl_2"`
	CategoryLvl3         *string  `json:"category_lvl_3"`
	CategoryRemaining    *string  `json:"category_remaining"`
	PriceBeforeDiscounts float64  `json:"price_before_discounts"`
	Discount             float64  `json:"discount"`
	PriceAfterDiscounts  float64  `json:"price_after_discounts"`
	Currency             string   `json:"currency"`
	Barcode              int64    `json:"barcode"`
	SimilarSKUs          []string `json:"similar_sku,omitempty"`
}

// ProductRef is the projection of a stored product used by the similarity
// phase.
type ProductRef struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
}

// SetCategoryPath fills the three explicit category levels and flattens any
// deeper levels into CategoryRemaining, joined with "/". Levels are nil when
// the path is shorter.
func (p *Product) SetCategoryPath(path []string) {
	if len(path) > 0 {
		p.CategoryLvl1 = &path[0]
	}
	if len(path) > 1 {
		p.CategoryLvl2 = &path[1]
	}
	if len(path) > 2 {
		p.CategoryLvl3 = &path[2]
	}
	if len(path) > 3 {
		remaining := strings.Join(path[3:], "/")
		p.CategoryRemaining = &remaining
	}
}
