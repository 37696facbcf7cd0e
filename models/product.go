// Package models defines data structures for the tracker.
package models

import (
	"encoding/json"
	"time"
)

// Specifications maps group name to feature name to comma-joined values.
type Specifications map[string]map[string]string

// ProductRecord is the canonical product snapshot assembled by a run.
// Rating, ReviewCount, OffersCount and the price range are nil when the
// corresponding sub-step produced no data.
type ProductRecord struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Category       string            `json:"category"`
	CategoryID     string            `json:"category_id,omitempty"`
	Specifications Specifications    `json:"specifications"`
	Images         []json.RawMessage `json:"images"`
	Rating         *float64          `json:"rating,omitempty"`
	ReviewCount    *int              `json:"reviews_count,omitempty"`
	OffersCount    *int              `json:"offers_count,omitempty"`
	MinPrice       *int64            `json:"min_price,omitempty"`
	MaxPrice       *int64            `json:"max_price,omitempty"`
}

// ApplyReviews merges a review aggregate into the record.
func (p *ProductRecord) ApplyReviews(r *ReviewAggregate) {
	if r == nil {
		return
	}
	rating := r.Rating
	p.Rating = &rating
	if r.ReviewCount != nil {
		count := *r.ReviewCount
		p.ReviewCount = &count
	}
}

// ApplyOffers merges the offer set summary into the record.
func (p *ProductRecord) ApplyOffers(s *OfferSet) {
	if s == nil {
		return
	}
	minPrice, maxPrice := s.MinPrice, s.MaxPrice
	count := s.OffersCount
	p.MinPrice = &minPrice
	p.MaxPrice = &maxPrice
	p.OffersCount = &count
}

// OfferRecord is one seller listing for a product. ID is the surrogate key
// assigned by the store and is zero until persisted.
type OfferRecord struct {
	ID         int64  `json:"-" csv:"-"`
	ProductID  int64  `json:"-" csv:"product_id"`
	SellerID   string `json:"merchant_id" csv:"merchant_id"`
	SellerName string `json:"merchant_name" csv:"merchant_name"`
	Price      int64  `json:"price" csv:"price"`
}

// ReviewAggregate is the review summary returned by the review API.
type ReviewAggregate struct {
	Rating      float64
	ReviewCount *int
}

// RawOfferEntry is one element of the offers array as served by the API.
// Merchant ids are opaque; numeric ids are kept in their decimal form.
type RawOfferEntry struct {
	MerchantID   string
	MerchantName string
	Price        int64
}

// RawOfferPage is a single decoded page of the offer API.
type RawOfferPage struct {
	Page        int
	OffersCount int
	Offers      []RawOfferEntry
}

// OfferSet is the reduced result of a complete pagination.
type OfferSet struct {
	OffersCount int
	PageCount   int
	Offers      []OfferRecord
	MinPrice    int64
	MaxPrice    int64
}

// RunResult summarises a single pipeline run.
type RunResult struct {
	RunID      string
	ProductURL string
	State      string
	Product    *ProductRecord
	Offers     []OfferRecord
	Skipped    []string
	StartTime  time.Time
	EndTime    time.Time
}
