package domain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Listing and Match are opaque objects owned by the marketplace service.
// Only a few well-known keys are read here.
type (
	Listing map[string]any
	Match   map[string]any
)

// ID returns the listingId key as a string, or "" when absent.
func (l Listing) ID() string {
	switch v := l["listingId"].(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Listing types.
const (
	ListingSupply = "SUPPLY"
	ListingDemand = "DEMAND"
)

// Marketplace is the listing and matching service.
type Marketplace interface {
	CreateListing(ctx context.Context, draft ListingDraft) (Listing, error)
	FindMatches(ctx context.Context, listingID string, maxResults int, minScore decimal.Decimal) ([]Match, error)
	SearchListings(ctx context.Context, q SearchQuery) (SearchPage, error)
	MerchantListings(ctx context.Context, merchantID, status string, limit int) ([]Listing, error)
	Stats(ctx context.Context, merchantID string) (map[string]any, error)
}

// ProductInfo is what could be extracted from a free-text listing message.
type ProductInfo struct {
	Title        string              `json:"title,omitempty"`
	Quantity     decimal.NullDecimal `json:"quantity"`
	QuantityUnit string              `json:"quantityUnit,omitempty"`
	PriceMin     decimal.NullDecimal `json:"priceMin"`
	Category     string              `json:"category,omitempty"`
}

// Complete reports whether enough was extracted to create a listing.
func (p ProductInfo) Complete() bool {
	return p.Title != "" && p.Quantity.Valid
}

type ListingDraft struct {
	ListingType string      `json:"listingType"`
	PublisherID string      `json:"publisherId"`
	Product     ProductInfo `json:"product"`
}

type SearchQuery struct {
	Keyword     string `json:"keyword,omitempty"`
	Category    string `json:"category,omitempty"`
	ListingType string `json:"listingType,omitempty"`
	PageSize    int    `json:"pageSize"`
}

type SearchPage struct {
	Listings   []Listing `json:"listings"`
	TotalCount int       `json:"totalCount"`
}

// ActionResult reports what the business action for a text turn did.
type ActionResult struct {
	Success       bool           `json:"success"`
	NeedMoreInfo  bool           `json:"needMoreInfo,omitempty"`
	MissingFields []string       `json:"missingFields,omitempty"`
	ExtractedInfo *ProductInfo   `json:"extractedInfo,omitempty"`
	ListingID     string         `json:"listingId,omitempty"`
	Matches       []Match        `json:"matches,omitempty"`
	MatchCount    int            `json:"matchCount,omitempty"`
	Listings      []Listing      `json:"listings,omitempty"`
	TotalCount    int            `json:"totalCount,omitempty"`
	Stats         map[string]any `json:"stats,omitempty"`
	ChatMode      bool           `json:"chatMode,omitempty"`
	Error         string         `json:"error,omitempty"`
}
