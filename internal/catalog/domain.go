// Package catalog manages the jewelry product catalog.
package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/pricing"
	"github.com/aurum-erp/aurum-erp/internal/rates"
)

// Product is a catalog definition. A product describes how units of it are
// priced; physical units live in the stock ledger.
type Product struct {
	ID             int64           `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	MetalType      rates.MetalType `json:"metal_type"`
	Purity         string          `json:"purity"`
	NetWeight      decimal.Decimal `json:"net_weight"`
	WastagePercent decimal.Decimal `json:"wastage_percent"`
	MakingCharges  decimal.Decimal `json:"making_charges"`
	StoneWeight    decimal.Decimal `json:"stone_weight"`
	StoneValue     decimal.Decimal `json:"stone_value"`

	// PriceOverride bypasses calculation everywhere when set.
	PriceOverride  *decimal.Decimal `json:"price_override,omitempty"`
	OverrideReason string           `json:"override_reason,omitempty"`

	// CalculatedPrice is advisory and may be stale; LastPriceUpdate and
	// RateUsedID exist for staleness checks. Live sales never trust it.
	CalculatedPrice decimal.Decimal `json:"calculated_price"`
	LastPriceUpdate *time.Time      `json:"last_price_update,omitempty"`
	RateUsedID      *int64          `json:"rate_used_id,omitempty"`

	CollectionName string     `json:"collection_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// PriceQuote is the result of pricing a product right now.
type PriceQuote struct {
	ProductID      int64              `json:"product_id"`
	Overridden     bool               `json:"overridden"`
	OverrideReason string             `json:"override_reason,omitempty"`
	RateID         int64              `json:"rate_id,omitempty"`
	Breakdown      *pricing.Breakdown `json:"breakdown,omitempty"`
	FinalPrice     decimal.Decimal    `json:"final_price"`
}

// ListFilter narrows product listings.
type ListFilter struct {
	MetalType      rates.MetalType
	Purity         string
	CollectionName string
	Search         string
	Page           int
	PerPage        int
}

var (
	// ErrNotFound indicates a missing or soft-deleted product.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrInvalidProduct rejects malformed product input.
	ErrInvalidProduct = errors.New("catalog: invalid product")
	// ErrDuplicateSKU indicates a SKU collision.
	ErrDuplicateSKU = errors.New("catalog: duplicate sku")
)
