package catalog

import "github.com/shopspring/decimal"

type productRequest struct {
	SKU            string           `json:"sku" validate:"required,max=40"`
	Name           string           `json:"name" validate:"required,max=200"`
	MetalType      string           `json:"metal_type" validate:"required,oneof=GOLD SILVER PLATINUM"`
	Purity         string           `json:"purity" validate:"required,max=20"`
	NetWeight      decimal.Decimal  `json:"net_weight" validate:"required"`
	WastagePercent decimal.Decimal  `json:"wastage_percent"`
	MakingCharges  decimal.Decimal  `json:"making_charges"`
	StoneWeight    decimal.Decimal  `json:"stone_weight"`
	StoneValue     decimal.Decimal  `json:"stone_value"`
	PriceOverride  *decimal.Decimal `json:"price_override,omitempty"`
	OverrideReason string           `json:"override_reason,omitempty" validate:"max=400"`
	CollectionName string           `json:"collection_name,omitempty" validate:"max=100"`
}

type listResponse struct {
	Products   []Product `json:"products"`
	Page       int       `json:"page"`
	PerPage    int       `json:"per_page"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
}
