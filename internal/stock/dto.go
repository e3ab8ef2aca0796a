package stock

import (
	"time"

	"github.com/shopspring/decimal"
)

type receiveRequest struct {
	ProductID      int64            `json:"product_id" validate:"required,gt=0"`
	Quantity       int              `json:"quantity" validate:"required,gt=0"`
	PurchaseCost   decimal.Decimal  `json:"purchase_cost" validate:"required"`
	PurchaseDate   *time.Time       `json:"purchase_date,omitempty"`
	PaidAmount     decimal.Decimal  `json:"paid_amount"`
	PriceOverride  *decimal.Decimal `json:"price_override,omitempty"`
	OverrideReason string           `json:"override_reason,omitempty"`
	Note           string           `json:"note,omitempty"`
}

type idsRequest struct {
	StockItemIDs []int64 `json:"stock_item_ids" validate:"required,min=1,dive,gt=0"`
}

type listResponse struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
}
