package sales

import (
	"github.com/shopspring/decimal"
)

type createSaleRequest struct {
	CustomerID    int64           `json:"customer_id" validate:"required,gt=0"`
	Items         []itemRefDTO    `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal `json:"discount"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=CASH CARD UPI BANK_TRANSFER"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	AsPending     bool            `json:"as_pending"`
}

type itemRefDTO struct {
	StockItemID int64  `json:"stock_item_id,omitempty" validate:"omitempty,gt=0"`
	TagID       string `json:"tag_id,omitempty"`
	Quantity    int    `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

type recordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Method string          `json:"method" validate:"required,oneof=CASH CARD UPI BANK_TRANSFER"`
}

type listResponse struct {
	Orders     []Order `json:"orders"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
}
