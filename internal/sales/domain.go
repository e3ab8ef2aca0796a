package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a sales order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// PaymentStatus is derived from paid amount against the final amount.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "PAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPending PaymentStatus = "PENDING"
)

// Order groups stock unit consumptions under one customer and invoice.
type Order struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    int64           `json:"customer_id"`
	Status        OrderStatus     `json:"status"`
	OrderTotal    decimal.Decimal `json:"order_total"`
	Discount      decimal.Decimal `json:"discount"`
	FinalAmount   decimal.Decimal `json:"final_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod string          `json:"payment_method"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	SaleDate      *time.Time      `json:"sale_date,omitempty"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Lines         []Line          `json:"lines,omitempty"`
}

// Line freezes one unit's price at the moment of sale. Later rate changes
// never touch a placed order.
type Line struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	StockItemID int64           `json:"stock_item_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	PriceSource string          `json:"price_source"`
	RateUsedID  *int64          `json:"rate_used_id,omitempty"`
}

// Payment is one installment against an order.
type Payment struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	PaidAt    time.Time       `json:"paid_at"`
	CreatedBy int64           `json:"created_by"`
}

// ItemRef points at one stock unit, by numeric id or by tag.
type ItemRef struct {
	StockItemID int64  `json:"stock_item_id,omitempty"`
	TagID       string `json:"tag_id,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
}

// ListFilter narrows order queries.
type ListFilter struct {
	Status     OrderStatus
	CustomerID int64
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

var (
	ErrNotFound        = errors.New("sales order not found")
	ErrInvalidInput    = errors.New("invalid sale input")
	ErrInvalidDiscount = errors.New("discount exceeds order total")
	ErrInvalidPayment  = errors.New("invalid payment")
	// ErrInvalidState means the order is not in a status that allows the
	// requested operation, e.g. cancelling a cancelled order.
	ErrInvalidState = errors.New("invalid order state")
)

// DerivePaymentStatus maps a paid amount against the amount due.
func DerivePaymentStatus(paid, due decimal.Decimal) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(due):
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentPending
	}
}
