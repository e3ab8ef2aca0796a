package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/pricing"
)

// Status tracks where a unit sits in its lifecycle. Transitions are
// AVAILABLE -> RESERVED -> SOLD, with RESERVED -> AVAILABLE on release and
// SOLD -> AVAILABLE on sale cancellation.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusReserved  Status = "RESERVED"
	StatusSold      Status = "SOLD"
)

// Item is one physical unit of a product. The tag id and barcode are
// assigned at receipt and never change; purchase cost is fixed at receipt
// and independent of later rate movements.
type Item struct {
	ID               int64            `json:"id"`
	ProductID        int64            `json:"product_id"`
	TagID            string           `json:"tag_id"`
	Barcode          string           `json:"barcode"`
	PurchaseCost     decimal.Decimal  `json:"purchase_cost"`
	Status           Status           `json:"status"`
	PurchaseDate     time.Time        `json:"purchase_date"`
	SaleDate         *time.Time       `json:"sale_date,omitempty"`
	SalesOrderLineID *int64           `json:"sales_order_line_id,omitempty"`
	PriceOverride    *decimal.Decimal `json:"price_override,omitempty"`
	OverrideReason   string           `json:"override_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        *time.Time       `json:"-"`
}

// QuoteSource names which rule produced a unit's selling price.
type QuoteSource string

const (
	SourceItemOverride    QuoteSource = "ITEM_OVERRIDE"
	SourceProductOverride QuoteSource = "PRODUCT_OVERRIDE"
	SourceCalculated      QuoteSource = "CALCULATED"
)

// Quote is the selling price of one unit, computed on demand.
type Quote struct {
	ItemID         int64              `json:"item_id"`
	ProductID      int64              `json:"product_id"`
	Source         QuoteSource        `json:"source"`
	OverrideReason string             `json:"override_reason,omitempty"`
	RateID         int64              `json:"rate_id,omitempty"`
	Breakdown      *pricing.Breakdown `json:"breakdown,omitempty"`
	UnitPrice      decimal.Decimal    `json:"unit_price"`
}

// FIFOSelection is the outcome of a first-in-first-out pick. Shortfall is
// informational: fewer units than asked for is not an error here.
type FIFOSelection struct {
	Items     []Item `json:"items"`
	Requested int    `json:"requested"`
	Shortfall int    `json:"shortfall"`
}

// ListFilter narrows stock queries.
type ListFilter struct {
	ProductID int64
	Status    Status
	Page      int
	PerPage   int
}

var (
	ErrNotFound     = errors.New("stock item not found")
	ErrInvalidInput = errors.New("invalid stock input")
	// ErrNotAvailable means a conditional status transition matched zero
	// rows: the unit was taken by a concurrent transaction or never held
	// the expected status.
	ErrNotAvailable = errors.New("stock item not available")
)

// NotAvailable wraps ErrNotAvailable with the identifier of the unit that
// lost the race.
func NotAvailable(ref string) error {
	return fmt.Errorf("%w: item %s", ErrNotAvailable, ref)
}
