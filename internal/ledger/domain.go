package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger transaction.
type EntryType string

const (
	TypeIncome  EntryType = "INCOME"
	TypeExpense EntryType = "EXPENSE"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Transaction is one accounting entry. Entries are append-only: they are
// inserted alongside the business mutation that caused them and never
// updated or deleted afterwards.
type Transaction struct {
	ID        int64           `json:"id"`
	Type      EntryType       `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	RefModule string          `json:"ref_module"`
	RefID     int64           `json:"ref_id"`
	Note      string          `json:"note,omitempty"`
	PostedAt  time.Time       `json:"posted_at"`
	CreatedBy int64           `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListFilter narrows ledger queries.
type ListFilter struct {
	Type      EntryType
	RefModule string
	RefID     int64
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

var ErrInvalidEntry = errors.New("invalid ledger entry")
