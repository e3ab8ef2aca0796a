// Package rates maintains the versioned metal rate master.
//
// Rate rows are append-only: activating a new rate deactivates its
// siblings instead of overwriting them, so the full announcement history
// stays queryable.
package rates

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MetalType enumerates supported metals.
type MetalType string

const (
	MetalGold     MetalType = "GOLD"
	MetalSilver   MetalType = "SILVER"
	MetalPlatinum MetalType = "PLATINUM"
)

// Valid reports whether the metal type is a known value.
func (m MetalType) Valid() bool {
	switch m {
	case MetalGold, MetalSilver, MetalPlatinum:
		return true
	}
	return false
}

// RateSource tags where a rate announcement came from.
type RateSource string

const (
	SourceMarket RateSource = "MARKET"
	SourceManual RateSource = "MANUAL"
	SourceAPI    RateSource = "API"
)

// Rate is one rate announcement for a (metal type, purity) pair.
type Rate struct {
	ID            int64           `json:"id"`
	MetalType     MetalType       `json:"metal_type"`
	Purity        string          `json:"purity"`
	RatePerGram   decimal.Decimal `json:"rate_per_gram"`
	EffectiveDate time.Time       `json:"effective_date"`
	ValidUntil    *time.Time      `json:"valid_until,omitempty"`
	IsActive      bool            `json:"is_active"`
	Source        RateSource      `json:"source"`
	CreatedBy     int64           `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ActivateInput describes a new rate announcement.
type ActivateInput struct {
	MetalType     MetalType
	Purity        string
	RatePerGram   decimal.Decimal
	EffectiveDate time.Time
	ValidUntil    *time.Time
	Source        RateSource
	IsActive      bool
	ActorID       int64
}

// HistoryFilter selects rate history for one pair.
type HistoryFilter struct {
	MetalType MetalType
	Purity    string
	Page      int
	PerPage   int
}

var (
	// ErrNoActiveRate means no active rate exists for the pair. Callers must
	// refuse to price rather than fall back to zero or a stale rate.
	ErrNoActiveRate = errors.New("rates: no active rate")
	// ErrNotFound indicates a missing rate row.
	ErrNotFound = errors.New("rates: rate not found")
	// ErrRateWindow rejects a validity window that ends at or before its start.
	ErrRateWindow = errors.New("rates: valid_until must be after effective_date")
	// ErrInvalidRate rejects malformed rate input.
	ErrInvalidRate = errors.New("rates: invalid rate")
)
