package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

type activateRateRequest struct {
	MetalType     string          `json:"metal_type" validate:"required,oneof=GOLD SILVER PLATINUM"`
	Purity        string          `json:"purity" validate:"required,max=20"`
	RatePerGram   decimal.Decimal `json:"rate_per_gram" validate:"required"`
	EffectiveDate *time.Time      `json:"effective_date,omitempty"`
	ValidUntil    *time.Time      `json:"valid_until,omitempty"`
	Source        string          `json:"source" validate:"required,oneof=MARKET MANUAL API"`
	IsActive      *bool           `json:"is_active,omitempty"`
}

type historyResponse struct {
	Rates      []Rate `json:"rates"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
}
