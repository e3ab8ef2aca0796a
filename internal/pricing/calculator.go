// Package pricing computes jewelry selling prices from a metal rate.
//
// The calculation is pure: no I/O, no clock, safe for concurrent use.
// Callers fetch the rate themselves; a price can only be produced for a
// rate that actually exists.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput rejects malformed or out-of-range calculator input.
var ErrInvalidInput = errors.New("pricing: invalid input")

var hundred = decimal.NewFromInt(100)

// Input carries every term of the price formula.
type Input struct {
	NetWeight        decimal.Decimal
	WastagePercent   decimal.Decimal
	MetalRatePerGram decimal.Decimal
	MakingCharges    decimal.Decimal
	StoneValue       decimal.Decimal
}

// Breakdown is the full result of a price calculation. Every term is
// returned, not just the total, because callers display and audit each one.
type Breakdown struct {
	NetWeight        decimal.Decimal `json:"net_weight"`
	WastagePercent   decimal.Decimal `json:"wastage_percent"`
	EffectiveWeight  decimal.Decimal `json:"effective_weight"`
	MetalRatePerGram decimal.Decimal `json:"metal_rate_per_gram"`
	MetalAmount      decimal.Decimal `json:"metal_amount"`
	MakingCharges    decimal.Decimal `json:"making_charges"`
	StoneValue       decimal.Decimal `json:"stone_value"`
	TotalPrice       decimal.Decimal `json:"total_price"`
}

// Calculate derives the selling price:
//
//	effectiveWeight = netWeight * (1 + wastagePercent/100)
//	metalAmount     = effectiveWeight * metalRatePerGram
//	totalPrice      = metalAmount + makingCharges + stoneValue
//
// Weights round to 3 decimal places, currency amounts to 2.
func Calculate(in Input) (Breakdown, error) {
	if !in.NetWeight.IsPositive() {
		return Breakdown{}, fmt.Errorf("%w: net weight must be positive", ErrInvalidInput)
	}
	if !in.MetalRatePerGram.IsPositive() {
		return Breakdown{}, fmt.Errorf("%w: metal rate must be positive", ErrInvalidInput)
	}
	if in.WastagePercent.IsNegative() || in.WastagePercent.GreaterThan(hundred) {
		return Breakdown{}, fmt.Errorf("%w: wastage percent must be within [0,100]", ErrInvalidInput)
	}
	if in.MakingCharges.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: making charges must not be negative", ErrInvalidInput)
	}
	if in.StoneValue.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: stone value must not be negative", ErrInvalidInput)
	}

	effectiveWeight := in.NetWeight.Mul(decimal.NewFromInt(1).Add(in.WastagePercent.Div(hundred))).Round(3)
	metalAmount := effectiveWeight.Mul(in.MetalRatePerGram).Round(2)
	totalPrice := metalAmount.Add(in.MakingCharges).Add(in.StoneValue).Round(2)

	return Breakdown{
		NetWeight:        in.NetWeight,
		WastagePercent:   in.WastagePercent,
		EffectiveWeight:  effectiveWeight,
		MetalRatePerGram: in.MetalRatePerGram,
		MetalAmount:      metalAmount,
		MakingCharges:    in.MakingCharges,
		StoneValue:       in.StoneValue,
		TotalPrice:       totalPrice,
	}, nil
}
