package repricer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/catalog"
	"github.com/aurum-erp/aurum-erp/internal/pricing"
	"github.com/aurum-erp/aurum-erp/internal/rates"
	"github.com/aurum-erp/aurum-erp/internal/shared"
)

// SkipReasonOverride marks products excluded because a fixed price is set.
const SkipReasonOverride = "Has custom price override"

// ErrRateInvalid means the target rate is missing, inactive, or past its
// validity window.
var ErrRateInvalid = errors.New("rate is not valid for repricing")

// RatesPort is what the repricer needs from the rate master.
type RatesPort interface {
	Get(ctx context.Context, id int64) (rates.Rate, error)
	IsValid(ctx context.Context, id int64) (bool, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Filter selects the products to reprice. Unset metal type and purity
// default to the rate's own pair, so an unfiltered run touches only
// products the rate actually prices.
type Filter struct {
	MetalType      rates.MetalType `json:"metal_type,omitempty"`
	Purity         string          `json:"purity,omitempty"`
	CollectionName string          `json:"collection_name,omitempty"`
	ProductIDs     []int64         `json:"product_ids,omitempty"`
}

// Change records one product's price movement.
type Change struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	Delta     decimal.Decimal `json:"delta"`
	PctChange decimal.Decimal `json:"pct_change"`
}

// Skip records one product left untouched and why.
type Skip struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Reason    string `json:"reason"`
}

// Result is the outcome of a preview or commit. Preview and commit run
// the identical computation; Committed tells them apart.
type Result struct {
	RateID    int64     `json:"rate_id"`
	ToUpdate  []Change  `json:"to_update"`
	Skipped   []Skip    `json:"skipped"`
	Committed bool      `json:"committed"`
	RanAt     time.Time `json:"ran_at"`
}

// Service recomputes catalog prices against a rate.
type Service struct {
	catalog catalog.RepositoryPort
	rates   RatesPort
	audit   AuditPort
	now     func() time.Time
}

// NewService builds Service.
func NewService(cat catalog.RepositoryPort, ratesPort RatesPort, audit AuditPort) *Service {
	return &Service{catalog: cat, rates: ratesPort, audit: audit, now: time.Now}
}

// Preview computes the batch without writing anything.
func (s *Service) Preview(ctx context.Context, rateID int64, filter Filter, skipOverridden bool) (Result, error) {
	_, result, err := s.compute(ctx, rateID, filter, skipOverridden)
	return result, err
}

// Commit runs the same computation and persists every change in one
// transaction. A failure partway rolls back the whole batch.
func (s *Service) Commit(ctx context.Context, rateID int64, filter Filter, skipOverridden bool, actorID int64) (Result, error) {
	rate, result, err := s.compute(ctx, rateID, filter, skipOverridden)
	if err != nil {
		return Result{}, err
	}
	err = s.catalog.WithTx(ctx, func(ctx context.Context, tx catalog.TxRepository) error {
		for _, change := range result.ToUpdate {
			if err := tx.UpdateCalculatedPrice(ctx, change.ProductID, change.NewPrice, rate.ID, result.RanAt); err != nil {
				return fmt.Errorf("reprice product %d: %w", change.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	result.Committed = true
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "repricer:commit",
			Entity:   "rate",
			EntityID: strconv.FormatInt(rate.ID, 10),
			Meta: map[string]any{
				"updated": len(result.ToUpdate),
				"skipped": len(result.Skipped),
			},
		})
	}
	return result, nil
}

func (s *Service) compute(ctx context.Context, rateID int64, filter Filter, skipOverridden bool) (rates.Rate, Result, error) {
	valid, err := s.rates.IsValid(ctx, rateID)
	if err != nil {
		return rates.Rate{}, Result{}, fmt.Errorf("reprice with rate %d: %w", rateID, err)
	}
	if !valid {
		return rates.Rate{}, Result{}, fmt.Errorf("%w: rate %d", ErrRateInvalid, rateID)
	}
	rate, err := s.rates.Get(ctx, rateID)
	if err != nil {
		return rates.Rate{}, Result{}, err
	}

	if filter.MetalType == "" {
		filter.MetalType = rate.MetalType
	}
	if filter.Purity == "" {
		filter.Purity = rate.Purity
	}
	products, err := s.catalog.ListForReprice(ctx, filter.MetalType, filter.Purity, filter.CollectionName, filter.ProductIDs)
	if err != nil {
		return rates.Rate{}, Result{}, err
	}

	result := Result{RateID: rate.ID, RanAt: s.now().UTC()}
	for _, product := range products {
		if skipOverridden && product.PriceOverride != nil {
			result.Skipped = append(result.Skipped, Skip{
				ProductID: product.ID,
				SKU:       product.SKU,
				Reason:    SkipReasonOverride,
			})
			continue
		}
		breakdown, err := pricing.Calculate(pricing.Input{
			NetWeight:        product.NetWeight,
			WastagePercent:   product.WastagePercent,
			MetalRatePerGram: rate.RatePerGram,
			MakingCharges:    product.MakingCharges,
			StoneValue:       product.StoneValue,
		})
		if err != nil {
			return rates.Rate{}, Result{}, fmt.Errorf("reprice product %d: %w", product.ID, err)
		}
		old := product.CalculatedPrice
		delta := breakdown.TotalPrice.Sub(old)
		pct := decimal.Zero
		if old.IsPositive() {
			pct = delta.Div(old).Mul(decimal.NewFromInt(100)).Round(2)
		}
		result.ToUpdate = append(result.ToUpdate, Change{
			ProductID: product.ID,
			SKU:       product.SKU,
			OldPrice:  old,
			NewPrice:  breakdown.TotalPrice,
			Delta:     delta,
			PctChange: pct,
		})
	}
	return rate, result, nil
}
