package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/pricing"
	"github.com/aurum-erp/aurum-erp/internal/rates"
	"github.com/aurum-erp/aurum-erp/internal/shared"
)

// RateProvider resolves the current rate for a (metal type, purity) pair.
type RateProvider interface {
	Current(ctx context.Context, metal rates.MetalType, purity string) (rates.Rate, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations.
type Service struct {
	repo  RepositoryPort
	rates RateProvider
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, rateProvider RateProvider, audit AuditPort) *Service {
	return &Service{repo: repo, rates: rateProvider, audit: audit, now: time.Now}
}

// CreateInput describes a new product.
type CreateInput struct {
	SKU            string
	Name           string
	MetalType      rates.MetalType
	Purity         string
	NetWeight      decimal.Decimal
	WastagePercent decimal.Decimal
	MakingCharges  decimal.Decimal
	StoneWeight    decimal.Decimal
	StoneValue     decimal.Decimal
	PriceOverride  *decimal.Decimal
	OverrideReason string
	CollectionName string
	ActorID        int64
}

// Create validates and stores a product definition.
func (s *Service) Create(ctx context.Context, in CreateInput) (Product, error) {
	if err := validateSpec(in.MetalType, in.Purity, in.NetWeight, in.WastagePercent, in.MakingCharges, in.StoneValue, in.PriceOverride, in.OverrideReason); err != nil {
		return Product{}, err
	}
	if in.SKU == "" || in.Name == "" {
		return Product{}, fmt.Errorf("%w: sku and name required", ErrInvalidProduct)
	}
	now := s.now().UTC()
	product := Product{
		SKU:            in.SKU,
		Name:           in.Name,
		MetalType:      in.MetalType,
		Purity:         in.Purity,
		NetWeight:      in.NetWeight.Round(3),
		WastagePercent: in.WastagePercent,
		MakingCharges:  in.MakingCharges,
		StoneWeight:    in.StoneWeight,
		StoneValue:     in.StoneValue,
		PriceOverride:  in.PriceOverride,
		OverrideReason: in.OverrideReason,
		CollectionName: in.CollectionName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := s.repo.Create(ctx, product)
	if err != nil {
		return Product{}, err
	}
	product.ID = id
	s.recordAudit(ctx, in.ActorID, "catalog:create", product.ID)
	return product, nil
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// List returns products matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, shared.Pagination, error) {
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// UpdateInput carries mutable product fields.
type UpdateInput struct {
	Name           string
	MetalType      rates.MetalType
	Purity         string
	NetWeight      decimal.Decimal
	WastagePercent decimal.Decimal
	MakingCharges  decimal.Decimal
	StoneWeight    decimal.Decimal
	StoneValue     decimal.Decimal
	PriceOverride  *decimal.Decimal
	OverrideReason string
	CollectionName string
	ActorID        int64
}

// Update replaces the mutable fields of a product.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Product, error) {
	if err := validateSpec(in.MetalType, in.Purity, in.NetWeight, in.WastagePercent, in.MakingCharges, in.StoneValue, in.PriceOverride, in.OverrideReason); err != nil {
		return Product{}, err
	}
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	product.Name = in.Name
	product.MetalType = in.MetalType
	product.Purity = in.Purity
	product.NetWeight = in.NetWeight.Round(3)
	product.WastagePercent = in.WastagePercent
	product.MakingCharges = in.MakingCharges
	product.StoneWeight = in.StoneWeight
	product.StoneValue = in.StoneValue
	product.PriceOverride = in.PriceOverride
	product.OverrideReason = in.OverrideReason
	product.CollectionName = in.CollectionName
	product.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, product); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, in.ActorID, "catalog:update", product.ID)
	return product, nil
}

// Delete soft-deletes a product.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	affected, err := s.repo.SoftDelete(ctx, id, s.now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	s.recordAudit(ctx, actorID, "catalog:delete", id)
	return nil
}

// Price quotes the product's selling price right now. The quote is computed
// on every call; nothing here is served from a stored price.
func (s *Service) Price(ctx context.Context, id int64) (PriceQuote, error) {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return PriceQuote{}, err
	}
	return s.QuoteFor(ctx, product)
}

// QuoteFor prices an already-loaded product. An override wins verbatim;
// otherwise the current rate feeds the calculator. A missing rate is an
// error, never a zero price.
func (s *Service) QuoteFor(ctx context.Context, product Product) (PriceQuote, error) {
	if product.PriceOverride != nil {
		return PriceQuote{
			ProductID:      product.ID,
			Overridden:     true,
			OverrideReason: product.OverrideReason,
			FinalPrice:     *product.PriceOverride,
		}, nil
	}
	rate, err := s.rates.Current(ctx, product.MetalType, product.Purity)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("price product %d: %w", product.ID, err)
	}
	breakdown, err := pricing.Calculate(pricing.Input{
		NetWeight:        product.NetWeight,
		WastagePercent:   product.WastagePercent,
		MetalRatePerGram: rate.RatePerGram,
		MakingCharges:    product.MakingCharges,
		StoneValue:       product.StoneValue,
	})
	if err != nil {
		return PriceQuote{}, fmt.Errorf("price product %d: %w", product.ID, err)
	}
	return PriceQuote{
		ProductID:  product.ID,
		RateID:     rate.ID,
		Breakdown:  &breakdown,
		FinalPrice: breakdown.TotalPrice,
	}, nil
}

func validateSpec(metal rates.MetalType, purity string, netWeight, wastage, making, stone decimal.Decimal, override *decimal.Decimal, overrideReason string) error {
	if !metal.Valid() {
		return fmt.Errorf("%w: unknown metal type %q", ErrInvalidProduct, metal)
	}
	if purity == "" {
		return fmt.Errorf("%w: purity required", ErrInvalidProduct)
	}
	if !netWeight.IsPositive() {
		return fmt.Errorf("%w: net weight must be positive", ErrInvalidProduct)
	}
	if wastage.IsNegative() || wastage.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: wastage percent must be within [0,100]", ErrInvalidProduct)
	}
	if making.IsNegative() || stone.IsNegative() {
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidProduct)
	}
	if override != nil {
		if override.IsNegative() {
			return fmt.Errorf("%w: price override must not be negative", ErrInvalidProduct)
		}
		if overrideReason == "" {
			return fmt.Errorf("%w: override reason required when price override is set", ErrInvalidProduct)
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, productID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: strconv.FormatInt(productID, 10),
	})
}
