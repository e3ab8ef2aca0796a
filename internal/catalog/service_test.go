package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum-erp/internal/rates"
)

type memoryRepo struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) Create(ctx context.Context, product Product) (int64, error) {
	for _, existing := range r.products {
		if existing.SKU == product.SKU {
			return 0, ErrDuplicateSKU
		}
	}
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	return product.ID, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	product, ok := r.products[id]
	if !ok || product.DeletedAt != nil {
		return Product{}, ErrNotFound
	}
	return product, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	var result []Product
	for _, product := range r.products {
		if product.DeletedAt != nil {
			continue
		}
		if filter.MetalType != "" && product.MetalType != filter.MetalType {
			continue
		}
		result = append(result, product)
	}
	return result, len(result), nil
}

func (r *memoryRepo) Update(ctx context.Context, product Product) error {
	existing, ok := r.products[product.ID]
	if !ok || existing.DeletedAt != nil {
		return ErrNotFound
	}
	r.products[product.ID] = product
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id int64, at time.Time) (int64, error) {
	product, ok := r.products[id]
	if !ok || product.DeletedAt != nil {
		return 0, nil
	}
	product.DeletedAt = &at
	r.products[id] = product
	return 1, nil
}

func (r *memoryRepo) ListForReprice(ctx context.Context, metal rates.MetalType, purity, collection string, ids []int64) ([]Product, error) {
	var result []Product
	for _, product := range r.products {
		if product.DeletedAt != nil {
			continue
		}
		if metal != "" && product.MetalType != metal {
			continue
		}
		if purity != "" && product.Purity != purity {
			continue
		}
		result = append(result, product)
	}
	return result, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) UpdateCalculatedPrice(ctx context.Context, productID int64, price decimal.Decimal, rateID int64, at time.Time) error {
	product, ok := r.products[productID]
	if !ok {
		return ErrNotFound
	}
	product.CalculatedPrice = price
	product.RateUsedID = &rateID
	product.LastPriceUpdate = &at
	r.products[productID] = product
	return nil
}

type stubRates struct {
	rate rates.Rate
	err  error
}

func (s stubRates) Current(ctx context.Context, metal rates.MetalType, purity string) (rates.Rate, error) {
	if s.err != nil {
		return rates.Rate{}, s.err
	}
	return s.rate, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func goldRing() CreateInput {
	return CreateInput{
		SKU:            "RING-001",
		Name:           "Classic Gold Ring",
		MetalType:      rates.MetalGold,
		Purity:         "22K",
		NetWeight:      d("24.0"),
		WastagePercent: d("6"),
		MakingCharges:  d("8000"),
		StoneValue:     d("5000"),
	}
}

func TestPriceComputesFromCurrentRate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubRates{rate: rates.Rate{ID: 11, RatePerGram: d("6500")}}, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, goldRing())
	require.NoError(t, err)

	quote, err := svc.Price(ctx, product.ID)
	require.NoError(t, err)
	require.False(t, quote.Overridden)
	require.Equal(t, int64(11), quote.RateID)
	require.NotNil(t, quote.Breakdown)
	require.True(t, quote.FinalPrice.Equal(d("178360.00")), "final price %s", quote.FinalPrice)
	require.True(t, quote.Breakdown.EffectiveWeight.Equal(d("25.44")))
}

func TestPriceOverrideWinsVerbatim(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubRates{rate: rates.Rate{ID: 11, RatePerGram: d("6500")}}, nil)
	ctx := context.Background()

	override := d("99999.99")
	in := goldRing()
	in.PriceOverride = &override
	in.OverrideReason = "clearance"
	product, err := svc.Create(ctx, in)
	require.NoError(t, err)

	quote, err := svc.Price(ctx, product.ID)
	require.NoError(t, err)
	require.True(t, quote.Overridden)
	require.Equal(t, "clearance", quote.OverrideReason)
	require.Nil(t, quote.Breakdown)
	require.True(t, quote.FinalPrice.Equal(override))
}

func TestPriceFailsWithoutActiveRate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubRates{err: rates.ErrNoActiveRate}, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, goldRing())
	require.NoError(t, err)

	_, err = svc.Price(ctx, product.ID)
	require.ErrorIs(t, err, rates.ErrNoActiveRate)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubRates{}, nil)
	ctx := context.Background()

	in := goldRing()
	in.NetWeight = decimal.Zero
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrInvalidProduct)

	in = goldRing()
	in.WastagePercent = d("101")
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrInvalidProduct)

	in = goldRing()
	override := d("1000")
	in.PriceOverride = &override
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrInvalidProduct, "override without reason must fail")

	in = goldRing()
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestDeleteHidesProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubRates{}, nil)
	ctx := context.Background()

	product, err := svc.Create(ctx, goldRing())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, product.ID, 0))
	_, err = svc.Get(ctx, product.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, product.ID, 0), ErrNotFound)
}
