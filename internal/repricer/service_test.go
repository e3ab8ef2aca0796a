package repricer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum-erp/internal/catalog"
	"github.com/aurum-erp/aurum-erp/internal/rates"
)

type memoryCatalog struct {
	products  map[int64]catalog.Product
	commitErr error
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{products: make(map[int64]catalog.Product)}
}

func (m *memoryCatalog) Create(ctx context.Context, product catalog.Product) (int64, error) {
	m.products[product.ID] = product
	return product.ID, nil
}

func (m *memoryCatalog) Get(ctx context.Context, id int64) (catalog.Product, error) {
	product, ok := m.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return product, nil
}

func (m *memoryCatalog) List(ctx context.Context, filter catalog.ListFilter) ([]catalog.Product, int, error) {
	return nil, 0, nil
}

func (m *memoryCatalog) Update(ctx context.Context, product catalog.Product) error {
	m.products[product.ID] = product
	return nil
}

func (m *memoryCatalog) SoftDelete(ctx context.Context, id int64, at time.Time) (int64, error) {
	return 0, nil
}

func (m *memoryCatalog) ListForReprice(ctx context.Context, metal rates.MetalType, purity, collection string, ids []int64) ([]catalog.Product, error) {
	var result []catalog.Product
	for _, product := range m.products {
		if metal != "" && product.MetalType != metal {
			continue
		}
		if purity != "" && product.Purity != purity {
			continue
		}
		if collection != "" && product.CollectionName != collection {
			continue
		}
		if len(ids) > 0 && !containsID(ids, product.ID) {
			continue
		}
		result = append(result, product)
	}
	return result, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (m *memoryCatalog) WithTx(ctx context.Context, fn func(context.Context, catalog.TxRepository) error) error {
	snapshot := make(map[int64]catalog.Product, len(m.products))
	for id, product := range m.products {
		snapshot[id] = product
	}
	if err := fn(ctx, (*memoryCatalogTx)(m)); err != nil {
		m.products = snapshot
		return err
	}
	return nil
}

type memoryCatalogTx memoryCatalog

func (t *memoryCatalogTx) UpdateCalculatedPrice(ctx context.Context, productID int64, price decimal.Decimal, rateID int64, at time.Time) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	product, ok := t.products[productID]
	if !ok {
		return catalog.ErrNotFound
	}
	product.CalculatedPrice = price
	product.RateUsedID = &rateID
	product.LastPriceUpdate = &at
	t.products[productID] = product
	return nil
}

type stubRates struct {
	rate  rates.Rate
	valid bool
	err   error
}

func (s stubRates) Get(ctx context.Context, id int64) (rates.Rate, error) {
	if s.err != nil {
		return rates.Rate{}, s.err
	}
	rate := s.rate
	rate.ID = id
	return rate, nil
}

func (s stubRates) IsValid(ctx context.Context, id int64) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.valid, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func goldProduct(id int64, overridden bool) catalog.Product {
	p := catalog.Product{
		ID:              id,
		SKU:             fmt.Sprintf("SKU-%03d", id),
		MetalType:       rates.MetalGold,
		Purity:          "22K",
		NetWeight:       d("24.0"),
		WastagePercent:  d("6"),
		MakingCharges:   d("8000"),
		StoneValue:      d("5000"),
		CalculatedPrice: d("165000.00"),
	}
	if overridden {
		override := d("199999")
		p.PriceOverride = &override
		p.OverrideReason = "legacy price"
	}
	return p
}

func goldRate() stubRates {
	return stubRates{
		rate:  rates.Rate{MetalType: rates.MetalGold, Purity: "22K", RatePerGram: d("6500")},
		valid: true,
	}
}

func TestPreviewComputesChanges(t *testing.T) {
	cat := newMemoryCatalog()
	cat.products[1] = goldProduct(1, false)
	cat.products[2] = goldProduct(2, true)
	svc := NewService(cat, goldRate(), nil)

	result, err := svc.Preview(context.Background(), 5, Filter{}, true)
	require.NoError(t, err)
	require.False(t, result.Committed)
	require.Len(t, result.ToUpdate, 1)
	require.Len(t, result.Skipped, 1)
	require.Equal(t, SkipReasonOverride, result.Skipped[0].Reason)

	change := result.ToUpdate[0]
	require.Equal(t, int64(1), change.ProductID)
	require.True(t, change.NewPrice.Equal(d("178360.00")), "new price %s", change.NewPrice)
	require.True(t, change.Delta.Equal(d("13360.00")))
	require.True(t, change.PctChange.Equal(d("8.10")), "pct %s", change.PctChange)

	// Preview writes nothing.
	require.True(t, cat.products[1].CalculatedPrice.Equal(d("165000.00")))
	require.Nil(t, cat.products[1].RateUsedID)
}

func TestPreviewIncludesOverriddenWhenNotSkipping(t *testing.T) {
	cat := newMemoryCatalog()
	cat.products[2] = goldProduct(2, true)
	svc := NewService(cat, goldRate(), nil)

	result, err := svc.Preview(context.Background(), 5, Filter{}, false)
	require.NoError(t, err)
	require.Len(t, result.ToUpdate, 1)
	require.Empty(t, result.Skipped)
}

func TestCommitMatchesPreviewAndPersists(t *testing.T) {
	cat := newMemoryCatalog()
	cat.products[1] = goldProduct(1, false)
	cat.products[2] = goldProduct(2, true)
	svc := NewService(cat, goldRate(), nil)
	ctx := context.Background()

	preview, err := svc.Preview(ctx, 5, Filter{}, true)
	require.NoError(t, err)
	committed, err := svc.Commit(ctx, 5, Filter{}, true, 0)
	require.NoError(t, err)

	require.True(t, committed.Committed)
	require.Equal(t, len(preview.ToUpdate), len(committed.ToUpdate))
	require.Equal(t, len(preview.Skipped), len(committed.Skipped))
	for i := range preview.ToUpdate {
		require.True(t, preview.ToUpdate[i].NewPrice.Equal(committed.ToUpdate[i].NewPrice),
			"preview and commit must compute identical numbers")
	}

	updated := cat.products[1]
	require.True(t, updated.CalculatedPrice.Equal(d("178360.00")))
	require.NotNil(t, updated.RateUsedID)
	require.Equal(t, int64(5), *updated.RateUsedID)
	require.NotNil(t, updated.LastPriceUpdate)

	// The overridden product stays untouched.
	require.True(t, cat.products[2].CalculatedPrice.Equal(d("165000.00")))
}

func TestCommitRollsBackWholeBatch(t *testing.T) {
	cat := newMemoryCatalog()
	cat.products[1] = goldProduct(1, false)
	cat.products[2] = goldProduct(2, false)
	cat.commitErr = errors.New("disk full")
	svc := NewService(cat, goldRate(), nil)

	_, err := svc.Commit(context.Background(), 5, Filter{}, true, 0)
	require.Error(t, err)
	require.True(t, cat.products[1].CalculatedPrice.Equal(d("165000.00")))
	require.True(t, cat.products[2].CalculatedPrice.Equal(d("165000.00")))
}

func TestFilterDefaultsToRatePair(t *testing.T) {
	cat := newMemoryCatalog()
	gold := goldProduct(1, false)
	silver := goldProduct(2, false)
	silver.MetalType = rates.MetalSilver
	silver.Purity = "925"
	cat.products[1] = gold
	cat.products[2] = silver
	svc := NewService(cat, goldRate(), nil)

	result, err := svc.Preview(context.Background(), 5, Filter{}, true)
	require.NoError(t, err)
	require.Len(t, result.ToUpdate, 1)
	require.Equal(t, int64(1), result.ToUpdate[0].ProductID)
}

func TestInvalidRateRefused(t *testing.T) {
	cat := newMemoryCatalog()
	cat.products[1] = goldProduct(1, false)

	svc := NewService(cat, stubRates{valid: false}, nil)
	_, err := svc.Preview(context.Background(), 5, Filter{}, true)
	require.ErrorIs(t, err, ErrRateInvalid)

	svc = NewService(cat, stubRates{err: rates.ErrNotFound}, nil)
	_, err = svc.Preview(context.Background(), 5, Filter{}, true)
	require.ErrorIs(t, err, rates.ErrNotFound)
}
