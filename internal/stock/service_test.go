package stock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aurum-erp/aurum-erp/internal/catalog"
	"github.com/aurum-erp/aurum-erp/internal/ledger"
	"github.com/aurum-erp/aurum-erp/internal/rates"
)

type memoryRepo struct {
	mu      sync.Mutex
	items   map[int64]Item
	entries []ledger.Transaction
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Item)}
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.DeletedAt != nil {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (r *memoryRepo) GetByTag(ctx context.Context, tag string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.TagID == tag && item.DeletedAt == nil {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Item
	for _, item := range r.items {
		if item.DeletedAt != nil {
			continue
		}
		if filter.ProductID != 0 && item.ProductID != filter.ProductID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		result = append(result, item)
	}
	return result, len(result), nil
}

func (r *memoryRepo) SelectFIFO(ctx context.Context, productID int64, qty int) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []Item
	for _, item := range r.items {
		if item.DeletedAt == nil && item.ProductID == productID && item.Status == StatusAvailable {
			candidates = append(candidates, item)
		}
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if b.PurchaseDate.Before(a.PurchaseDate) ||
				(b.PurchaseDate.Equal(a.PurchaseDate) && b.ID < a.ID) {
				candidates[i], candidates[j] = b, a
			}
		}
	}
	if len(candidates) > qty {
		candidates = candidates[:qty]
	}
	return candidates, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Item, len(r.items))
	for id, item := range r.items {
		snapshot[id] = item
	}
	entries := len(r.entries)
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.items = snapshot
		r.entries = r.entries[:entries]
		return err
	}
	return nil
}

type memoryTx memoryRepo

func (t *memoryTx) Insert(ctx context.Context, item Item) (int64, error) {
	t.nextID++
	item.ID = t.nextID
	t.items[item.ID] = item
	return item.ID, nil
}

func (t *memoryTx) InsertLedger(ctx context.Context, tr ledger.Transaction) (int64, error) {
	t.entries = append(t.entries, tr)
	return int64(len(t.entries)), nil
}

func (t *memoryTx) Reserve(ctx context.Context, id int64) (bool, error) {
	item, ok := t.items[id]
	if !ok || item.Status != StatusAvailable {
		return false, nil
	}
	item.Status = StatusReserved
	t.items[id] = item
	return true, nil
}

func (t *memoryTx) Release(ctx context.Context, id int64) (bool, error) {
	item, ok := t.items[id]
	if !ok || item.Status != StatusReserved {
		return false, nil
	}
	item.Status = StatusAvailable
	t.items[id] = item
	return true, nil
}

type stubCatalog struct {
	product catalog.Product
	quote   catalog.PriceQuote
	err     error
}

func (s stubCatalog) Get(ctx context.Context, id int64) (catalog.Product, error) {
	product := s.product
	product.ID = id
	return product, nil
}

func (s stubCatalog) QuoteFor(ctx context.Context, product catalog.Product) (catalog.PriceQuote, error) {
	if s.err != nil {
		return catalog.PriceQuote{}, s.err
	}
	quote := s.quote
	quote.ProductID = product.ID
	return quote, nil
}

type seqTags struct{ n int }

func (s *seqTags) TagID() string {
	s.n++
	return fmt.Sprintf("TAG-%04d", s.n)
}

func (s *seqTags) Barcode() string {
	return fmt.Sprintf("%013d", s.n)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seed(t *testing.T, repo *memoryRepo, productID int64, purchased time.Time, status Status) Item {
	t.Helper()
	var id int64
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.Insert(ctx, Item{
			ProductID:    productID,
			TagID:        fmt.Sprintf("SEED-%d-%d", productID, purchased.UnixNano()),
			PurchaseCost: d("50000"),
			Status:       status,
			PurchaseDate: purchased,
		})
		return err
	})
	require.NoError(t, err)
	item := repo.items[id]
	return item
}

func TestReceiveCreatesUnitsAndExpense(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{}, &seqTags{}, nil)
	ctx := context.Background()

	items, err := svc.Receive(ctx, ReceiveInput{
		ProductID:    7,
		Quantity:     3,
		PurchaseCost: d("52000"),
		PaidAmount:   d("156000"),
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	seen := map[string]bool{}
	for _, item := range items {
		require.Equal(t, StatusAvailable, item.Status)
		require.True(t, item.PurchaseCost.Equal(d("52000")))
		require.NotEmpty(t, item.TagID)
		require.False(t, seen[item.TagID], "tag ids must be unique")
		seen[item.TagID] = true
	}
	require.Len(t, repo.entries, 1)
	require.Equal(t, ledger.TypeExpense, repo.entries[0].Type)
	require.True(t, repo.entries[0].Amount.Equal(d("156000")))
}

func TestReceiveUnpaidSkipsLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{}, &seqTags{}, nil)

	_, err := svc.Receive(context.Background(), ReceiveInput{
		ProductID:    7,
		Quantity:     1,
		PurchaseCost: d("52000"),
	})
	require.NoError(t, err)
	require.Empty(t, repo.entries)
}

func TestReceiveValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{}, &seqTags{}, nil)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{ProductID: 7, Quantity: 0, PurchaseCost: d("1")})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Receive(ctx, ReceiveInput{ProductID: 7, Quantity: 1, PurchaseCost: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidInput)

	override := d("1000")
	_, err = svc.Receive(ctx, ReceiveInput{ProductID: 7, Quantity: 1, PurchaseCost: d("1"), PriceOverride: &override})
	require.ErrorIs(t, err, ErrInvalidInput, "override without reason must fail")
}

func TestSelectFIFOOrdersByPurchaseDateThenID(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{}, &seqTags{}, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seed(t, repo, 7, base.AddDate(0, 2, 0), StatusAvailable)
	oldest := seed(t, repo, 7, base, StatusAvailable)
	middleA := seed(t, repo, 7, base.AddDate(0, 1, 0), StatusAvailable)
	middleB := seed(t, repo, 7, base.AddDate(0, 1, 0), StatusAvailable)
	seed(t, repo, 7, base.AddDate(0, 0, -10), StatusSold)
	seed(t, repo, 8, base.AddDate(0, 0, -20), StatusAvailable)

	selection, err := svc.SelectFIFO(ctx, 7, 3)
	require.NoError(t, err)
	require.Zero(t, selection.Shortfall)
	require.Equal(t, []int64{oldest.ID, middleA.ID, middleB.ID}, itemIDs(selection.Items))

	selection, err = svc.SelectFIFO(ctx, 7, 10)
	require.NoError(t, err, "a short pick is reported, never an error")
	require.Len(t, selection.Items, 4)
	require.Equal(t, 6, selection.Shortfall)
}

func TestSelectFIFOShortPickIsNotAnError(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{}, &seqTags{}, nil)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	first := seed(t, repo, 7, base, StatusAvailable)
	second := seed(t, repo, 7, base.AddDate(0, 0, 1), StatusAvailable)

	selection, err := svc.SelectFIFO(ctx, 7, 5)
	require.NoError(t, err)
	require.Equal(t, []int64{first.ID, second.ID}, itemIDs(selection.Items))
	require.Equal(t, 5, selection.Requested)
	require.Equal(t, 3, selection.Shortfall)
}

func itemIDs(items []Item) []int64 {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

func TestPriceCascade(t *testing.T) {
	breakdown := catalog.PriceQuote{RateID: 3, FinalPrice: d("178360.00")}
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{quote: breakdown}, &seqTags{}, nil)
	ctx := context.Background()

	plain := seed(t, repo, 7, time.Now(), StatusAvailable)
	quote, err := svc.Price(ctx, plain.ID)
	require.NoError(t, err)
	require.Equal(t, SourceCalculated, quote.Source)
	require.Equal(t, int64(3), quote.RateID)
	require.True(t, quote.UnitPrice.Equal(d("178360.00")))

	override := d("150000")
	withOverride := plain
	withOverride.PriceOverride = &override
	withOverride.OverrideReason = "old stock"
	repo.items[withOverride.ID] = withOverride
	quote, err = svc.Price(ctx, withOverride.ID)
	require.NoError(t, err)
	require.Equal(t, SourceItemOverride, quote.Source)
	require.Equal(t, "old stock", quote.OverrideReason)
	require.True(t, quote.UnitPrice.Equal(override))

	svcProd := NewService(repo, stubCatalog{quote: catalog.PriceQuote{
		Overridden:     true,
		OverrideReason: "festival price",
		FinalPrice:     d("160000"),
	}}, &seqTags{}, nil)
	quote, err = svcProd.Price(ctx, plain.ID)
	require.NoError(t, err)
	require.Equal(t, SourceProductOverride, quote.Source)
	require.Zero(t, quote.RateID)
	require.True(t, quote.UnitPrice.Equal(d("160000")))
}

func TestPriceNoActiveRatePropagates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{err: rates.ErrNoActiveRate}, &seqTags{}, nil)

	item := seed(t, repo, 7, time.Now(), StatusAvailable)
	_, err := svc.Price(context.Background(), item.ID)
	require.ErrorIs(t, err, rates.ErrNoActiveRate)
}

func TestReserveAbortsWholeBatchOnConflict(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{}, &seqTags{}, nil)
	ctx := context.Background()

	a := seed(t, repo, 7, time.Now(), StatusAvailable)
	b := seed(t, repo, 7, time.Now(), StatusSold)

	err := svc.Reserve(ctx, []int64{a.ID, b.ID}, 0)
	require.ErrorIs(t, err, ErrNotAvailable)
	require.Equal(t, StatusAvailable, repo.items[a.ID].Status, "failed batch must leave no mutation")

	require.NoError(t, svc.Reserve(ctx, []int64{a.ID}, 0))
	require.Equal(t, StatusReserved, repo.items[a.ID].Status)

	err = svc.Reserve(ctx, []int64{a.ID}, 0)
	require.ErrorIs(t, err, ErrNotAvailable)
}

func TestReleaseRequiresReserved(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, stubCatalog{}, &seqTags{}, nil)
	ctx := context.Background()

	item := seed(t, repo, 7, time.Now(), StatusReserved)
	require.NoError(t, svc.Release(ctx, []int64{item.ID}, 0))
	require.Equal(t, StatusAvailable, repo.items[item.ID].Status)

	err := svc.Release(ctx, []int64{item.ID}, 0)
	require.ErrorIs(t, err, ErrNotAvailable)
}
