package rates

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   []Rate
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]Rate, len(r.rows))
	copy(snapshot, r.rows)
	savedNext := r.nextID
	if err := fn(ctx, (*memoryTx)(r)); err != nil {
		r.rows = snapshot
		r.nextID = savedNext
		return err
	}
	return nil
}

func (r *memoryRepo) Current(ctx context.Context, metal MetalType, purity string) (Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var candidates []Rate
	for _, row := range r.rows {
		if row.MetalType == metal && row.Purity == purity && row.IsActive {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return Rate{}, ErrNoActiveRate
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].EffectiveDate.Equal(candidates[j].EffectiveDate) {
			return candidates[i].EffectiveDate.After(candidates[j].EffectiveDate)
		}
		return candidates[i].ID > candidates[j].ID
	})
	return candidates[0], nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return Rate{}, ErrNotFound
}

func (r *memoryRepo) History(ctx context.Context, filter HistoryFilter) ([]Rate, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Rate
	for _, row := range r.rows {
		if row.MetalType == filter.MetalType && row.Purity == filter.Purity {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EffectiveDate.After(result[j].EffectiveDate)
	})
	return result, len(result), nil
}

func (r *memoryRepo) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.rows {
		if r.rows[i].IsActive && r.rows[i].ValidUntil != nil && r.rows[i].ValidUntil.Before(now) {
			r.rows[i].IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) activeCount(metal MetalType, purity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.rows {
		if row.MetalType == metal && row.Purity == purity && row.IsActive {
			count++
		}
	}
	return count
}

// memoryTx mutates the repo under the lock already held by WithTx,
// mirroring the row-level serialisation the database transaction provides.
type memoryTx memoryRepo

func (tx *memoryTx) DeactivateSiblings(ctx context.Context, metal MetalType, purity string) (int64, error) {
	var n int64
	for i := range tx.rows {
		if tx.rows[i].MetalType == metal && tx.rows[i].Purity == purity && tx.rows[i].IsActive {
			tx.rows[i].IsActive = false
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) Insert(ctx context.Context, rate Rate) (int64, error) {
	tx.nextID++
	rate.ID = tx.nextID
	tx.rows = append(tx.rows, rate)
	return rate.ID, nil
}

func (tx *memoryTx) Deactivate(ctx context.Context, id int64) (int64, error) {
	for i := range tx.rows {
		if tx.rows[i].ID == id && tx.rows[i].IsActive {
			tx.rows[i].IsActive = false
			return 1, nil
		}
	}
	return 0, nil
}

func activateInput(metal MetalType, purity, rate string) ActivateInput {
	return ActivateInput{
		MetalType:   metal,
		Purity:      purity,
		RatePerGram: decimal.RequireFromString(rate),
		Source:      SourceManual,
		IsActive:    true,
	}
}

func TestActivateKeepsAtMostOneActive(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for _, rate := range []string{"6400", "6450", "6500", "6475"} {
		_, err := svc.Activate(ctx, activateInput(MetalGold, "22K", rate))
		require.NoError(t, err)
		require.LessOrEqual(t, repo.activeCount(MetalGold, "22K"), 1)
	}

	current, err := svc.Current(ctx, MetalGold, "22K")
	require.NoError(t, err)
	require.True(t, current.RatePerGram.Equal(decimal.RequireFromString("6475")))

	// History keeps every announcement.
	rows, _, err := svc.History(ctx, HistoryFilter{MetalType: MetalGold, Purity: "22K"})
	require.NoError(t, err)
	require.Len(t, rows, 4)
}

func TestActivateConcurrent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Activate(ctx, activateInput(MetalGold, "22K", "6500"))
			if err != nil {
				t.Errorf("activate: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, repo.activeCount(MetalGold, "22K"))
}

func TestActivatePairsAreIndependent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Activate(ctx, activateInput(MetalGold, "22K", "6500"))
	require.NoError(t, err)
	_, err = svc.Activate(ctx, activateInput(MetalGold, "24K", "7100"))
	require.NoError(t, err)
	_, err = svc.Activate(ctx, activateInput(MetalSilver, "925", "85"))
	require.NoError(t, err)

	require.Equal(t, 1, repo.activeCount(MetalGold, "22K"))
	require.Equal(t, 1, repo.activeCount(MetalGold, "24K"))
	require.Equal(t, 1, repo.activeCount(MetalSilver, "925"))
}

func TestActivateRejectsBadWindow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	effective := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := effective.Add(-time.Hour)

	in := activateInput(MetalGold, "22K", "6500")
	in.EffectiveDate = effective
	in.ValidUntil = &before
	_, err := svc.Activate(ctx, in)
	require.ErrorIs(t, err, ErrRateWindow)

	in.ValidUntil = &effective
	_, err = svc.Activate(ctx, in)
	require.ErrorIs(t, err, ErrRateWindow)
}

func TestActivateRejectsInvalidInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Activate(ctx, activateInput("COPPER", "22K", "6500"))
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = svc.Activate(ctx, activateInput(MetalGold, "", "6500"))
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = svc.Activate(ctx, activateInput(MetalGold, "22K", "0"))
	require.ErrorIs(t, err, ErrInvalidRate)

	in := activateInput(MetalGold, "22K", "6500")
	in.Source = "GUESS"
	_, err = svc.Activate(ctx, in)
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestCurrentWithoutActiveRate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Current(ctx, MetalGold, "22K")
	require.ErrorIs(t, err, ErrNoActiveRate)

	// An inactive announcement must not satisfy Current.
	in := activateInput(MetalGold, "22K", "6500")
	in.IsActive = false
	_, err = svc.Activate(ctx, in)
	require.NoError(t, err)

	_, err = svc.Current(ctx, MetalGold, "22K")
	require.ErrorIs(t, err, ErrNoActiveRate)
}

func TestIsValidHonoursWindow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	until := now.Add(24 * time.Hour)
	in := activateInput(MetalGold, "22K", "6500")
	in.ValidUntil = &until
	rate, err := svc.Activate(ctx, in)
	require.NoError(t, err)

	ok, err := svc.IsValid(ctx, rate.ID)
	require.NoError(t, err)
	require.True(t, ok)

	svc.now = func() time.Time { return until.Add(time.Minute) }
	ok, err = svc.IsValid(ctx, rate.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.IsValid(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	past := now.Add(time.Hour)
	in := activateInput(MetalGold, "22K", "6500")
	in.ValidUntil = &past
	_, err := svc.Activate(ctx, in)
	require.NoError(t, err)

	_, err = svc.Activate(ctx, activateInput(MetalSilver, "925", "85"))
	require.NoError(t, err)

	svc.now = func() time.Time { return now.Add(2 * time.Hour) }
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = svc.Current(ctx, MetalGold, "22K")
	require.ErrorIs(t, err, ErrNoActiveRate)
	_, err = svc.Current(ctx, MetalSilver, "925")
	require.NoError(t, err)
}

func TestDeactivate(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	rate, err := svc.Activate(ctx, activateInput(MetalGold, "22K", "6500"))
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, rate.ID, 0))
	_, err = svc.Current(ctx, MetalGold, "22K")
	require.ErrorIs(t, err, ErrNoActiveRate)

	require.ErrorIs(t, svc.Deactivate(ctx, rate.ID, 0), ErrNotFound)
}
