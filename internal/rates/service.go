package rates

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aurum-erp/aurum-erp/internal/shared"
)

// AuditPort records rate changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates rate master operations.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service. Cache and audit may be nil.
func NewService(repo RepositoryPort, cache *Cache, audit AuditPort) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, now: time.Now}
}

// Current resolves the active rate with the most recent effective date for
// the pair. Misses surface as ErrNoActiveRate, never as a zero rate.
func (s *Service) Current(ctx context.Context, metal MetalType, purity string) (Rate, error) {
	if !metal.Valid() {
		return Rate{}, fmt.Errorf("%w: unknown metal type %q", ErrInvalidRate, metal)
	}
	if purity == "" {
		return Rate{}, fmt.Errorf("%w: purity required", ErrInvalidRate)
	}
	return s.cache.FetchCurrent(ctx, metal, purity, func(ctx context.Context) (Rate, error) {
		return s.repo.Current(ctx, metal, purity)
	})
}

// Activate appends a new rate announcement. When the new rate is active,
// every sibling for the same (metal type, purity) pair is deactivated in
// the same transaction, so at most one active row exists at any instant.
func (s *Service) Activate(ctx context.Context, in ActivateInput) (Rate, error) {
	if !in.MetalType.Valid() {
		return Rate{}, fmt.Errorf("%w: unknown metal type %q", ErrInvalidRate, in.MetalType)
	}
	if in.Purity == "" {
		return Rate{}, fmt.Errorf("%w: purity required", ErrInvalidRate)
	}
	if !in.RatePerGram.IsPositive() {
		return Rate{}, fmt.Errorf("%w: rate per gram must be positive", ErrInvalidRate)
	}
	switch in.Source {
	case SourceMarket, SourceManual, SourceAPI:
	default:
		return Rate{}, fmt.Errorf("%w: unknown source %q", ErrInvalidRate, in.Source)
	}
	now := s.now().UTC()
	effective := in.EffectiveDate
	if effective.IsZero() {
		effective = now
	}
	if in.ValidUntil != nil && !in.ValidUntil.After(effective) {
		return Rate{}, ErrRateWindow
	}

	rate := Rate{
		MetalType:     in.MetalType,
		Purity:        in.Purity,
		RatePerGram:   in.RatePerGram,
		EffectiveDate: effective,
		ValidUntil:    in.ValidUntil,
		IsActive:      in.IsActive,
		Source:        in.Source,
		CreatedBy:     in.ActorID,
		CreatedAt:     now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if rate.IsActive {
			if _, err := tx.DeactivateSiblings(ctx, rate.MetalType, rate.Purity); err != nil {
				return fmt.Errorf("deactivate siblings: %w", err)
			}
		}
		id, err := tx.Insert(ctx, rate)
		if err != nil {
			return fmt.Errorf("insert rate: %w", err)
		}
		rate.ID = id
		return nil
	})
	if err != nil {
		return Rate{}, err
	}
	if rate.IsActive {
		if err := s.cache.Bump(ctx); err != nil {
			return Rate{}, fmt.Errorf("bump rate cache: %w", err)
		}
	}
	s.recordAudit(ctx, in.ActorID, "rates:activate", rate)
	return rate, nil
}

// Deactivate turns one active rate off.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) error {
	var affected int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.Deactivate(ctx, id)
		if err != nil {
			return err
		}
		affected = n
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	if err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("bump rate cache: %w", err)
	}
	s.recordAudit(ctx, actorID, "rates:deactivate", Rate{ID: id})
	return nil
}

// IsValid reports whether the rate is active and inside its validity window.
func (s *Service) IsValid(ctx context.Context, id int64) (bool, error) {
	rate, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !rate.IsActive {
		return false, nil
	}
	if rate.ValidUntil != nil && s.now().After(*rate.ValidUntil) {
		return false, nil
	}
	return true, nil
}

// Get returns one rate row.
func (s *Service) Get(ctx context.Context, id int64) (Rate, error) {
	return s.repo.Get(ctx, id)
}

// History lists announcements for a pair, newest effective date first.
// Display and audit only; pricing decisions always go through Current.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Rate, shared.Pagination, error) {
	if !filter.MetalType.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown metal type %q", ErrInvalidRate, filter.MetalType)
	}
	if filter.Purity == "" {
		return nil, shared.Pagination{}, fmt.Errorf("%w: purity required", ErrInvalidRate)
	}
	rows, total, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rows, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// SweepExpired deactivates rates whose validity window has passed.
// Called from the background worker.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := s.cache.Bump(ctx); err != nil {
			return n, fmt.Errorf("bump rate cache: %w", err)
		}
	}
	return n, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, rate Rate) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "metal_rate",
		EntityID: strconv.FormatInt(rate.ID, 10),
		Meta: map[string]any{
			"metal_type":    rate.MetalType,
			"purity":        rate.Purity,
			"rate_per_gram": rate.RatePerGram,
		},
	})
}
