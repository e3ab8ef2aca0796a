package stock

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/catalog"
	"github.com/aurum-erp/aurum-erp/internal/ledger"
	"github.com/aurum-erp/aurum-erp/internal/shared"
)

// CatalogPort is what stock pricing needs from the product catalog.
type CatalogPort interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
	QuoteFor(ctx context.Context, product catalog.Product) (catalog.PriceQuote, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TagGenerator produces the immutable identifiers assigned at receipt.
type TagGenerator interface {
	TagID() string
	Barcode() string
}

// UUIDTagGenerator derives opaque tag ids and numeric barcodes from
// random UUIDs.
type UUIDTagGenerator struct{}

func (UUIDTagGenerator) TagID() string {
	u := uuid.New()
	return "TAG-" + strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:12])
}

func (UUIDTagGenerator) Barcode() string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8]) % 10_000_000_000_000
	return fmt.Sprintf("%013d", n)
}

// Service coordinates the stock item ledger.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	tags    TagGenerator
	audit   AuditPort
	now     func() time.Time
}

// NewService builds Service. A nil generator falls back to UUID-derived
// identifiers.
func NewService(repo RepositoryPort, cat CatalogPort, tags TagGenerator, audit AuditPort) *Service {
	if tags == nil {
		tags = UUIDTagGenerator{}
	}
	return &Service{repo: repo, catalog: cat, tags: tags, audit: audit, now: time.Now}
}

// ReceiveInput describes a purchase receipt of identical units.
type ReceiveInput struct {
	ProductID      int64
	Quantity       int
	PurchaseCost   decimal.Decimal
	PurchaseDate   time.Time
	PaidAmount     decimal.Decimal
	PriceOverride  *decimal.Decimal
	OverrideReason string
	Note           string
	ActorID        int64
}

// Receive creates Quantity units in AVAILABLE state, each with a fresh tag
// and barcode, and posts an expense entry when any amount was paid. The
// units and the ledger entry commit or roll back together.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) ([]Item, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if !in.PurchaseCost.IsPositive() {
		return nil, fmt.Errorf("%w: purchase cost must be positive", ErrInvalidInput)
	}
	if in.PaidAmount.IsNegative() {
		return nil, fmt.Errorf("%w: paid amount must not be negative", ErrInvalidInput)
	}
	if in.PriceOverride != nil {
		if in.PriceOverride.IsNegative() {
			return nil, fmt.Errorf("%w: price override must not be negative", ErrInvalidInput)
		}
		if in.OverrideReason == "" {
			return nil, fmt.Errorf("%w: override reason required when price override is set", ErrInvalidInput)
		}
	}
	if _, err := s.catalog.Get(ctx, in.ProductID); err != nil {
		return nil, fmt.Errorf("receive stock: %w", err)
	}
	purchaseDate := in.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = s.now().UTC()
	}

	items := make([]Item, 0, in.Quantity)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i := 0; i < in.Quantity; i++ {
			item := Item{
				ProductID:      in.ProductID,
				TagID:          s.tags.TagID(),
				Barcode:        s.tags.Barcode(),
				PurchaseCost:   in.PurchaseCost,
				Status:         StatusAvailable,
				PurchaseDate:   purchaseDate,
				PriceOverride:  in.PriceOverride,
				OverrideReason: in.OverrideReason,
			}
			id, err := tx.Insert(ctx, item)
			if err != nil {
				return err
			}
			item.ID = id
			items = append(items, item)
		}
		if in.PaidAmount.IsPositive() {
			note := in.Note
			if note == "" {
				note = fmt.Sprintf("purchase of %d unit(s)", in.Quantity)
			}
			if _, err := tx.InsertLedger(ctx, ledger.Transaction{
				Type:      ledger.TypeExpense,
				Amount:    in.PaidAmount,
				RefModule: "stock",
				RefID:     in.ProductID,
				Note:      note,
				PostedAt:  s.now().UTC(),
				CreatedBy: in.ActorID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, in.ActorID, "stock:receive", in.ProductID)
	return items, nil
}

// Get returns one unit by id.
func (s *Service) Get(ctx context.Context, id int64) (Item, error) {
	return s.repo.Get(ctx, id)
}

// GetByTag returns one unit by tag id.
func (s *Service) GetByTag(ctx context.Context, tag string) (Item, error) {
	return s.repo.GetByTag(ctx, tag)
}

// List returns units matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Item, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// SelectFIFO picks up to qty AVAILABLE units of a product in purchase
// order. A short pick is reported through Shortfall, not an error; it is
// the caller's call whether a partial pick is acceptable.
func (s *Service) SelectFIFO(ctx context.Context, productID int64, qty int) (FIFOSelection, error) {
	if qty <= 0 {
		return FIFOSelection{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	items, err := s.repo.SelectFIFO(ctx, productID, qty)
	if err != nil {
		return FIFOSelection{}, err
	}
	return FIFOSelection{Items: items, Requested: qty, Shortfall: qty - len(items)}, nil
}

// Price quotes one unit's selling price. An item-level override wins over
// a product-level override, which wins over the computed price. Nothing is
// persisted.
func (s *Service) Price(ctx context.Context, itemID int64) (Quote, error) {
	item, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return Quote{}, err
	}
	return s.QuoteItem(ctx, item)
}

// QuoteItem prices an already-loaded unit.
func (s *Service) QuoteItem(ctx context.Context, item Item) (Quote, error) {
	if item.PriceOverride != nil {
		return Quote{
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			Source:         SourceItemOverride,
			OverrideReason: item.OverrideReason,
			UnitPrice:      *item.PriceOverride,
		}, nil
	}
	product, err := s.catalog.Get(ctx, item.ProductID)
	if err != nil {
		return Quote{}, fmt.Errorf("price stock item %d: %w", item.ID, err)
	}
	pq, err := s.catalog.QuoteFor(ctx, product)
	if err != nil {
		return Quote{}, fmt.Errorf("price stock item %d: %w", item.ID, err)
	}
	quote := Quote{
		ItemID:    item.ID,
		ProductID: item.ProductID,
		Source:    SourceCalculated,
		RateID:    pq.RateID,
		Breakdown: pq.Breakdown,
		UnitPrice: pq.FinalPrice,
	}
	if pq.Overridden {
		quote.Source = SourceProductOverride
		quote.OverrideReason = pq.OverrideReason
		quote.RateID = 0
		quote.Breakdown = nil
	}
	return quote, nil
}

// Reserve moves the given units AVAILABLE -> RESERVED. Any unit that is
// not AVAILABLE aborts the whole batch.
func (s *Service) Reserve(ctx context.Context, ids []int64, actorID int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no stock item ids", ErrInvalidInput)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range ids {
			ok, err := tx.Reserve(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return NotAvailable(strconv.FormatInt(id, 10))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock:reserve", 0)
	return nil
}

// Release moves the given units RESERVED -> AVAILABLE. Any unit that is
// not RESERVED aborts the whole batch.
func (s *Service) Release(ctx context.Context, ids []int64, actorID int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no stock item ids", ErrInvalidInput)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range ids {
			ok, err := tx.Release(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return NotAvailable(strconv.FormatInt(id, 10))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "stock:release", 0)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, refID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_item",
		EntityID: strconv.FormatInt(refID, 10),
	})
}
