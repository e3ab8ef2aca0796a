package sales

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/ledger"
	"github.com/aurum-erp/aurum-erp/internal/shared"
	"github.com/aurum-erp/aurum-erp/internal/stock"
)

// StockPort is what the orchestrator needs from the stock ledger: ref
// resolution and on-demand unit pricing.
type StockPort interface {
	Get(ctx context.Context, id int64) (stock.Item, error)
	GetByTag(ctx context.Context, tag string) (stock.Item, error)
	QuoteItem(ctx context.Context, item stock.Item) (stock.Quote, error)
}

// IdempotencyPort guards sale creation against duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records order events for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the sale transaction.
type Service struct {
	repo      RepositoryPort
	stock     StockPort
	idem      IdempotencyPort
	audit     AuditPort
	txTimeout time.Duration
	now       func() time.Time
}

// NewService builds Service. Idempotency and audit may be nil. txTimeout
// bounds the sale transaction; zero disables the bound.
func NewService(repo RepositoryPort, stockPort StockPort, idem IdempotencyPort, audit AuditPort, txTimeout time.Duration) *Service {
	return &Service{
		repo:      repo,
		stock:     stockPort,
		idem:      idem,
		audit:     audit,
		txTimeout: txTimeout,
		now:       time.Now,
	}
}

// CreateSaleInput describes one sale.
type CreateSaleInput struct {
	CustomerID     int64
	Items          []ItemRef
	Discount       decimal.Decimal
	PaymentMethod  string
	PaidAmount     decimal.Decimal
	AsPending      bool
	IdempotencyKey string
	ActorID        int64
}

type pricedLine struct {
	item  stock.Item
	quote stock.Quote
	qty   int
	total decimal.Decimal
}

// Create runs the whole sale as one transaction: freeze unit prices,
// persist the order and its lines, flip every unit's status with a
// conditional update, post the income entry, record the payment. Any
// failure at any step rolls everything back.
func (s *Service) Create(ctx context.Context, in CreateSaleInput) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item required", ErrInvalidInput)
	}
	if in.Discount.IsNegative() {
		return Order{}, fmt.Errorf("%w: discount must not be negative", ErrInvalidInput)
	}
	if in.PaidAmount.IsNegative() {
		return Order{}, fmt.Errorf("%w: paid amount must not be negative", ErrInvalidInput)
	}

	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, "sales"); err != nil {
			return Order{}, err
		}
	}
	order, err := s.create(ctx, in)
	if err != nil && in.IdempotencyKey != "" && s.idem != nil {
		// A failed sale must not poison the key for a retry.
		_ = s.idem.Delete(context.WithoutCancel(ctx), in.IdempotencyKey)
	}
	return order, err
}

func (s *Service) create(ctx context.Context, in CreateSaleInput) (Order, error) {
	priced := make([]pricedLine, 0, len(in.Items))
	orderTotal := decimal.Zero
	for _, ref := range in.Items {
		item, err := s.resolve(ctx, ref)
		if err != nil {
			return Order{}, err
		}
		if item.Status != stock.StatusAvailable {
			return Order{}, stock.NotAvailable(itemRefString(ref))
		}
		quote, err := s.stock.QuoteItem(ctx, item)
		if err != nil {
			return Order{}, err
		}
		qty := ref.Quantity
		if qty <= 0 {
			qty = 1
		}
		total := quote.UnitPrice.Mul(decimal.NewFromInt(int64(qty))).Round(2)
		priced = append(priced, pricedLine{item: item, quote: quote, qty: qty, total: total})
		orderTotal = orderTotal.Add(total)
	}

	finalAmount := orderTotal.Sub(in.Discount)
	if finalAmount.IsNegative() {
		return Order{}, fmt.Errorf("%w: discount %s exceeds order total %s",
			ErrInvalidDiscount, in.Discount, orderTotal)
	}

	now := s.now().UTC()
	order := Order{
		CustomerID:    in.CustomerID,
		Status:        OrderCompleted,
		OrderTotal:    orderTotal,
		Discount:      in.Discount,
		FinalAmount:   finalAmount,
		PaymentStatus: DerivePaymentStatus(in.PaidAmount, finalAmount),
		PaymentMethod: in.PaymentMethod,
		PaidAmount:    in.PaidAmount,
		CreatedBy:     in.ActorID,
	}
	if in.AsPending {
		order.Status = OrderPending
	} else {
		order.SaleDate = &now
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invoice, err := tx.NextInvoiceNumber(ctx, now)
		if err != nil {
			return err
		}
		order.InvoiceNumber = invoice

		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID

		for _, pl := range priced {
			line := Line{
				OrderID:     orderID,
				StockItemID: pl.item.ID,
				ProductID:   pl.item.ProductID,
				Quantity:    pl.qty,
				UnitPrice:   pl.quote.UnitPrice,
				LineTotal:   pl.total,
				PriceSource: string(pl.quote.Source),
			}
			if pl.quote.RateID != 0 {
				rateID := pl.quote.RateID
				line.RateUsedID = &rateID
			}
			lineID, err := tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID

			var ok bool
			if in.AsPending {
				ok, err = tx.ReserveUnit(ctx, pl.item.ID, lineID)
			} else {
				ok, err = tx.SellUnit(ctx, pl.item.ID, lineID, now)
			}
			if err != nil {
				return err
			}
			if !ok {
				// Another transaction took this unit between pricing
				// and commit.
				return stock.NotAvailable(pl.item.TagID)
			}
			order.Lines = append(order.Lines, line)
		}

		if order.Status == OrderCompleted {
			if _, err := tx.InsertLedger(ctx, ledger.Transaction{
				Type:      ledger.TypeIncome,
				Amount:    finalAmount,
				RefModule: "sales",
				RefID:     orderID,
				Note:      "sale " + order.InvoiceNumber,
				PostedAt:  now,
				CreatedBy: in.ActorID,
			}); err != nil {
				return err
			}
		}
		if in.PaidAmount.IsPositive() {
			if _, err := tx.InsertPayment(ctx, Payment{
				OrderID:   orderID,
				Amount:    in.PaidAmount,
				Method:    in.PaymentMethod,
				PaidAt:    now,
				CreatedBy: in.ActorID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		order.Lines = nil
		return Order{}, err
	}
	s.recordAudit(ctx, in.ActorID, "sales:create", order.ID)
	return order, nil
}

// Cancel reverses a PENDING or COMPLETED order: every line's unit goes
// back to AVAILABLE and the order becomes CANCELLED. Ledger entries stay;
// financial history is append-only.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderPending && order.Status != OrderCompleted {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, orderID, order.Status)
		}
		lines, err := tx.LinesForOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			ok, err := tx.ReturnUnit(ctx, line.StockItemID)
			if err != nil {
				return err
			}
			if !ok {
				return stock.NotAvailable(strconv.FormatInt(line.StockItemID, 10))
			}
		}
		ok, err := tx.MarkCancelled(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %d changed concurrently", ErrInvalidState, orderID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "sales:cancel", orderID)
	return nil
}

// RecordPayment adds one installment and re-derives the payment status.
func (s *Service) RecordPayment(ctx context.Context, orderID int64, amount decimal.Decimal, method string, actorID int64) (Order, error) {
	if !amount.IsPositive() {
		return Order{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	var updated Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderCancelled {
			return fmt.Errorf("%w: order %d is cancelled", ErrInvalidState, orderID)
		}
		newPaid := order.PaidAmount.Add(amount)
		status := DerivePaymentStatus(newPaid, order.FinalAmount)
		if _, err := tx.InsertPayment(ctx, Payment{
			OrderID:   orderID,
			Amount:    amount,
			Method:    method,
			PaidAt:    s.now().UTC(),
			CreatedBy: actorID,
		}); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, orderID, newPaid, status); err != nil {
			return err
		}
		order.PaidAmount = newPaid
		order.PaymentStatus = status
		updated = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "sales:payment", orderID)
	return updated, nil
}

// Get returns one order with lines.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns order headers matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, shared.Pagination, error) {
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) resolve(ctx context.Context, ref ItemRef) (stock.Item, error) {
	switch {
	case ref.StockItemID > 0:
		return s.stock.Get(ctx, ref.StockItemID)
	case ref.TagID != "":
		return s.stock.GetByTag(ctx, ref.TagID)
	default:
		return stock.Item{}, fmt.Errorf("%w: item ref needs stock_item_id or tag_id", ErrInvalidInput)
	}
}

func itemRefString(ref ItemRef) string {
	if ref.TagID != "" {
		return ref.TagID
	}
	return strconv.FormatInt(ref.StockItemID, 10)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales_order",
		EntityID: strconv.FormatInt(orderID, 10),
	})
}
