package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/ledger"
	"github.com/aurum-erp/aurum-erp/internal/platform/db"
	"github.com/aurum-erp/aurum-erp/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the mutation surface of one sale transaction. Stock
// transitions and the ledger entry go through here so they commit or roll
// back with the order.
type TxRepository interface {
	NextInvoiceNumber(ctx context.Context, at time.Time) (string, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	LinesForOrder(ctx context.Context, orderID int64) ([]Line, error)
	MarkCancelled(ctx context.Context, orderID int64) (bool, error)
	UpdatePayment(ctx context.Context, orderID int64, paid decimal.Decimal, status PaymentStatus) error
	InsertPayment(ctx context.Context, payment Payment) (int64, error)
	InsertLedger(ctx context.Context, t ledger.Transaction) (int64, error)
	SellUnit(ctx context.Context, itemID, lineID int64, saleDate time.Time) (bool, error)
	ReserveUnit(ctx context.Context, itemID, lineID int64) (bool, error)
	ReturnUnit(ctx context.Context, itemID int64) (bool, error)
}

const orderColumns = `id, invoice_number, customer_id, status, order_total, discount, final_amount,
	payment_status, payment_method, paid_amount, sale_date, created_by, created_at, updated_at`

const lineColumns = `id, order_id, stock_item_id, product_id, quantity, unit_price, line_total,
	price_source, rate_used_id`

// Repository persists sales orders in PostgreSQL.
type Repository struct {
	db   stock.DBTX
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx executes the callback inside one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx, pool: r.pool})
	})
}

// NextInvoiceNumber advances the per-month sequence and formats
// INV-YYMM-NNNN. The upsert serializes concurrent callers on the period
// row, so numbers never repeat.
func (r *Repository) NextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	period := at.UTC().Format("0601")
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoice_sequences (period, seq) VALUES ($1, 1)
		ON CONFLICT (period) DO UPDATE SET seq = invoice_sequences.seq + 1
		RETURNING seq`, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%s-%04d", period, seq), nil
}

// InsertOrder stores the order header.
func (r *Repository) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_orders (invoice_number, customer_id, status, order_total, discount, final_amount,
			payment_status, payment_method, paid_amount, sale_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		order.InvoiceNumber, order.CustomerID, string(order.Status),
		decimalToNumeric(order.OrderTotal), decimalToNumeric(order.Discount), decimalToNumeric(order.FinalAmount),
		string(order.PaymentStatus), order.PaymentMethod, decimalToNumeric(order.PaidAmount),
		timestamptzPtr(order.SaleDate), order.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sales order: %w", err)
	}
	return id, nil
}

// InsertLine stores one order line.
func (r *Repository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_order_lines (order_id, stock_item_id, product_id, quantity, unit_price, line_total,
			price_source, rate_used_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		line.OrderID, line.StockItemID, line.ProductID, line.Quantity,
		decimalToNumeric(line.UnitPrice), decimalToNumeric(line.LineTotal),
		line.PriceSource, line.RateUsedID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sales order line: %w", err)
	}
	return id, nil
}

// GetOrder returns the order header by id.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return order, err
}

// Get returns the order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	order, err := r.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	order.Lines, err = r.LinesForOrder(ctx, id)
	return order, err
}

// LinesForOrder returns all lines of one order.
func (r *Repository) LinesForOrder(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lineColumns+` FROM sales_order_lines WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("lines for order %d: %w", orderID, err)
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// List returns order headers matching the filter plus the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(expr string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, expr+" $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		add("status =", string(filter.Status))
	}
	if filter.CustomerID != 0 {
		add("customer_id =", filter.CustomerID)
	}
	if filter.From != nil {
		add("created_at >=", *filter.From)
	}
	if filter.To != nil {
		add("created_at <", *filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM sales_orders` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.PerPage > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.PerPage
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PerPage, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// MarkCancelled flips a PENDING or COMPLETED order to CANCELLED.
func (r *Repository) MarkCancelled(ctx context.Context, orderID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_orders SET status = 'CANCELLED', updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'COMPLETED')`, orderID)
	if err != nil {
		return false, fmt.Errorf("cancel sales order %d: %w", orderID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePayment sets the running paid amount and derived status.
func (r *Repository) UpdatePayment(ctx context.Context, orderID int64, paid decimal.Decimal, status PaymentStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_orders SET paid_amount = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1`, orderID, decimalToNumeric(paid), string(status))
	if err != nil {
		return fmt.Errorf("update payment for order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPayment stores one installment.
func (r *Repository) InsertPayment(ctx context.Context, payment Payment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, amount, method, paid_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		payment.OrderID, decimalToNumeric(payment.Amount), payment.Method,
		pgtype.Timestamptz{Time: payment.PaidAt, Valid: true}, payment.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}

// InsertLedger appends a ledger entry within the current transaction.
func (r *Repository) InsertLedger(ctx context.Context, t ledger.Transaction) (int64, error) {
	return ledger.Insert(ctx, r.db, t)
}

// SellUnit moves one unit to SOLD within the current transaction.
func (r *Repository) SellUnit(ctx context.Context, itemID, lineID int64, saleDate time.Time) (bool, error) {
	return stock.SellUnit(ctx, r.db, itemID, lineID, saleDate)
}

// ReserveUnit moves one unit to RESERVED within the current transaction.
func (r *Repository) ReserveUnit(ctx context.Context, itemID, lineID int64) (bool, error) {
	return stock.ReserveUnit(ctx, r.db, itemID, &lineID)
}

// ReturnUnit puts one unit back to AVAILABLE within the current transaction.
func (r *Repository) ReturnUnit(ctx context.Context, itemID int64) (bool, error) {
	return stock.ReturnToStock(ctx, r.db, itemID)
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o             Order
		status        string
		orderTotal    pgtype.Numeric
		discount      pgtype.Numeric
		finalAmount   pgtype.Numeric
		paymentStatus string
		paidAmount    pgtype.Numeric
		saleDate      pgtype.Timestamptz
		createdAt     pgtype.Timestamptz
		updatedAt     pgtype.Timestamptz
	)
	err := row.Scan(&o.ID, &o.InvoiceNumber, &o.CustomerID, &status, &orderTotal, &discount, &finalAmount,
		&paymentStatus, &o.PaymentMethod, &paidAmount, &saleDate, &o.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Status = OrderStatus(status)
	o.OrderTotal = numericToDecimal(orderTotal)
	o.Discount = numericToDecimal(discount)
	o.FinalAmount = numericToDecimal(finalAmount)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	o.PaidAmount = numericToDecimal(paidAmount)
	if saleDate.Valid {
		t := saleDate.Time
		o.SaleDate = &t
	}
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return o, nil
}

func scanLine(row pgx.Row) (Line, error) {
	var (
		l         Line
		unitPrice pgtype.Numeric
		lineTotal pgtype.Numeric
		rateUsed  pgtype.Int8
	)
	err := row.Scan(&l.ID, &l.OrderID, &l.StockItemID, &l.ProductID, &l.Quantity,
		&unitPrice, &lineTotal, &l.PriceSource, &rateUsed)
	if err != nil {
		return Line{}, err
	}
	l.UnitPrice = numericToDecimal(unitPrice)
	l.LineTotal = numericToDecimal(lineTotal)
	if rateUsed.Valid {
		l.RateUsedID = &rateUsed.Int64
	}
	return l, nil
}

func timestamptzPtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
