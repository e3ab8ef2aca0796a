package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/ledger"
	"github.com/aurum-erp/aurum-erp/internal/platform/db"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Item, error)
	GetByTag(ctx context.Context, tag string) (Item, error)
	List(ctx context.Context, filter ListFilter) ([]Item, int, error)
	SelectFIFO(ctx context.Context, productID int64, qty int) ([]Item, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the mutation surface available inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, item Item) (int64, error)
	InsertLedger(ctx context.Context, t ledger.Transaction) (int64, error)
	Reserve(ctx context.Context, id int64) (bool, error)
	Release(ctx context.Context, id int64) (bool, error)
}

// DBTX is the query surface the transition helpers need. pgx.Tx satisfies
// it, so the sales orchestrator reuses these helpers inside its own
// transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const itemColumns = `id, product_id, tag_id, barcode, purchase_cost, status, purchase_date,
	sale_date, sales_order_line_id, price_override, override_reason, created_at, updated_at, deleted_at`

// ReserveUnit moves one AVAILABLE unit to RESERVED, optionally recording
// the order line holding it. Returns false when the row was not AVAILABLE.
func ReserveUnit(ctx context.Context, dbc DBTX, id int64, lineID *int64) (bool, error) {
	tag, err := dbc.Exec(ctx, `
		UPDATE stock_items
		SET status = 'RESERVED', sales_order_line_id = COALESCE($2, sales_order_line_id), updated_at = NOW()
		WHERE id = $1 AND status = 'AVAILABLE' AND deleted_at IS NULL`, id, lineID)
	if err != nil {
		return false, fmt.Errorf("reserve stock item %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseReserved moves one RESERVED unit back to AVAILABLE.
func ReleaseReserved(ctx context.Context, dbc DBTX, id int64) (bool, error) {
	tag, err := dbc.Exec(ctx, `
		UPDATE stock_items
		SET status = 'AVAILABLE', sales_order_line_id = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'RESERVED' AND deleted_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("release stock item %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SellUnit moves one AVAILABLE or RESERVED unit to SOLD, stamping the sale
// date and the order line it fulfils.
func SellUnit(ctx context.Context, dbc DBTX, id, lineID int64, saleDate time.Time) (bool, error) {
	tag, err := dbc.Exec(ctx, `
		UPDATE stock_items
		SET status = 'SOLD', sale_date = $3, sales_order_line_id = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('AVAILABLE', 'RESERVED') AND deleted_at IS NULL`,
		id, lineID, pgtype.Timestamptz{Time: saleDate, Valid: true})
	if err != nil {
		return false, fmt.Errorf("sell stock item %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReturnToStock puts a RESERVED or SOLD unit back to AVAILABLE, clearing
// the sale stamp and line back-ref. Used by sale cancellation.
func ReturnToStock(ctx context.Context, dbc DBTX, id int64) (bool, error) {
	tag, err := dbc.Exec(ctx, `
		UPDATE stock_items
		SET status = 'AVAILABLE', sale_date = NULL, sales_order_line_id = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('RESERVED', 'SOLD') AND deleted_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("return stock item %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Repository persists stock items in PostgreSQL.
type Repository struct {
	db   DBTX
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

// Insert stores one unit and returns its id.
func (r *Repository) Insert(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO stock_items (product_id, tag_id, barcode, purchase_cost, status, purchase_date,
			price_override, override_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		item.ProductID, item.TagID, item.Barcode, decimalToNumeric(item.PurchaseCost),
		string(item.Status), pgtype.Timestamptz{Time: item.PurchaseDate, Valid: true},
		decimalPtrToNumeric(item.PriceOverride), textOrNull(item.OverrideReason),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert stock item: %w", err)
	}
	return id, nil
}

// InsertLedger appends a ledger entry within the current transaction.
func (r *Repository) InsertLedger(ctx context.Context, t ledger.Transaction) (int64, error) {
	return ledger.Insert(ctx, r.db, t)
}

// Reserve transitions one unit AVAILABLE -> RESERVED.
func (r *Repository) Reserve(ctx context.Context, id int64) (bool, error) {
	return ReserveUnit(ctx, r.db, id, nil)
}

// Release transitions one unit RESERVED -> AVAILABLE.
func (r *Repository) Release(ctx context.Context, id int64) (bool, error) {
	return ReleaseReserved(ctx, r.db, id)
}

// Get returns one unit by id.
func (r *Repository) Get(ctx context.Context, id int64) (Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = $1 AND deleted_at IS NULL`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

// GetByTag returns one unit by its tag id.
func (r *Repository) GetByTag(ctx context.Context, tag string) (Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE tag_id = $1 AND deleted_at IS NULL`, tag)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

// SelectFIFO returns up to qty AVAILABLE units of a product, oldest
// purchase first with id as the tiebreak.
func (r *Repository) SelectFIFO(ctx context.Context, productID int64, qty int) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+` FROM stock_items
		WHERE product_id = $1 AND status = 'AVAILABLE' AND deleted_at IS NULL
		ORDER BY purchase_date ASC, id ASC
		LIMIT $2`, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("select fifo: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// List returns units matching the filter plus the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Item, int, error) {
	conds := []string{"deleted_at IS NULL"}
	var args []interface{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		conds = append(conds, "product_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stock items: %w", err)
	}

	query := `SELECT ` + itemColumns + ` FROM stock_items` + where + ` ORDER BY purchase_date ASC, id ASC`
	if filter.PerPage > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.PerPage
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PerPage, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list stock items: %w", err)
	}
	defer rows.Close()
	items, err := collectItems(rows)
	return items, total, err
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item           Item
		status         string
		purchaseCost   pgtype.Numeric
		purchaseDate   pgtype.Timestamptz
		saleDate       pgtype.Timestamptz
		lineID         pgtype.Int8
		override       pgtype.Numeric
		overrideReason pgtype.Text
		createdAt      pgtype.Timestamptz
		updatedAt      pgtype.Timestamptz
		deletedAt      pgtype.Timestamptz
	)
	err := row.Scan(&item.ID, &item.ProductID, &item.TagID, &item.Barcode, &purchaseCost, &status,
		&purchaseDate, &saleDate, &lineID, &override, &overrideReason, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return Item{}, err
	}
	item.PurchaseCost = numericToDecimal(purchaseCost)
	item.Status = Status(status)
	item.PurchaseDate = purchaseDate.Time
	if saleDate.Valid {
		t := saleDate.Time
		item.SaleDate = &t
	}
	if lineID.Valid {
		item.SalesOrderLineID = &lineID.Int64
	}
	if override.Valid {
		d := numericToDecimal(override)
		item.PriceOverride = &d
	}
	item.OverrideReason = overrideReason.String
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time
	if deletedAt.Valid {
		t := deletedAt.Time
		item.DeletedAt = &t
	}
	return item, nil
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
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

func decimalPtrToNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(*d)
}
