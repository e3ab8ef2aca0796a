package catalog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/platform/db"
	"github.com/aurum-erp/aurum-erp/internal/rates"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Create(ctx context.Context, product Product) (int64, error)
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int, error)
	Update(ctx context.Context, product Product) error
	SoftDelete(ctx context.Context, id int64, at time.Time) (int64, error)
	ListForReprice(ctx context.Context, metal rates.MetalType, purity, collection string, ids []int64) ([]Product, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional price updates for the bulk repricer.
type TxRepository interface {
	UpdateCalculatedPrice(ctx context.Context, productID int64, price decimal.Decimal, rateID int64, at time.Time) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists products in PostgreSQL.
type Repository struct {
	db   dbtx
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

const productColumns = `id, sku, name, metal_type, purity, net_weight, wastage_percent, making_charges,
	stone_weight, stone_value, price_override, override_reason, calculated_price, last_price_update,
	rate_used_id, collection_name, created_at, updated_at, deleted_at`

func (r *Repository) Create(ctx context.Context, product Product) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO products
		(sku, name, metal_type, purity, net_weight, wastage_percent, making_charges,
		 stone_weight, stone_value, price_override, override_reason, collection_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13) RETURNING id`,
		product.SKU, product.Name, string(product.MetalType), product.Purity,
		decimalToNumeric(product.NetWeight), decimalToNumeric(product.WastagePercent),
		decimalToNumeric(product.MakingCharges), decimalToNumeric(product.StoneWeight),
		decimalToNumeric(product.StoneValue), decimalPtrToNumeric(product.PriceOverride),
		product.OverrideReason, product.CollectionName,
		pgtype.Timestamptz{Time: product.CreatedAt, Valid: true},
	).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, ErrDuplicateSKU
		}
		return 0, err
	}
	return id, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return product, nil
}

// List uses a dynamic query due to filter combinations.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 0

	if filter.MetalType != "" {
		argCount++
		where += ` AND metal_type = $` + strconv.Itoa(argCount)
		args = append(args, string(filter.MetalType))
	}
	if filter.Purity != "" {
		argCount++
		where += ` AND purity = $` + strconv.Itoa(argCount)
		args = append(args, filter.Purity)
	}
	if filter.CollectionName != "" {
		argCount++
		where += ` AND collection_name = $` + strconv.Itoa(argCount)
		args = append(args, filter.CollectionName)
	}
	if filter.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	argCount++
	limitClause := ` ORDER BY id LIMIT $` + strconv.Itoa(argCount)
	args = append(args, perPage)
	argCount++
	limitClause += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*perPage)

	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products`+where+limitClause, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}
	return products, total, rows.Err()
}

func (r *Repository) Update(ctx context.Context, product Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET
		name = $2, metal_type = $3, purity = $4, net_weight = $5, wastage_percent = $6,
		making_charges = $7, stone_weight = $8, stone_value = $9, price_override = $10,
		override_reason = $11, collection_name = $12, updated_at = $13
		WHERE id = $1 AND deleted_at IS NULL`,
		product.ID, product.Name, string(product.MetalType), product.Purity,
		decimalToNumeric(product.NetWeight), decimalToNumeric(product.WastagePercent),
		decimalToNumeric(product.MakingCharges), decimalToNumeric(product.StoneWeight),
		decimalToNumeric(product.StoneValue), decimalPtrToNumeric(product.PriceOverride),
		product.OverrideReason, product.CollectionName,
		pgtype.Timestamptz{Time: product.UpdatedAt, Valid: true})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SoftDelete(ctx context.Context, id int64, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE products SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, pgtype.Timestamptz{Time: at, Valid: true})
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListForReprice selects candidates for a bulk reprice run.
func (r *Repository) ListForReprice(ctx context.Context, metal rates.MetalType, purity, collection string, ids []int64) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE deleted_at IS NULL`
	args := []interface{}{}
	argCount := 0

	if metal != "" {
		argCount++
		query += ` AND metal_type = $` + strconv.Itoa(argCount)
		args = append(args, string(metal))
	}
	if purity != "" {
		argCount++
		query += ` AND purity = $` + strconv.Itoa(argCount)
		args = append(args, purity)
	}
	if collection != "" {
		argCount++
		query += ` AND collection_name = $` + strconv.Itoa(argCount)
		args = append(args, collection)
	}
	if len(ids) > 0 {
		argCount++
		query += ` AND id = ANY($` + strconv.Itoa(argCount) + `)`
		args = append(args, ids)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (r *Repository) UpdateCalculatedPrice(ctx context.Context, productID int64, price decimal.Decimal, rateID int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET calculated_price = $2, last_price_update = $3, rate_used_id = $4
		WHERE id = $1 AND deleted_at IS NULL`,
		productID, decimalToNumeric(price), pgtype.Timestamptz{Time: at, Valid: true}, rateID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p               Product
		metal           string
		netWeight       pgtype.Numeric
		wastage         pgtype.Numeric
		making          pgtype.Numeric
		stoneWeight     pgtype.Numeric
		stoneValue      pgtype.Numeric
		override        pgtype.Numeric
		overrideReason  pgtype.Text
		calculated      pgtype.Numeric
		lastPriceUpdate pgtype.Timestamptz
		rateUsedID      pgtype.Int8
		collection      pgtype.Text
		createdAt       pgtype.Timestamptz
		updatedAt       pgtype.Timestamptz
		deletedAt       pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &metal, &p.Purity, &netWeight, &wastage, &making,
		&stoneWeight, &stoneValue, &override, &overrideReason, &calculated, &lastPriceUpdate,
		&rateUsedID, &collection, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return Product{}, err
	}
	p.MetalType = rates.MetalType(metal)
	p.NetWeight = numericToDecimal(netWeight)
	p.WastagePercent = numericToDecimal(wastage)
	p.MakingCharges = numericToDecimal(making)
	p.StoneWeight = numericToDecimal(stoneWeight)
	p.StoneValue = numericToDecimal(stoneValue)
	if override.Valid {
		d := numericToDecimal(override)
		p.PriceOverride = &d
	}
	p.OverrideReason = overrideReason.String
	p.CalculatedPrice = numericToDecimal(calculated)
	if lastPriceUpdate.Valid {
		t := lastPriceUpdate.Time
		p.LastPriceUpdate = &t
	}
	if rateUsedID.Valid {
		p.RateUsedID = &rateUsedID.Int64
	}
	p.CollectionName = collection.String
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return p, nil
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
