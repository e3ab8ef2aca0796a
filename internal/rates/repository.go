package rates

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/aurum-erp/aurum-erp/internal/platform/db"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Current(ctx context.Context, metal MetalType, purity string) (Rate, error)
	Get(ctx context.Context, id int64) (Rate, error)
	History(ctx context.Context, filter HistoryFilter) ([]Rate, int, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// TxRepository exposes the transactional operations used by Activate.
type TxRepository interface {
	DeactivateSiblings(ctx context.Context, metal MetalType, purity string) (int64, error)
	Insert(ctx context.Context, rate Rate) (int64, error)
	Deactivate(ctx context.Context, id int64) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists rates in PostgreSQL.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx executes the callback inside one transaction so the
// deactivate-then-insert pair is never observed half-applied.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{db: tx, pool: r.pool})
	})
}

const rateColumns = `id, metal_type, purity, rate_per_gram, effective_date, valid_until, is_active, source, created_by, created_at`

func (r *Repository) Current(ctx context.Context, metal MetalType, purity string) (Rate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+rateColumns+` FROM metal_rates
		WHERE metal_type = $1 AND purity = $2 AND is_active
		ORDER BY effective_date DESC, id DESC LIMIT 1`, string(metal), purity)
	rate, err := scanRate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rate{}, ErrNoActiveRate
		}
		return Rate{}, err
	}
	return rate, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Rate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+rateColumns+` FROM metal_rates WHERE id = $1`, id)
	rate, err := scanRate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rate{}, ErrNotFound
		}
		return Rate{}, err
	}
	return rate, nil
}

func (r *Repository) History(ctx context.Context, filter HistoryFilter) ([]Rate, int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM metal_rates WHERE metal_type = $1 AND purity = $2`,
		string(filter.MetalType), filter.Purity).Scan(&total)
	if err != nil {
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

	rows, err := r.db.Query(ctx, `SELECT `+rateColumns+` FROM metal_rates
		WHERE metal_type = $1 AND purity = $2
		ORDER BY effective_date DESC, id DESC LIMIT $3 OFFSET $4`,
		string(filter.MetalType), filter.Purity, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Rate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rate)
	}
	return result, total, rows.Err()
}

// DeactivateExpired flips off active rates whose validity window has passed.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE metal_rates SET is_active = FALSE
		WHERE is_active AND valid_until IS NOT NULL AND valid_until < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeactivateSiblings(ctx context.Context, metal MetalType, purity string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE metal_rates SET is_active = FALSE
		WHERE metal_type = $1 AND purity = $2 AND is_active`, string(metal), purity)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) Insert(ctx context.Context, rate Rate) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO metal_rates
		(metal_type, purity, rate_per_gram, effective_date, valid_until, is_active, source, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		string(rate.MetalType), rate.Purity, decimalToNumeric(rate.RatePerGram),
		pgtype.Timestamptz{Time: rate.EffectiveDate, Valid: true},
		timestamptzPtr(rate.ValidUntil), rate.IsActive, string(rate.Source),
		pgtype.Int8{Int64: rate.CreatedBy, Valid: rate.CreatedBy != 0},
		pgtype.Timestamptz{Time: rate.CreatedAt, Valid: true},
	).Scan(&id)
	return id, err
}

// Deactivate conditionally flips one active row off; zero affected rows
// means the row was missing or already inactive.
func (r *Repository) Deactivate(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE metal_rates SET is_active = FALSE WHERE id = $1 AND is_active`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRate(row pgx.Row) (Rate, error) {
	var (
		rate       Rate
		ratePerG   pgtype.Numeric
		effective  pgtype.Timestamptz
		validUntil pgtype.Timestamptz
		createdBy  pgtype.Int8
		createdAt  pgtype.Timestamptz
		metal      string
		source     string
	)
	err := row.Scan(&rate.ID, &metal, &rate.Purity, &ratePerG, &effective, &validUntil, &rate.IsActive, &source, &createdBy, &createdAt)
	if err != nil {
		return Rate{}, err
	}
	rate.MetalType = MetalType(metal)
	rate.Source = RateSource(source)
	rate.RatePerGram = numericToDecimal(ratePerG)
	rate.EffectiveDate = effective.Time
	if validUntil.Valid {
		t := validUntil.Time
		rate.ValidUntil = &t
	}
	rate.CreatedBy = createdBy.Int64
	rate.CreatedAt = createdAt.Time
	return rate, nil
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
