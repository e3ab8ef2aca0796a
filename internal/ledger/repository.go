package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DBTX is the query surface ledger writes need. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so callers can append entries from inside their own
// transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const transactionColumns = `id, entry_type, amount, ref_module, ref_id, note, posted_at, created_by, created_at`

// Insert appends one entry using the caller's connection or transaction.
func Insert(ctx context.Context, db DBTX, t Transaction) (int64, error) {
	if !t.Type.Valid() {
		return 0, fmt.Errorf("%w: unknown entry type %q", ErrInvalidEntry, t.Type)
	}
	if !t.Amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO ledger_transactions (entry_type, amount, ref_module, ref_id, note, posted_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		string(t.Type), decimalToNumeric(t.Amount), t.RefModule, t.RefID, t.Note,
		pgtype.Timestamptz{Time: t.PostedAt, Valid: true}, t.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
	return id, nil
}

// Repository reads ledger entries from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry on the pool, outside any caller transaction.
func (r *Repository) Insert(ctx context.Context, t Transaction) (int64, error) {
	return Insert(ctx, r.pool, t)
}

// List returns entries matching the filter, newest first, plus the total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if filter.Type != "" {
		add("entry_type = ?", string(filter.Type))
	}
	if filter.RefModule != "" {
		add("ref_module = ?", filter.RefModule)
	}
	if filter.RefID != 0 {
		add("ref_id = ?", filter.RefID)
	}
	if filter.From != nil {
		add("posted_at >= ?", *filter.From)
	}
	if filter.To != nil {
		add("posted_at < ?", *filter.To)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions` + where +
		` ORDER BY posted_at DESC, id DESC`
	if filter.PerPage > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.PerPage
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PerPage, offset)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, t)
	}
	return result, total, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t         Transaction
		entryType string
		amount    pgtype.Numeric
		note      pgtype.Text
		postedAt  pgtype.Timestamptz
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&t.ID, &entryType, &amount, &t.RefModule, &t.RefID, &note, &postedAt, &t.CreatedBy, &createdAt); err != nil {
		return Transaction{}, err
	}
	t.Type = EntryType(entryType)
	t.Amount = numericToDecimal(amount)
	t.Note = note.String
	t.PostedAt = postedAt.Time
	t.CreatedAt = createdAt.Time
	return t, nil
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
