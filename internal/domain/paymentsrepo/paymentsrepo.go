package paymentsrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paygate/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const recordColumns = `id, transaction_code, provider, amount, currency, status,
       order_id, order_table, notes, created_at, updated_at`

func scanRecord(row pgx.Row, extra ...any) (*Record, error) {
	var r Record
	dest := []any{
		&r.ID, &r.TransactionCode, &r.Provider, &r.Amount, &r.Currency, &r.Status,
		&r.OrderID, &r.OrderTable, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create relies on the unique index on transaction_code so two concurrent
// pay() calls cannot both insert the same code.
func (r *Repository) Create(ctx context.Context, p *Record) (*Record, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO payments (transaction_code, provider, amount, currency, status, order_id, order_table, notes)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5,''),'pending')::payment_status, $6, $7, $8)
		RETURNING id, status, created_at, updated_at
	`, p.TransactionCode, p.Provider, p.Amount, p.Currency, p.Status, p.OrderID, p.OrderTable, p.Notes).
		Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByTransactionCode(ctx context.Context, code string) (*Record, error) {
	rec, err := scanRecord(r.q.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM payments WHERE transaction_code=$1
	`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return rec, nil
}

func (r *Repository) Exists(ctx context.Context, code string) (bool, error) {
	var ok bool
	if err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE transaction_code=$1)
	`, code).Scan(&ok); err != nil {
		return false, fmt.Errorf("payment exists: %w", err)
	}
	return ok, nil
}

func (r *Repository) MarkPaid(ctx context.Context, code string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE payments
		   SET status='paid'::payment_status,
		       updated_at=now()
		 WHERE transaction_code=$1 AND status <> 'paid'::payment_status
	`, code)
	if err != nil {
		return false, fmt.Errorf("mark payment paid: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Nothing updated: either already paid (idempotent) or unknown.
	ok, err := r.Exists(ctx, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *Repository) SetStatus(ctx context.Context, code, status string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE payments
		   SET status=$2::payment_status, updated_at=now()
		 WHERE transaction_code=$1 AND status <> 'paid'::payment_status
	`, code, status)
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns records with optional filters:
// - status: if "" => no status filter
// - since: if nil => no time filter, else created_at >= *since
func (r *Repository) List(
	ctx context.Context,
	status string,
	since *time.Time,
	limit, offset int,
) ([]*Record, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT `+recordColumns+`,
  COUNT(*) OVER() AS total_count
FROM payments
WHERE
  ($1 = '' OR status = $1::payment_status)
  AND ($2::timestamptz IS NULL OR created_at >= $2::timestamptz)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`, status, since, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Record
		total int
	)
	for rows.Next() {
		var t int
		rec, err := scanRecord(rows, &t)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment: %w", err)
		}
		if total == 0 {
			total = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, nil
}
