package paymentsrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"paygate/internal/infra/dbx"
)

type LogsRepository struct{ q dbx.Querier }

func NewLogsRepository(q dbx.Querier) *LogsRepository {
	return &LogsRepository{q: q}
}

func (r *LogsRepository) InsertFailure(ctx context.Context, l *FailureLog) error {
	var jb []byte
	if l.Payload != nil {
		b, err := json.Marshal(l.Payload)
		if err == nil {
			jb = b
		}
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO payment_logs (transaction_code, provider, stage, message, correlation_id, payload)
		VALUES (NULLIF($1,''), $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, l.TransactionCode, l.Provider, l.Stage, l.Message, l.CorrelationID, jb).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment_log: %w", err)
	}
	return nil
}

// ListFailures returns the newest failures first; an empty transactionCode lists all.
func (r *LogsRepository) ListFailures(ctx context.Context, transactionCode string, limit, offset int) ([]*FailureLog, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT id, COALESCE(transaction_code,''), provider, stage, message, correlation_id, payload, created_at,
  COUNT(*) OVER() AS total_count
FROM payment_logs
WHERE ($1 = '' OR transaction_code = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`, transactionCode, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment_logs: %w", err)
	}
	defer rows.Close()

	var (
		out   []*FailureLog
		total int
	)
	for rows.Next() {
		var (
			l  FailureLog
			jb []byte
			t  int
		)
		if err := rows.Scan(&l.ID, &l.TransactionCode, &l.Provider, &l.Stage, &l.Message, &l.CorrelationID, &jb, &l.CreatedAt, &t); err != nil {
			return nil, 0, fmt.Errorf("scan payment_log: %w", err)
		}
		if len(jb) > 0 {
			_ = json.Unmarshal(jb, &l.Payload)
		}
		if total == 0 {
			total = t
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return out, total, nil
}
