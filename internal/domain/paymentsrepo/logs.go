package paymentsrepo

import (
	"context"
	"time"
)

// FailureLog records a failed pay/verify attempt with the offending request payload.
type FailureLog struct {
	ID              int64          `json:"id"`
	TransactionCode string         `json:"transaction_code,omitempty"`
	Provider        string         `json:"provider"`
	Stage           string         `json:"stage"` // pay, verify
	Message         string         `json:"message"`
	CorrelationID   string         `json:"correlation_id"`
	Payload         map[string]any `json:"payload,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

type LogsStore interface {
	InsertFailure(ctx context.Context, l *FailureLog) error
	ListFailures(ctx context.Context, transactionCode string, limit, offset int) ([]*FailureLog, int, error)
}
