package paymentsrepo

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("payment not found")
	ErrConflict = errors.New("payment already exists")
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

type Record struct {
	ID              int64     `json:"id"`
	TransactionCode string    `json:"transaction_code"`
	Provider        string    `json:"provider"` // kashier, paymob, ...
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency,omitempty"`
	Status          string    `json:"status"` // pending, paid, failed
	OrderID         int64     `json:"order_id"`
	OrderTable      string    `json:"order_table"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Store interface {
	// Create inserts a pending record. It returns ErrConflict when the
	// transaction code is already taken.
	Create(ctx context.Context, r *Record) (*Record, error)
	GetByTransactionCode(ctx context.Context, code string) (*Record, error)
	Exists(ctx context.Context, code string) (bool, error)
	// MarkPaid moves a pending record to paid. transitioned is false when the
	// record was already paid; ErrNotFound when there is no pending or paid record.
	MarkPaid(ctx context.Context, code string) (transitioned bool, err error)
	// SetStatus changes the status of a record that is not paid.
	SetStatus(ctx context.Context, code, status string) error
	List(ctx context.Context, status string, since *time.Time, limit, offset int) ([]*Record, int, error)
}
