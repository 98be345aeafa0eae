package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strconv"
	"strings"

	"paygate/internal/cache"
	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/httpx"
	"paygate/internal/metrics"
	"paygate/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	stagePay    = "pay"
	stageVerify = "verify"
	stageRefund = "refund"
)

// base carries the steps every adapter shares: validate, persist pending,
// mark paid, and turn any failure into an envelope plus a failure log row.
type base struct {
	provider Provider
	app      App
	store    paymentsrepo.Store
	logs     paymentsrepo.LogsStore
	cache    cache.Store
	client   *httpx.Client
	logger   *zap.SugaredLogger
	metrics  *metrics.Payments
	gate     *validation.Gate
}

func (b *base) Provider() Provider { return b.provider }

// NewTransactionCode returns a fresh code for callers that do not bring their own.
func NewTransactionCode() string { return uuid.NewString() }

type correlationKey struct{}

// WithCorrelationID tags ctx so failure log rows can be matched with the
// inbound request that produced them.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// begin validates req and records it as pending. It assigns a transaction code
// when the caller left it empty.
func (b *base) begin(ctx context.Context, req *PaymentRequest, rules validation.RuleSet, currency string) error {
	if strings.TrimSpace(req.TransactionCode) == "" {
		req.TransactionCode = NewTransactionCode()
	}
	if err := b.validate(ctx, req.Fields(), rules); err != nil {
		return err
	}
	_, err := b.store.Create(ctx, &paymentsrepo.Record{
		TransactionCode: req.TransactionCode,
		Provider:        string(b.provider),
		Amount:          req.Amount,
		Currency:        currency,
		OrderID:         req.OrderID,
		OrderTable:      req.OrderTable,
		Notes:           req.Notes,
	})
	if errors.Is(err, paymentsrepo.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrDuplicateTransaction, err)
	}
	if err != nil {
		return fmt.Errorf("create pending payment: %w", err)
	}
	return nil
}

func (b *base) validate(ctx context.Context, data map[string]any, rules validation.RuleSet) error {
	err := b.gate.Check(ctx, data, rules)
	if err == nil {
		return nil
	}
	var fe *validation.FieldError
	if !errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, validation.ErrNotUnique) {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, fe.Field)
	}
	return &ValidationError{Field: fe.Field, Rule: fe.Rule}
}

// paid moves the record to paid. A record that is already paid stays as it is
// and the call still reports success.
func (b *base) paid(ctx context.Context, code string, req map[string]any) Envelope {
	transitioned, err := b.store.MarkPaid(ctx, code)
	if err != nil {
		return b.fail(ctx, stageVerify, code, fmt.Errorf("mark paid: %w", err), req)
	}
	if transitioned {
		b.metrics.Paid(string(b.provider))
		b.logger.Infow("payment paid", "transaction_code", code)
	} else {
		b.logger.Infow("payment already paid", "transaction_code", code)
	}
	return Success(MessagePaid).withCode(code)
}

// fail logs err, writes a failure log row and returns the failure envelope.
// The record status is left untouched so a later valid callback can succeed.
func (b *base) fail(ctx context.Context, stage, code string, err error, req map[string]any) Envelope {
	msg := MessageFor(err)
	b.logger.Warnw("payment failed",
		"stage", stage,
		"transaction_code", code,
		"err", err,
	)

	entry := &paymentsrepo.FailureLog{
		TransactionCode: code,
		Provider:        string(b.provider),
		Stage:           stage,
		Message:         err.Error(),
		CorrelationID:   correlationID(ctx),
		Payload:         Redact(req),
	}
	if lerr := b.logs.InsertFailure(ctx, entry); lerr != nil {
		b.logger.Errorw("write failure log", "transaction_code", code, "err", lerr)
	}

	return Failure(msg, errorDetail(err)).withCode(code).withRequest(req)
}

func errorDetail(err error) map[string]any {
	var (
		verr *ValidationError
		terr *TransportError
		derr *DeclinedError
	)
	switch {
	case errors.As(err, &verr):
		return map[string]any{verr.Field: verr.Rule}
	case errors.As(err, &derr):
		if derr.Code == "" {
			return nil
		}
		return map[string]any{"code": derr.Code}
	case errors.As(err, &terr) && terr.Body != "":
		return providerErrors(terr.Body)
	}
	return nil
}

// guard runs one adapter operation, converting a panic into a failure envelope
// and counting the outcome.
func (b *base) guard(ctx context.Context, stage string, code func() string, req map[string]any, fn func() Envelope) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("payment adapter panic", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			env = b.fail(ctx, stage, code(), fmt.Errorf("unexpected provider reply: %v", r), req)
		}
		b.metrics.Operation(string(b.provider), stage, env.Status)
	}()
	return fn()
}

// remember stores a bridge value for verify to pick up.
func (b *base) remember(ctx context.Context, key, value string) error {
	if err := b.cache.Put(ctx, cache.Key(string(b.provider), key), value, cache.DefaultTTL); err != nil {
		return fmt.Errorf("cache checkout reference: %w", err)
	}
	return nil
}

// recall consumes a bridge value. A missing or consumed entry is ErrSessionNotFound.
func (b *base) recall(ctx context.Context, key string) (string, error) {
	v, ok, err := b.cache.Take(ctx, cache.Key(string(b.provider), key))
	if err != nil {
		return "", fmt.Errorf("read checkout reference: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return v, nil
}

// bound reads a value written by remember without consuming it. Order
// bindings use it so a repeated verify resolves the same transaction code.
func (b *base) bound(ctx context.Context, key string) (string, error) {
	v, ok, err := b.cache.Get(ctx, cache.Key(string(b.provider), key))
	if err != nil {
		return "", fmt.Errorf("read checkout reference: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return v, nil
}

func formatAmount(a float64) string { return strconv.FormatFloat(a, 'f', 2, 64) }

// minorUnits converts an amount into the provider's smallest unit (cents, baisa, paisa).
func minorUnits(a float64, scale int) int64 { return int64(math.Round(a * float64(scale))) }

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
