package payments

import (
	"context"
	"errors"

	"paygate/internal/cache"
	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/httpx"
	"paygate/internal/metrics"
	"paygate/internal/validation"

	"go.uber.org/zap"
)

// Gateway is the contract every provider adapter satisfies. Pay and Verify
// never return errors or panic; the envelope is the only outcome channel.
// Adapters hold no per-request state and are safe for concurrent use.
type Gateway interface {
	Provider() Provider
	Pay(ctx context.Context, req PaymentRequest) Envelope
	Verify(ctx context.Context, req VerifyRequest) Envelope
}

// Refunder is implemented by gateways that can refund a settled transaction.
type Refunder interface {
	Refund(ctx context.Context, transactionID string, amountCents int64) (map[string]any, error)
}

// Deps are the collaborators shared by all adapters. Store is required; the
// rest fall back to in-process or no-op implementations.
type Deps struct {
	Store   paymentsrepo.Store
	Logs    paymentsrepo.LogsStore
	Cache   cache.Store
	Client  *httpx.Client
	Logger  *zap.SugaredLogger
	Metrics *metrics.Payments
}

// New builds the adapter for p. Missing or malformed configuration is
// reported here, never at request time.
func New(p Provider, cfg Config, d Deps) (Gateway, error) {
	if _, err := ParseProvider(string(p)); err != nil {
		return nil, err
	}
	if d.Store == nil {
		return nil, &ConfigError{Provider: p, Err: errors.New("record store is required")}
	}
	if err := cfg.prepare(p); err != nil {
		return nil, err
	}
	b := newBase(p, cfg.App, d)

	switch p {
	case CashOnDelivery:
		return &cashOnDelivery{base: b}, nil
	case Fawry:
		return &fawry{base: b, cfg: cfg.Fawry}, nil
	case HyperPay:
		return &hyperPay{base: b, cfg: cfg.HyperPay}, nil
	case Kashier:
		return &kashier{base: b, cfg: cfg.Kashier}, nil
	case Opay:
		return &opay{base: b, cfg: cfg.Opay}, nil
	case PayPal:
		return newPayPal(b, cfg.PayPal), nil
	case Paymob:
		return &paymob{base: b, cfg: cfg.Paymob}, nil
	case PaymobWallet:
		return &paymob{base: b, cfg: cfg.Paymob, wallet: true}, nil
	case Paytabs:
		return newPaytabs(b, cfg.Paytabs)
	case Tap:
		return &tap{base: b, cfg: cfg.Tap}, nil
	case Thawani:
		return &thawani{base: b, cfg: cfg.Thawani}, nil
	case Khalti:
		return newKhalti(b, cfg.Khalti), nil
	case Esewa:
		return newEsewa(b, cfg.Esewa), nil
	}
	return nil, ErrUnknownProvider
}

func newBase(p Provider, app App, d Deps) base {
	if d.Logs == nil {
		d.Logs = discardLogs{}
	}
	if d.Cache == nil {
		d.Cache = cache.NewMemory()
	}
	if d.Client == nil {
		d.Client = httpx.New(httpx.DefaultTimeout)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return base{
		provider: p,
		app:      app,
		store:    d.Store,
		logs:     d.Logs,
		cache:    d.Cache,
		client:   d.Client,
		logger:   d.Logger.With("provider", string(p)),
		metrics:  d.Metrics,
		gate:     validation.NewGate(d.Store),
	}
}

type discardLogs struct{}

func (discardLogs) InsertFailure(context.Context, *paymentsrepo.FailureLog) error { return nil }

func (discardLogs) ListFailures(context.Context, string, int, int) ([]*paymentsrepo.FailureLog, int, error) {
	return nil, 0, nil
}
