package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Manager dispatches pay and verify calls to the registered gateway of a provider.
type Manager struct {
	mu       sync.RWMutex
	gateways map[Provider]Gateway
	logger   *zap.SugaredLogger
}

func NewManager(logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{gateways: make(map[Provider]Gateway), logger: logger}
}

// Build constructs and registers a gateway for each provider. Every
// misconfigured provider is reported, not only the first.
func Build(providers []Provider, cfg Config, d Deps) (*Manager, error) {
	m := NewManager(d.Logger)
	var errs error
	for _, p := range providers {
		g, err := New(p, cfg, d)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		m.Register(g)
	}
	if errs != nil {
		return nil, errs
	}
	return m, nil
}

func (m *Manager) Register(g Gateway) {
	m.mu.Lock()
	m.gateways[g.Provider()] = g
	m.mu.Unlock()
}

func (m *Manager) Gateway(p Provider) (Gateway, bool) {
	m.mu.RLock()
	g, ok := m.gateways[p]
	m.mu.RUnlock()
	return g, ok
}

// Providers lists the registered providers in name order.
func (m *Manager) Providers() []Provider {
	m.mu.RLock()
	out := make([]Provider, 0, len(m.gateways))
	for p := range m.gateways {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) Pay(ctx context.Context, p Provider, req PaymentRequest) Envelope {
	g, ok := m.Gateway(p)
	if !ok {
		return m.unregistered(p, req.TransactionCode)
	}
	return g.Pay(ctx, req)
}

func (m *Manager) Verify(ctx context.Context, p Provider, req VerifyRequest) Envelope {
	g, ok := m.Gateway(p)
	if !ok {
		return m.unregistered(p, "")
	}
	return g.Verify(ctx, req)
}

func (m *Manager) Refund(ctx context.Context, p Provider, transactionID string, amountCents int64) (map[string]any, error) {
	g, ok := m.Gateway(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p)
	}
	r, ok := g.(Refunder)
	if !ok {
		return nil, fmt.Errorf("%w: %s refund", ErrNotSupported, p)
	}
	return r.Refund(ctx, transactionID, amountCents)
}

func (m *Manager) unregistered(p Provider, code string) Envelope {
	m.logger.Warnw("gateway not registered", "provider", string(p))
	return Failure(MessageFor(ErrUnknownProvider), nil).withCode(code)
}
