package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paygate/internal/cache"
	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/httpx"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type harness struct {
	store *paymentsrepo.Memory
	cache *cache.Memory
	logs  *observer.ObservedLogs
	deps  Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	store := paymentsrepo.NewMemory()
	c := cache.NewMemory()
	return &harness{
		store: store,
		cache: c,
		logs:  logs,
		deps: Deps{
			Store:  store,
			Logs:   store,
			Cache:  c,
			Client: httpx.New(2 * time.Second),
			Logger: zap.New(core).Sugar(),
		},
	}
}

func (h *harness) gateway(t *testing.T, p Provider, cfg Config) Gateway {
	t.Helper()
	g, err := New(p, cfg, h.deps)
	require.NoError(t, err)
	return g
}

func (h *harness) status(t *testing.T, code string) string {
	t.Helper()
	r, err := h.store.GetByTransactionCode(context.Background(), code)
	require.NoError(t, err)
	return r.Status
}

func (h *harness) failures(t *testing.T, code string) []*paymentsrepo.FailureLog {
	t.Helper()
	logs, _, err := h.store.ListFailures(context.Background(), code, 100, 0)
	require.NoError(t, err)
	return logs
}

// pending inserts a pending record as if pay had run.
func (h *harness) pending(t *testing.T, p Provider, code string, amount float64) {
	t.Helper()
	_, err := h.store.Create(context.Background(), &paymentsrepo.Record{
		TransactionCode: code,
		Provider:        string(p),
		Amount:          amount,
		OrderID:         7,
		OrderTable:      "orders",
	})
	require.NoError(t, err)
}

func testApp() App {
	return App{VerifyURL: "https://shop.example.com/v1/payments"}
}

func payRequest(code string, amount float64) PaymentRequest {
	return PaymentRequest{
		Amount:          amount,
		TransactionCode: code,
		OrderID:         7,
		OrderTable:      "orders",
		Items:           []Item{{ID: "1", Name: "Court booking", UnitPrice: amount, Quantity: 1}},
		Buyer:           Buyer{ID: "u1", Name: "Sara Adel", Email: "sara@example.com", Phone: "01000000000"},
	}
}

func provider(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func ctx() context.Context { return context.Background() }
