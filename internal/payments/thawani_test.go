package payments

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"

	"paygate/internal/domain/paymentsrepo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thawaniServer(t *testing.T, paymentStatus string) (string, *atomic.Int32) {
	var lookups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/checkout/session", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "api-key", r.Header.Get("thawani-api-key"))
		var body struct {
			ClientReferenceID string `json:"client_reference_id"`
			Products          []struct {
				UnitAmount int64 `json:"unit_amount"`
			} `json:"products"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "T1", body.ClientReferenceID)
		assert.Equal(t, int64(5250), body.Products[0].UnitAmount)
		_, _ = w.Write([]byte(`{"code":2004,"description":"Session generated successfully","data":{"session_id":"sess_1"}}`))
	})
	mux.HandleFunc("GET /api/v1/checkout/session/sess_1", func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		_, _ = w.Write([]byte(`{"data":{"payment_status":"` + paymentStatus + `"}}`))
	})
	return provider(t, mux).URL, &lookups
}

func thawaniConfig(base string) Config {
	return Config{
		App:     testApp(),
		Thawani: ThawaniConfig{URL: base, APIKey: "api-key", PublishableKey: "pk_1"},
	}
}

func TestThawaniSessionIsSingleUse(t *testing.T) {
	base, lookups := thawaniServer(t, "paid")
	h := newHarness(t)
	g := h.gateway(t, Thawani, thawaniConfig(base))

	env := g.Pay(ctx(), payRequest("T1", 5.25))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, base+"/pay/sess_1?key=pk_1", env.RedirectURL)

	cb := NewVerifyRequest(url.Values{"payment_id": {"T1"}})
	env = g.Verify(ctx(), cb)
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "T1"))

	env = g.Verify(ctx(), cb)
	assert.False(t, env.Status)
	assert.Equal(t, "The payment session has expired or was already verified", env.Message)
	assert.Equal(t, int32(1), lookups.Load(), "a consumed session is not looked up again")
}

func TestThawaniUnpaidSessionStaysPending(t *testing.T) {
	base, _ := thawaniServer(t, "unpaid")
	h := newHarness(t)
	g := h.gateway(t, Thawani, thawaniConfig(base))

	require.True(t, g.Pay(ctx(), payRequest("T1", 5.25)).Status)
	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"payment_id": {"T1"}}))

	assert.False(t, env.Status)
	assert.Equal(t, MessageFailedWithCode+"unpaid", env.Message)
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "T1"))
}

func TestThawaniVerifyWithoutPay(t *testing.T) {
	h := newHarness(t)
	g := h.gateway(t, Thawani, thawaniConfig("https://uatcheckout.thawani.om"))

	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"payment_id": {"never-paid"}}))
	assert.False(t, env.Status)
}
