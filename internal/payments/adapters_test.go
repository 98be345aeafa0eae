package payments

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/signature"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpayPayAndVerify(t *testing.T) {
	var status string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/international/cashier/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pub", r.Header.Get("Authorization"))
		assert.Equal(t, "merchant-1", r.Header.Get("MerchantId"))
		var body struct {
			Amount struct {
				Total int64 `json:"total"`
			} `json:"amount"`
			CallbackURL string `json:"callbackUrl"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(1999), body.Amount.Total)
		assert.Equal(t, "https://shop.example.com/v1/payments/opay/verify?reference_id=OP1", body.CallbackURL)
		_, _ = w.Write([]byte(`{"code":"00000","message":"SUCCESSFUL","data":{"cashierUrl":"https://cashier.opay.test/c/1"}}`))
	})
	mux.HandleFunc("POST /api/v1/international/cashier/status", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		want := "Bearer " + signature.Sign(string(body), "sec", signature.HMACSHA512)
		assert.Equal(t, want, r.Header.Get("Authorization"))
		assert.JSONEq(t, `{"country":"EG","reference":"OP1"}`, string(body))
		_, _ = fmt.Fprintf(w, `{"code":"00000","data":{"status":%q}}`, status)
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Opay, Config{
		App:  testApp(),
		Opay: OpayConfig{BaseURL: srv.URL, SecretKey: "sec", PublicKey: "pub", MerchantID: "merchant-1"},
	})

	env := g.Pay(ctx(), payRequest("OP1", 19.99))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, "https://cashier.opay.test/c/1", env.RedirectURL)

	status = "FAIL"
	cb := NewVerifyRequest(url.Values{"reference_id": {"OP1"}})
	env = g.Verify(ctx(), cb)
	assert.False(t, env.Status)
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "OP1"))

	status = "SUCCESS"
	env = g.Verify(ctx(), cb)
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "OP1"))
}

func TestOpayValidationFailsBeforeNetwork(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { hits++ })
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Opay, Config{
		App:  testApp(),
		Opay: OpayConfig{BaseURL: srv.URL, SecretKey: "sec", PublicKey: "pub", MerchantID: "merchant-1"},
	})

	req := payRequest("OP2", 10)
	req.Items = nil
	env := g.Pay(ctx(), req)

	assert.False(t, env.Status)
	assert.Equal(t, map[string]any{"items": "required"}, env.Errors)
	assert.Zero(t, hits)
}

func TestFawryChargeCanonical(t *testing.T) {
	items := []Item{{ID: "11", UnitPrice: 50, Quantity: 2}, {ID: "12", UnitPrice: 9.5, Quantity: 1}}
	got := FawryChargeCanonical("MC", "REF1", "u1", "https://r.example.com", items, "key")
	assert.Equal(t, "MCREF1u1https://r.example.com11250.001219.50key", got)

	// guests have no profile id and sign an empty segment
	got = FawryChargeCanonical("MC", "REF1", "", "https://r.example.com", items, "key")
	assert.Equal(t, "MCREF1https://r.example.com11250.001219.50key", got)
}

func TestFawryVerifySignedChargeResponse(t *testing.T) {
	statusCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ECommerceWeb/Fawry/payments/status/v2", func(w http.ResponseWriter, r *http.Request) {
		statusCalls++
		q := r.URL.Query()
		assert.Equal(t, "FW1", q.Get("merchantRefNumber"))
		assert.Equal(t, signature.Sign("MCFW1key", "", signature.SHA256), q.Get("signature"))
		_, _ = w.Write([]byte(`{"statusCode":200,"paymentStatus":"PAID"}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Fawry, Config{
		App:   testApp(),
		Fawry: FawryConfig{URL: srv.URL, PayURL: srv.URL + "/init", Merchant: "MC", Secret: "key"},
	})
	h.pending(t, Fawry, "FW1", 100)

	charge := fawryChargeResponse{
		FawryRefNumber:    "9990001",
		MerchantRefNumber: "FW1",
		PaymentAmount:     100,
		OrderAmount:       100,
		OrderStatus:       "PAID",
		PaymentMethod:     "PAYATFAWRY",
	}
	charge.Signature = signature.Sign(FawryCallbackCanonical(charge, "key"), "", signature.SHA256)
	raw, err := json.Marshal(charge)
	require.NoError(t, err)

	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"chargeResponse": {string(raw)}}))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "FW1"))

	charge.OrderAmount = 1
	raw, err = json.Marshal(charge)
	require.NoError(t, err)
	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"chargeResponse": {string(raw)}}))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailed, env.Message)
	assert.Equal(t, 1, statusCalls, "a forged charge response never reaches the status query")
}

func TestFawryPayReturnsCheckoutLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /init", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body["customerProfileId"])
		sum := sha256.Sum256([]byte("MCFW2u1https://shop.example.com/v1/payments/fawry/verify11100.00key"))
		assert.Equal(t, hex.EncodeToString(sum[:]), body["signature"])
		_, _ = w.Write([]byte(`"https://atfawry.test/pay/abc"`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Fawry, Config{
		App:   testApp(),
		Fawry: FawryConfig{URL: srv.URL, PayURL: srv.URL + "/init", Merchant: "MC", Secret: "key"},
	})

	env := g.Pay(ctx(), payRequest("FW2", 100))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, "https://atfawry.test/pay/abc", env.RedirectURL)
}

func TestHyperPayCheckoutAndVerify(t *testing.T) {
	result := "000.000.000"
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/checkouts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hp-token", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "credit-entity", r.PostForm.Get("entityId"))
		assert.Equal(t, "75.00", r.PostForm.Get("amount"))
		_, _ = w.Write([]byte(`{"id":"chk_1","result":{"code":"000.200.100"}}`))
	})
	mux.HandleFunc("GET /v1/checkouts/chk_1/payment", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "credit-entity", r.URL.Query().Get("entityId"))
		if result != "000.000.000" {
			w.WriteHeader(http.StatusBadRequest)
		}
		_, _ = fmt.Fprintf(w, `{"result":{"code":%q}}`, result)
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, HyperPay, Config{
		App:      testApp(),
		HyperPay: HyperPayConfig{URL: srv.URL + "/v1/checkouts", BaseURL: srv.URL, Token: "hp-token", CreditID: "credit-entity"},
	})

	req := payRequest("HP1", 75)
	req.Source = "CREDIT"
	env := g.Pay(ctx(), req)
	require.True(t, env.Status, env.Message)
	assert.Contains(t, env.HTML, "checkoutId=chk_1")
	assert.Contains(t, env.HTML, `data-brands="VISA MASTER"`)

	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"id": {"chk_1"}}))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "HP1"))

	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"id": {"chk_1"}}))
	assert.False(t, env.Status, "the checkout id is single use")
}

func TestHyperPayDeclinedResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/checkouts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chk_2"}`))
	})
	mux.HandleFunc("GET /v1/checkouts/chk_2/payment", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"result":{"code":"800.100.151"}}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, HyperPay, Config{
		App:      testApp(),
		HyperPay: HyperPayConfig{URL: srv.URL + "/v1/checkouts", BaseURL: srv.URL, Token: "hp-token", CreditID: "credit-entity"},
	})
	req := payRequest("HP2", 75)
	req.Source = "CREDIT"
	require.True(t, g.Pay(ctx(), req).Status)

	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"id": {"chk_2"}}))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailedWithCode+"800.100.151", env.Message)
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "HP2"))
}

func payPalServer(t *testing.T, captureStatus int, captureBody string) string {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", id)
		assert.Equal(t, "secret", secret)
		_, _ = w.Write([]byte(`{"access_token":"A21"}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer A21", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED","links":[{"rel":"self","href":"https://x"},{"rel":"approve","href":"https://paypal.test/checkoutnow?token=ORDER-1"}]}`))
	})
	mux.HandleFunc("POST /v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(captureStatus)
		_, _ = w.Write([]byte(captureBody))
	})
	return provider(t, mux).URL
}

func TestPayPalCreateAndCapture(t *testing.T) {
	base := payPalServer(t, http.StatusCreated, `{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"reference_id":"PP1"}]}`)
	h := newHarness(t)
	g := h.gateway(t, PayPal, Config{App: testApp(), PayPal: PayPalConfig{BaseURL: base, ClientID: "client", Secret: "secret"}})

	env := g.Pay(ctx(), payRequest("PP1", 20))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, "https://paypal.test/checkoutnow?token=ORDER-1", env.RedirectURL)

	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"token": {"ORDER-1"}, "PayerID": {"P9"}}))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "PP1"))
}

func TestPayPalCaptureDeclined(t *testing.T) {
	base := payPalServer(t, http.StatusUnprocessableEntity,
		`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}],"purchase_units":[{"reference_id":"PP2"}]}`)
	h := newHarness(t)
	g := h.gateway(t, PayPal, Config{App: testApp(), PayPal: PayPalConfig{BaseURL: base, ClientID: "client", Secret: "secret"}})
	h.pending(t, PayPal, "PP2", 20)

	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"token": {"ORDER-1"}}))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailedWithCode+"INSTRUMENT_DECLINED", env.Message)
	assert.Equal(t, "PP2", env.TransactionCode)
}

func TestTapVerify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/charges/chg_ok", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"chg_ok","status":"CAPTURED","reference":{"transaction":"TP1"}}`))
	})
	mux.HandleFunc("GET /v2/charges/chg_bad", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"chg_bad","status":"DECLINED","reference":{"transaction":"TP2"},"response":{"code":"507","message":"Declined, Card Issuer"}}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Tap, Config{App: testApp(), Tap: TapConfig{BaseURL: srv.URL, SecretKey: "sk_test"}})
	h.pending(t, Tap, "TP1", 10)
	h.pending(t, Tap, "TP2", 10)

	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"tap_id": {"chg_ok"}}))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "TP1"))

	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"tap_id": {"chg_bad"}}))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailedWithCode+"Declined, Card Issuer", env.Message)
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "TP2"))
}

func TestTapPayRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/charges", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.Header.Get("lang_code"))
		var body struct {
			Reference struct {
				Transaction string `json:"transaction"`
			} `json:"reference"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TP3", body.Reference.Transaction)
		_, _ = w.Write([]byte(`{"id":"chg_1","status":"INITIATED","transaction":{"url":"https://tap.test/gosell/chg_1"}}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Tap, Config{App: testApp(), Tap: TapConfig{BaseURL: srv.URL, SecretKey: "sk_test"}})

	env := g.Pay(ctx(), payRequest("TP3", 10))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, "https://tap.test/gosell/chg_1", env.RedirectURL)
}

func TestPaytabsPayAndVerifyThroughCachedReference(t *testing.T) {
	var callback string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payment/request", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "server-key", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(8812), body["profile_id"])
		callback, _ = body["return"].(string)
		_, _ = w.Write([]byte(`{"tran_ref":"TST2411","redirect_url":"https://secure.paytabs.test/payment/page/X1"}`))
	})
	mux.HandleFunc("POST /payment/query", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TST2411", body["tran_ref"])
		_, _ = w.Write([]byte(`{"cart_id":"PT1","payment_result":{"response_status":"A","response_message":"Authorised"}}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Paytabs, Config{App: testApp(), Paytabs: PaytabsConfig{BaseURL: srv.URL, ProfileID: "8812", ServerKey: "server-key"}})

	env := g.Pay(ctx(), payRequest("PT1", 30))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, "https://secure.paytabs.test/payment/page/X1", env.RedirectURL)

	u, err := url.Parse(callback)
	require.NoError(t, err)
	assert.Equal(t, "PT1", u.Query().Get("payment_id"))
	ref := u.Query().Get("ref")
	require.GreaterOrEqual(t, len(ref), 10)

	env = g.Verify(ctx(), NewVerifyRequest(u.Query()))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "PT1"))
}

func TestPaytabsVerifyUsesQueriedCart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payment/query", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cart_id":"PT_A","payment_result":{"response_status":"A","response_message":"Authorised"}}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Paytabs, Config{App: testApp(), Paytabs: PaytabsConfig{BaseURL: srv.URL, ProfileID: "8812", ServerKey: "server-key"}})
	h.pending(t, Paytabs, "PT_A", 1)
	h.pending(t, Paytabs, "PT_B", 900)

	// a paid tranRef of PT_A presented for PT_B
	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"tranRef": {"TST_A"}, "payment_id": {"PT_B"}}))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailed, env.Message)
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "PT_B"))
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "PT_A"))

	// without a claim the queried cart is settled
	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"tranRef": {"TST_A"}}))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, "PT_A", env.TransactionCode)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "PT_A"))
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "PT_B"))
}

func TestPaytabsRequestRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payment/request", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":206,"message":"Missing profile","trace":"PMNT0402"}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Paytabs, Config{App: testApp(), Paytabs: PaytabsConfig{BaseURL: srv.URL, ProfileID: "8812", ServerKey: "server-key"}})

	env := g.Pay(ctx(), payRequest("PT2", 30))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailedWithCode+"Missing profile", env.Message)
	assert.Equal(t, map[string]any{"code": "206"}, env.Errors)
}

// khaltiGateway issues pidx_<purchase_order_id> and reports the lookup state
// stored in states for each pidx.
func khaltiGateway(t *testing.T, h *harness, states *sync.Map) Gateway {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /epayment/initiate/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key live_secret", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(100000), body["amount"])
		pidx := fmt.Sprintf("pidx_%v", body["purchase_order_id"])
		_, _ = fmt.Fprintf(w, `{"pidx":%q,"payment_url":"https://test-pay.khalti.com/?pidx=%s"}`, pidx, pidx)
	})
	mux.HandleFunc("POST /epayment/lookup/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		state := "Pending"
		if v, ok := states.Load(body["pidx"]); ok {
			state = v.(string)
		}
		if state != "Completed" {
			w.WriteHeader(http.StatusBadRequest)
		}
		_, _ = fmt.Fprintf(w, `{"pidx":%q,"status":%q}`, body["pidx"], state)
	})
	srv := provider(t, mux)

	return h.gateway(t, Khalti, Config{App: testApp(), Khalti: KhaltiConfig{
		BaseURL: srv.URL + "/epayment/", SecretKey: "live_secret", WebsiteURL: "https://shop.example.com",
	}})
}

func khaltiCallback(pidx, order string) VerifyRequest {
	return NewVerifyRequest(url.Values{"pidx": {pidx}, "purchase_order_id": {order}})
}

func TestKhaltiTerminalStateMarksFailed(t *testing.T) {
	var states sync.Map
	h := newHarness(t)
	g := khaltiGateway(t, h, &states)

	env := g.Pay(ctx(), payRequest("KH1", 1000))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, "https://test-pay.khalti.com/?pidx=pidx_KH1", env.RedirectURL)

	states.Store("pidx_KH1", "Expired")
	env = g.Verify(ctx(), khaltiCallback("pidx_KH1", "KH1"))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailedWithCode+"Expired", env.Message)
	assert.Equal(t, paymentsrepo.StatusFailed, h.status(t, "KH1"))
}

func TestKhaltiCompletedPaysBoundOrder(t *testing.T) {
	var states sync.Map
	h := newHarness(t)
	g := khaltiGateway(t, h, &states)

	require.True(t, g.Pay(ctx(), payRequest("KH2", 1000)).Status)
	states.Store("pidx_KH2", "Completed")

	for i := 0; i < 2; i++ {
		env := g.Verify(ctx(), khaltiCallback("pidx_KH2", "KH2"))
		require.True(t, env.Status, env.Message)
		assert.Equal(t, "KH2", env.TransactionCode)
	}
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "KH2"))

	// purchase_order_id may be omitted; pidx alone names the record
	require.True(t, g.Pay(ctx(), payRequest("KH3", 1000)).Status)
	states.Store("pidx_KH3", "Completed")
	env := g.Verify(ctx(), NewVerifyRequest(url.Values{"pidx": {"pidx_KH3"}}))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "KH3"))
}

func TestKhaltiRejectsPidxOfAnotherOrder(t *testing.T) {
	var states sync.Map
	h := newHarness(t)
	g := khaltiGateway(t, h, &states)

	require.True(t, g.Pay(ctx(), payRequest("KH_A", 1000)).Status)
	require.True(t, g.Pay(ctx(), payRequest("KH_B", 1000)).Status)

	states.Store("pidx_KH_A", "Completed")
	env := g.Verify(ctx(), khaltiCallback("pidx_KH_A", "KH_B"))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailed, env.Message)

	states.Store("pidx_KH_A", "User canceled")
	env = g.Verify(ctx(), khaltiCallback("pidx_KH_A", "KH_B"))
	assert.False(t, env.Status)

	env = g.Verify(ctx(), khaltiCallback("pidx_unknown", "KH_B"))
	assert.False(t, env.Status)

	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "KH_A"))
	assert.Equal(t, paymentsrepo.StatusPending, h.status(t, "KH_B"))
}

func esewaData(t *testing.T, status, secret string) string {
	t.Helper()
	names := "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names"
	fields := map[string]string{
		"transaction_code":   "000AWEO",
		"status":             status,
		"total_amount":       "100.0",
		"transaction_uuid":   "ES1",
		"product_code":       "EPAYTEST",
		"signed_field_names": names,
	}
	sig := signature.Sign(EsewaCanonical(fields, names), secret, signature.HMACSHA256Base64)
	raw := fmt.Sprintf(`{"transaction_code":"000AWEO","status":%q,"total_amount":100.0,"transaction_uuid":"ES1","product_code":"EPAYTEST","signed_field_names":%q,"signature":%q}`,
		status, names, sig)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestEsewaVerify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/epay/transaction/status/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "100.0", q.Get("total_amount"))
		assert.Equal(t, "ES1", q.Get("transaction_uuid"))
		_, _ = w.Write([]byte(`{"product_code":"EPAYTEST","transaction_uuid":"ES1","total_amount":100.0,"status":"COMPLETE","ref_id":"0001TS9"}`))
	})
	srv := provider(t, mux)

	h := newHarness(t)
	g := h.gateway(t, Esewa, Config{App: testApp(), Esewa: EsewaConfig{
		MerchantCode: "EPAYTEST", SecretKey: "8gBm/:&EnhH.1/q", StatusURL: srv.URL + "/api/epay/transaction/status/",
	}})

	env := g.Pay(ctx(), payRequest("ES1", 100))
	require.True(t, env.Status, env.Message)
	assert.Contains(t, env.HTML, `action="https://rc-epay.esewa.com.np/api/epay/main/v2/form"`)
	assert.Contains(t, env.HTML, `name="signed_field_names"`)

	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"data": {esewaData(t, "COMPLETE", "wrong")}}))
	assert.False(t, env.Status)
	assert.Equal(t, MessageFailed, env.Message)

	env = g.Verify(ctx(), NewVerifyRequest(url.Values{"data": {esewaData(t, "COMPLETE", "8gBm/:&EnhH.1/q")}}))
	require.True(t, env.Status, env.Message)
	assert.Equal(t, paymentsrepo.StatusPaid, h.status(t, "ES1"))
}

func TestEsewaCanonical(t *testing.T) {
	got := EsewaCanonical(map[string]string{
		"total_amount":     "100.00",
		"transaction_uuid": "11-201-13",
		"product_code":     "EPAYTEST",
	}, esewaSignedFields)
	assert.Equal(t, "total_amount=100.00,transaction_uuid=11-201-13,product_code=EPAYTEST", got)
}
