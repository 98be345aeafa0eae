package payments

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"paygate/internal/domain/paymentsrepo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"duplicate", fmt.Errorf("%w: x", ErrDuplicateTransaction), "The transaction code has already been taken"},
		{"signature", ErrSignatureMismatch, MessageFailed},
		{"declined", &DeclinedError{Provider: Paymob, Code: "5", Reason: "Balance is not enough"}, "Payment failed with code: Balance is not enough"},
		{"declined without reason", &DeclinedError{Provider: Tap}, MessageFailed},
		{"session", fmt.Errorf("%w: T1", ErrSessionNotFound), "The payment session has expired or was already verified"},
		{"not found", fmt.Errorf("mark paid: %w", paymentsrepo.ErrNotFound), "Payment not found"},
		{"transport", &TransportError{Provider: Tap, Err: errors.New("timeout")}, "The payment provider could not be reached, please try again"},
		{"validation", &ValidationError{Field: "amount", Rule: "gt=0"}, "The amount field is invalid (gt=0)"},
		{"other", errors.New("boom"), MessageUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageFor(tt.err))
		})
	}
}

func TestDeclineMessageDefaults(t *testing.T) {
	assert.Equal(t, "Incorrect card expiration date", DeclineMessage(paymobMessages, "7"))
	assert.Equal(t, MessageUnknown, DeclineMessage(paymobMessages, "999"))
}

func TestEnvelopeOutcomeChannels(t *testing.T) {
	r := Redirect("https://pay.example.com")
	assert.True(t, r.Status)
	assert.Empty(t, r.HTML)

	i := Inline("<form></form>")
	assert.True(t, i.Status)
	assert.Empty(t, i.RedirectURL)

	f := Failure("", nil)
	assert.False(t, f.Status)
	assert.Equal(t, MessageUnknown, f.Message)
}

func TestRedactMasksNestedSecrets(t *testing.T) {
	in := map[string]any{
		"amount":    10.0,
		"api_key":   "sk_live_abcdef123456",
		"Signature": "short",
		"customer": map[string]any{
			"name":          "Sara",
			"card_token":    "tok_9999888877776666",
			"payment_items": []any{map[string]any{"hash": "deadbeefcafe"}},
		},
	}
	out := Redact(in)

	assert.Equal(t, 10.0, out["amount"])
	assert.Equal(t, "****3456", out["api_key"])
	assert.Equal(t, "****", out["Signature"])
	customer := out["customer"].(map[string]any)
	assert.Equal(t, "Sara", customer["name"])
	assert.Equal(t, "****6666", customer["card_token"])
	items := customer["payment_items"].([]any)
	assert.Equal(t, "****cafe", items[0].(map[string]any)["hash"])

	assert.Equal(t, "sk_live_abcdef123456", in["api_key"], "input is left untouched")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("12345678"))
	assert.Equal(t, "****6789", MaskSecret("123456789"))
}

func TestParseQueryKeepsArrivalOrder(t *testing.T) {
	req, err := ParseQuery("b=2&a=1&signature=x&b=3&mode=test")
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "signature", "mode"}, req.Order)
	assert.Equal(t, "2", req.Get("b"))
	assert.True(t, req.Has("mode"))
}

func TestMergeKeepsExistingValues(t *testing.T) {
	req := NewVerifyRequest(url.Values{"a": {"1"}}, "a")
	merged := req.Merge(url.Values{"a": {"9"}, "b": {"2"}})

	assert.Equal(t, "1", merged.Get("a"))
	assert.Equal(t, "2", merged.Get("b"))
	assert.Equal(t, []string{"a", "b"}, merged.Order)
	assert.False(t, req.Has("b"))
}

func TestCallbackURL(t *testing.T) {
	app := App{VerifyURL: "https://pay.example.com/v1/payments/"}
	assert.Equal(t, "https://pay.example.com/v1/payments/tap/verify", app.CallbackURL(Tap, nil))
	assert.Equal(t, "https://pay.example.com/v1/payments/thawani/verify?payment_id=T1",
		app.CallbackURL(Thawani, url.Values{"payment_id": {"T1"}}))
}
