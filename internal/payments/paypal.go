package payments

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/validation"
)

const (
	payPalSandboxURL = "https://api-m.sandbox.paypal.com"
	payPalLiveURL    = "https://api-m.paypal.com"
)

// payPal talks to the Orders v2 REST API: create an order and send the buyer
// to its approve link, then capture it when PayPal returns with ?token=.
type payPal struct {
	base
	cfg     PayPalConfig
	baseURL string
}

func newPayPal(b base, cfg PayPalConfig) *payPal {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = payPalSandboxURL
		if b.app.Live() {
			baseURL = payPalLiveURL
		}
	}
	return &payPal{base: b, cfg: cfg, baseURL: strings.TrimRight(baseURL, "/")}
}

type payPalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
	} `json:"purchase_units"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	// error replies
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

func (o payPalOrder) issue() string {
	if len(o.Details) > 0 && o.Details[0].Issue != "" {
		return o.Details[0].Issue
	}
	if o.Name != "" {
		return o.Name
	}
	return o.Status
}

func (p *payPal) token(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	creds := base64.StdEncoding.EncodeToString([]byte(p.cfg.ClientID + ":" + p.cfg.Secret))
	h := http.Header{"Authorization": {"Basic " + creds}}
	resp, err := p.sendForm(ctx, p.baseURL+"/v1/oauth2/token", h, form)
	if err != nil {
		return "", err
	}
	if err := p.expect(resp); err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := p.decode(resp, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &DeclinedError{Provider: PayPal, Code: "AUTHENTICATION_FAILURE", Reason: "AUTHENTICATION_FAILURE"}
	}
	return out.AccessToken, nil
}

func (p *payPal) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return p.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := p.begin(ctx, &req, validation.Union(validation.PayRules, validation.NamedItemRules), p.cfg.Currency); err != nil {
			return p.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		link, err := p.create(ctx, req)
		if err != nil {
			return p.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Redirect(link).withCode(req.TransactionCode)
	})
}

func (p *payPal) create(ctx context.Context, req PaymentRequest) (string, error) {
	token, err := p.token(ctx)
	if err != nil {
		return "", err
	}
	callback := p.app.CallbackURL(PayPal, nil)
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []any{map[string]any{
			"reference_id": req.TransactionCode,
			"amount": map[string]any{
				"value":         formatAmount(req.Amount),
				"currency_code": p.cfg.Currency,
			},
		}},
		"application_context": map[string]any{
			"cancel_url": callback,
			"return_url": callback,
		},
	}
	h := bearer(token)
	h.Set("Prefer", "return=representation")

	resp, err := p.sendJSON(ctx, http.MethodPost, p.baseURL+"/v2/checkout/orders", h, payload)
	if err != nil {
		return "", err
	}
	if err := p.expect(resp, http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}
	var order payPalOrder
	if err := p.decode(resp, &order); err != nil {
		return "", err
	}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href, nil
		}
	}
	return "", &DeclinedError{Provider: PayPal, Code: order.issue(), Reason: order.issue()}
}

func (p *payPal) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	var code string
	return p.guard(ctx, stageVerify, func() string { return code }, fields, func() Envelope {
		orderID := req.Get("token")
		if orderID == "" {
			return p.fail(ctx, stageVerify, "", &ValidationError{Field: "token", Rule: "required"}, fields)
		}
		var err error
		code, err = p.capture(ctx, orderID)
		if err != nil {
			return p.fail(ctx, stageVerify, code, err, fields)
		}
		return p.paid(ctx, code, fields)
	})
}

// capture settles the approved order and returns the transaction code carried
// in its reference id.
func (p *payPal) capture(ctx context.Context, orderID string) (string, error) {
	token, err := p.token(ctx)
	if err != nil {
		return "", err
	}
	endpoint := p.baseURL + "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	resp, err := p.sendJSON(ctx, http.MethodPost, endpoint, bearer(token), struct{}{})
	if err != nil {
		return "", err
	}
	var order payPalOrder
	if err := p.decode(resp, &order); err != nil {
		return "", err
	}
	var code string
	if len(order.PurchaseUnits) > 0 {
		code = order.PurchaseUnits[0].ReferenceID
	}
	if resp.StatusCode != http.StatusCreated || order.Status != "COMPLETED" {
		return code, &DeclinedError{Provider: PayPal, Code: order.issue(), Reason: order.issue()}
	}
	if code == "" {
		return "", &ValidationError{Field: "purchase_units.0.reference_id", Rule: "required"}
	}
	return code, nil
}
