package payments

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"paygate/internal/validation"
)

type tap struct {
	base
	cfg TapConfig
}

type tapCharge struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Reference struct {
		Transaction string `json:"transaction"`
		Order       string `json:"order"`
	} `json:"reference"`
	Transaction struct {
		URL string `json:"url"`
	} `json:"transaction"`
	Response struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"response"`
}

func (t *tap) endpoint(path string) string {
	return strings.TrimRight(t.cfg.BaseURL, "/") + path
}

func (t *tap) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return t.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := t.begin(ctx, &req, validation.Union(validation.PayRules, validation.NamedItemRules), t.cfg.Currency); err != nil {
			return t.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		link, err := t.charge(ctx, req)
		if err != nil {
			return t.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Redirect(link).withCode(req.TransactionCode)
	})
}

func (t *tap) charge(ctx context.Context, req PaymentRequest) (string, error) {
	callback := t.app.CallbackURL(Tap, nil)
	payload := map[string]any{
		"amount":               req.Amount,
		"currency":             t.cfg.Currency,
		"threeDSecure":         true,
		"save_card":            false,
		"description":          req.OrderTable,
		"statement_descriptor": t.app.Name,
		"reference": map[string]any{
			"transaction": req.TransactionCode,
			"order":       strconv.FormatInt(req.OrderID, 10),
		},
		"receipt": map[string]any{"email": true, "sms": true},
		"customer": map[string]any{
			"first_name":  req.Buyer.Name,
			"middle_name": "",
			"last_name":   req.Buyer.Name,
			"email":       req.Buyer.Email,
			"phone": map[string]any{
				"country_code": t.cfg.PhoneCountryCode,
				"number":       req.Buyer.Phone,
			},
		},
		"source":   map[string]any{"id": "src_all"},
		"post":     map[string]any{"url": callback},
		"redirect": map[string]any{"url": callback},
	}
	h := bearer(t.cfg.SecretKey)
	h.Set("lang_code", t.cfg.LangCode)

	resp, err := t.sendJSON(ctx, http.MethodPost, t.endpoint("/v2/charges"), h, payload)
	if err != nil {
		return "", err
	}
	if err := t.expect(resp, http.StatusOK); err != nil {
		return "", err
	}
	var out tapCharge
	if err := t.decode(resp, &out); err != nil {
		return "", err
	}
	if out.Transaction.URL == "" {
		return "", &DeclinedError{Provider: Tap, Code: out.Status, Reason: orDefault(out.Response.Message, out.Status)}
	}
	return out.Transaction.URL, nil
}

func (t *tap) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	var code string
	return t.guard(ctx, stageVerify, func() string { return code }, fields, func() Envelope {
		id := req.Get("tap_id")
		if id == "" {
			return t.fail(ctx, stageVerify, "", &ValidationError{Field: "tap_id", Rule: "required"}, fields)
		}
		resp, err := t.send(ctx, http.MethodGet, t.endpoint("/v2/charges/"+url.PathEscape(id)), bearer(t.cfg.SecretKey), nil)
		if err == nil {
			err = t.expect(resp)
		}
		var out tapCharge
		if err == nil {
			err = t.decode(resp, &out)
		}
		if err != nil {
			return t.fail(ctx, stageVerify, "", err, fields)
		}

		code = out.Reference.Transaction
		if out.Status != "CAPTURED" {
			err := &DeclinedError{Provider: Tap, Code: out.Status, Reason: orDefault(out.Response.Message, out.Status)}
			return t.fail(ctx, stageVerify, code, err, fields)
		}
		if code == "" {
			return t.fail(ctx, stageVerify, "", &ValidationError{Field: "reference.transaction", Rule: "required"}, fields)
		}
		return t.paid(ctx, code, fields)
	})
}
