package payments

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"paygate/internal/validation"
)

type thawani struct {
	base
	cfg ThawaniConfig
}

func (t *thawani) endpoint(path string) string {
	return strings.TrimRight(t.cfg.URL, "/") + path
}

func (t *thawani) header() http.Header {
	return http.Header{"thawani-api-key": {t.cfg.APIKey}}
}

func (t *thawani) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return t.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := t.begin(ctx, &req, validation.Union(validation.PayRules, validation.NamedItemRules), "OMR"); err != nil {
			return t.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		link, err := t.session(ctx, req)
		if err != nil {
			return t.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Redirect(link).withCode(req.TransactionCode)
	})
}

// session opens a checkout session and caches its id under the transaction code.
func (t *thawani) session(ctx context.Context, req PaymentRequest) (string, error) {
	products := make([]map[string]any, len(req.Items))
	for i, it := range req.Items {
		products[i] = map[string]any{
			"name":        it.Name,
			"quantity":    it.Quantity,
			"unit_amount": minorUnits(it.UnitPrice, 1000),
		}
	}
	back := t.app.CallbackURL(Thawani, url.Values{"payment_id": {req.TransactionCode}})
	payload := map[string]any{
		"client_reference_id": req.TransactionCode,
		"mode":                "payment",
		"products":            products,
		"success_url":         back,
		"cancel_url":          back,
		"metadata": map[string]any{
			"customer": req.Buyer.Name,
			"order_id": strconv.FormatInt(req.OrderID, 10),
			"phone":    req.Buyer.Phone,
		},
	}
	resp, err := t.sendJSON(ctx, http.MethodPost, t.endpoint("/api/v1/checkout/session"), t.header(), payload)
	if err != nil {
		return "", err
	}
	if err := t.expect(resp, http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}
	var out struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
		Data        struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	if err := t.decode(resp, &out); err != nil {
		return "", err
	}
	if out.Data.SessionID == "" {
		return "", &DeclinedError{Provider: Thawani, Code: strconv.Itoa(out.Code), Reason: out.Description}
	}
	if err := t.remember(ctx, req.TransactionCode, out.Data.SessionID); err != nil {
		return "", err
	}
	return t.endpoint("/pay/" + out.Data.SessionID + "?key=" + url.QueryEscape(t.cfg.PublishableKey)), nil
}

func (t *thawani) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	code := req.Get("payment_id")
	return t.guard(ctx, stageVerify, func() string { return code }, fields, func() Envelope {
		if code == "" {
			return t.fail(ctx, stageVerify, "", &ValidationError{Field: "payment_id", Rule: "required"}, fields)
		}
		sessionID, err := t.recall(ctx, code)
		if err != nil {
			return t.fail(ctx, stageVerify, code, err, fields)
		}

		resp, err := t.send(ctx, http.MethodGet, t.endpoint("/api/v1/checkout/session/"+url.PathEscape(sessionID)), t.header(), nil)
		if err == nil {
			err = t.expect(resp)
		}
		var out struct {
			Data struct {
				PaymentStatus string `json:"payment_status"`
			} `json:"data"`
		}
		if err == nil {
			err = t.decode(resp, &out)
		}
		if err == nil && out.Data.PaymentStatus != "paid" {
			err = &DeclinedError{Provider: Thawani, Code: out.Data.PaymentStatus, Reason: out.Data.PaymentStatus}
		}
		if err != nil {
			return t.fail(ctx, stageVerify, code, err, fields)
		}
		return t.paid(ctx, code, fields)
	})
}
