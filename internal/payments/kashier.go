package payments

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/signature"
	"paygate/internal/validation"
)

// kashierCallbackOrder is the key order Kashier documents for the signed
// redirect query. It applies when the arrival order is unknown.
var kashierCallbackOrder = []string{
	"paymentStatus", "cardDataToken", "maskedCard", "merchantOrderId", "orderId",
	"cardBrand", "orderReference", "transactionId", "amount", "currency",
}

type kashier struct {
	base
	cfg KashierConfig
}

// KashierPath is the checkout path whose HMAC-SHA256 authorizes the hosted form.
func KashierPath(merchantID, orderID, amount, currency string) string {
	return "/?payment=" + merchantID + "." + orderID + "." + amount + "." + currency
}

// KashierCallbackCanonical rebuilds the query Kashier signs on redirect: every
// delivered key except signature and mode, as k=v joined by "&".
func KashierCallbackCanonical(req VerifyRequest) string {
	keys := req.Order
	if len(keys) == 0 {
		keys = kashierCallbackOrder
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "signature" || k == "mode" || !req.Has(k) {
			continue
		}
		parts = append(parts, k+"="+req.Params.Get(k))
	}
	return strings.Join(parts, "&")
}

func (k *kashier) apiURL() string {
	if k.cfg.APIURL != "" {
		return strings.TrimRight(k.cfg.APIURL, "/")
	}
	if k.app.Live() {
		return "https://api.kashier.io"
	}
	return "https://test-api.kashier.io"
}

func kashierMethods(source string) string {
	switch source {
	case "CREDIT", "MADA", "APPLE":
		return "card"
	}
	return strings.ToLower(source)
}

func (k *kashier) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return k.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := k.begin(ctx, &req, validation.Union(validation.PayRules, validation.SourceRules), k.cfg.Currency); err != nil {
			return k.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		amount := formatAmount(req.Amount)
		path := KashierPath(k.cfg.AccountKey, req.TransactionCode, amount, k.cfg.Currency)

		html, err := render(kashierForm, kashierFormData{
			URL:            strings.TrimRight(k.cfg.URL, "/"),
			Amount:         amount,
			Description:    req.OrderTable,
			Hash:           signature.Sign(path, k.cfg.IframeKey, signature.HMACSHA256),
			Currency:       k.cfg.Currency,
			OrderID:        req.TransactionCode,
			MerchantID:     k.cfg.AccountKey,
			RedirectBack:   k.app.CallbackURL(Kashier, nil),
			Mode:           k.app.Mode,
			AllowedMethods: kashierMethods(req.Source),
		})
		if err != nil {
			return k.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Inline(html).withCode(req.TransactionCode)
	})
}

type kashierCallback struct {
	PaymentStatus   string `schema:"paymentStatus"`
	MerchantOrderID string `schema:"merchantOrderId"`
	Signature       string `schema:"signature"`
}

func (k *kashier) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	var cb kashierCallback
	return k.guard(ctx, stageVerify, func() string { return cb.MerchantOrderID }, fields, func() Envelope {
		if err := decodeCallback(req, &cb); err != nil {
			return k.fail(ctx, stageVerify, "", err, fields)
		}
		if cb.MerchantOrderID == "" {
			return k.fail(ctx, stageVerify, "", &ValidationError{Field: "merchantOrderId", Rule: "required"}, fields)
		}

		var err error
		switch {
		case cb.PaymentStatus == "SUCCESS":
			if !signature.Verify(KashierCallbackCanonical(req), k.cfg.IframeKey, signature.HMACSHA256, cb.Signature) {
				err = ErrSignatureMismatch
			}
		case cb.Signature == "":
			err = k.lookup(ctx, cb.MerchantOrderID)
		default:
			err = &DeclinedError{Provider: Kashier, Code: cb.PaymentStatus, Reason: cb.PaymentStatus}
		}
		if err != nil {
			return k.fail(ctx, stageVerify, cb.MerchantOrderID, err, fields)
		}
		return k.paid(ctx, cb.MerchantOrderID, fields)
	})
}

// lookup asks Kashier for the order state when the callback carried no signature.
func (k *kashier) lookup(ctx context.Context, orderID string) error {
	if k.cfg.Token == "" {
		return &ConfigError{Provider: Kashier, Err: errors.New("token is required for order lookup")}
	}
	h := http.Header{"Authorization": {k.cfg.Token}}
	resp, err := k.send(ctx, http.MethodGet, k.apiURL()+"/payments/orders/"+url.PathEscape(orderID), h, nil)
	if err != nil {
		return err
	}
	if err := k.expect(resp); err != nil {
		return err
	}
	var out struct {
		Response struct {
			Status string `json:"status"`
		} `json:"response"`
	}
	if err := k.decode(resp, &out); err != nil {
		return err
	}
	if out.Response.Status != "CAPTURED" {
		return &DeclinedError{Provider: Kashier, Code: out.Response.Status, Reason: out.Response.Status}
	}
	return nil
}
