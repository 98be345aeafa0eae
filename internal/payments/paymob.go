package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"paygate/internal/cache"
	"paygate/internal/signature"
	"paygate/internal/validation"
)

// paymobCallbackFields are concatenated in this order for the callback HMAC.
var paymobCallbackFields = []string{
	"amount_cents", "created_at", "currency", "error_occured", "has_parent_transaction",
	"id", "integration_id", "is_3d_secure", "is_auth", "is_capture", "is_refunded",
	"is_standalone_payment", "is_voided", "order", "owner", "pending",
	"source_data_pan", "source_data_sub_type", "source_data_type", "success",
}

// paymob serves both the card iframe flow and, with wallet set, the mobile
// wallet flow. Both share the auth, order and payment key steps.
type paymob struct {
	base
	cfg    PaymobConfig
	wallet bool
}

// PaymobCallbackCanonical concatenates the callback fields Paymob signs.
// source_data fields are accepted with either "_" or "." separators, and the
// flattened webhook form ("order.id") is accepted for order.
func PaymobCallbackCanonical(req VerifyRequest) string {
	var sb strings.Builder
	for _, k := range paymobCallbackFields {
		switch {
		case req.Has(k):
		case strings.HasPrefix(k, "source_data_"):
			k = "source_data." + strings.TrimPrefix(k, "source_data_")
		case k == "order":
			k = "order.id"
		}
		sb.WriteString(req.Params.Get(k))
	}
	return sb.String()
}

// Card and wallet callbacks both carry the Paymob order id, so the binding
// lives under one namespace for the two flows.
func paymobOrderKey(orderID string) string {
	return cache.Key(string(Paymob), "order:"+orderID)
}

// bindOrder records which transaction code a Paymob order belongs to. The
// signed "order" field is the only trustworthy link back to the record.
func (p *paymob) bindOrder(ctx context.Context, orderID, code string) error {
	if err := p.cache.Put(ctx, paymobOrderKey(orderID), code, cache.DefaultTTL); err != nil {
		return fmt.Errorf("cache paymob order: %w", err)
	}
	return nil
}

func (p *paymob) orderCode(ctx context.Context, orderID string) (string, error) {
	if orderID == "" {
		return "", &ValidationError{Field: "order", Rule: "required"}
	}
	code, ok, err := p.cache.Get(ctx, paymobOrderKey(orderID))
	if err != nil {
		return "", fmt.Errorf("read paymob order: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: paymob order %s", ErrSessionNotFound, orderID)
	}
	return code, nil
}

func (p *paymob) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *paymob) rules() validation.RuleSet {
	if p.wallet {
		return validation.Union(validation.PayRules, validation.NamedItemRules)
	}
	return validation.PayRules
}

func (p *paymob) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return p.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if p.wallet && strings.TrimSpace(req.Buyer.Phone) == "" {
			return p.fail(ctx, stagePay, req.TransactionCode, &ValidationError{Field: "buyer.phone", Rule: "required"}, req.echo())
		}
		if err := p.begin(ctx, &req, p.rules(), p.cfg.Currency); err != nil {
			return p.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		link, err := p.checkout(ctx, req)
		if err != nil {
			return p.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Redirect(link).withCode(req.TransactionCode)
	})
}

// checkout runs the chained calls; each step feeds the next and the first
// failure stops the chain.
func (p *paymob) checkout(ctx context.Context, req PaymentRequest) (string, error) {
	token, err := p.authToken(ctx)
	if err != nil {
		return "", err
	}

	var order struct {
		ID          int64 `json:"id"`
		AmountCents int64 `json:"amount_cents"`
	}
	if err := p.post(ctx, "/api/ecommerce/orders", map[string]any{
		"auth_token":        token,
		"delivery_needed":   "false",
		"amount_cents":      minorUnits(req.Amount, 100),
		"currency":          p.cfg.Currency,
		"merchant_order_id": req.TransactionCode,
		"items":             []any{},
	}, &order); err != nil {
		return "", err
	}
	if err := p.bindOrder(ctx, strconv.FormatInt(order.ID, 10), req.TransactionCode); err != nil {
		return "", err
	}

	integration := p.cfg.IntegrationID
	if p.wallet {
		integration = p.cfg.WalletIntegrationID
	}
	keyReq := map[string]any{
		"auth_token":     token,
		"expiration":     36000,
		"amount_cents":   order.AmountCents,
		"order_id":       order.ID,
		"billing_data":   paymobBilling(req.Buyer),
		"currency":       p.cfg.Currency,
		"integration_id": json.Number(integration),
	}
	if p.wallet {
		keyReq["lock_order_when_paid"] = true
	}
	var key struct {
		Token string `json:"token"`
	}
	if err := p.post(ctx, "/api/acceptance/payment_keys", keyReq, &key); err != nil {
		return "", err
	}
	if key.Token == "" {
		return "", &DeclinedError{Provider: p.provider, Reason: "no payment key"}
	}

	if !p.wallet {
		return p.endpoint("/api/acceptance/iframes/" + p.cfg.IframeID + "?payment_token=" + key.Token), nil
	}

	var pay struct {
		RedirectURL     string     `json:"redirect_url"`
		TxnResponseCode flexString `json:"txn_response_code"`
	}
	if err := p.post(ctx, "/api/acceptance/payments/pay", map[string]any{
		"source": map[string]any{
			"identifier": req.Buyer.Phone,
			"subtype":    "WALLET",
		},
		"payment_token": key.Token,
	}, &pay); err != nil {
		return "", err
	}
	if pay.RedirectURL == "" {
		code := pay.TxnResponseCode.String()
		return "", &DeclinedError{Provider: p.provider, Code: code, Reason: DeclineMessage(paymobMessages, code)}
	}
	return pay.RedirectURL, nil
}

func paymobBilling(b Buyer) map[string]any {
	return map[string]any{
		"apartment":       "NA",
		"email":           orDefault(b.Email, "NA"),
		"floor":           "NA",
		"first_name":      orDefault(b.Name, "NA"),
		"street":          "NA",
		"building":        "NA",
		"phone_number":    orDefault(b.Phone, "NA"),
		"shipping_method": "NA",
		"postal_code":     "NA",
		"city":            "NA",
		"country":         "NA",
		"last_name":       orDefault(b.Name, "NA"),
		"state":           "NA",
	}
}

func (p *paymob) authToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := p.post(ctx, "/api/auth/tokens", map[string]any{"api_key": p.cfg.APIKey}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &DeclinedError{Provider: p.provider, Reason: "authentication failed"}
	}
	return out.Token, nil
}

func (p *paymob) post(ctx context.Context, path string, payload, dst any) error {
	resp, err := p.sendJSON(ctx, http.MethodPost, p.endpoint(path), nil, payload)
	if err != nil {
		return err
	}
	if err := p.expect(resp); err != nil {
		return err
	}
	return p.decode(resp, dst)
}

type paymobCallback struct {
	HMAC            string `schema:"hmac"`
	Success         string `schema:"success"`
	MerchantOrderID string `schema:"merchant_order_id"`
	TxnResponseCode string `schema:"txn_response_code"`
}

func (p *paymob) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	var cb paymobCallback
	return p.guard(ctx, stageVerify, func() string { return cb.MerchantOrderID }, fields, func() Envelope {
		if err := decodeCallback(req, &cb); err != nil {
			return p.fail(ctx, stageVerify, "", err, fields)
		}
		claimed := orDefault(cb.MerchantOrderID, req.Get("order.merchant_order_id"))
		cb.TxnResponseCode = orDefault(cb.TxnResponseCode, req.Get("data.txn_response_code"))
		if !signature.Verify(PaymobCallbackCanonical(req), p.cfg.HMAC, signature.HMACSHA512, cb.HMAC) {
			return p.fail(ctx, stageVerify, claimed, ErrSignatureMismatch, fields)
		}
		// merchant_order_id is not signed; the record comes from the signed order id.
		code, err := p.orderCode(ctx, orDefault(req.Get("order"), req.Get("order.id")))
		if err != nil {
			return p.fail(ctx, stageVerify, claimed, err, fields)
		}
		if claimed != "" && claimed != code {
			return p.fail(ctx, stageVerify, code, ErrSignatureMismatch, fields)
		}
		cb.MerchantOrderID = code
		if cb.Success != "true" {
			err := &DeclinedError{
				Provider: p.provider,
				Code:     cb.TxnResponseCode,
				Reason:   DeclineMessage(paymobMessages, cb.TxnResponseCode),
			}
			return p.fail(ctx, stageVerify, cb.MerchantOrderID, err, fields)
		}
		return p.paid(ctx, cb.MerchantOrderID, fields)
	})
}

// Refund returns amountCents of a settled Paymob transaction.
func (p *paymob) Refund(ctx context.Context, transactionID string, amountCents int64) (map[string]any, error) {
	out, err := p.refund(ctx, transactionID, amountCents)
	p.metrics.Operation(string(p.provider), stageRefund, err == nil)
	if err != nil {
		p.logger.Warnw("refund failed", "transaction_id", transactionID, "err", err)
		return nil, err
	}
	p.logger.Infow("refund issued", "transaction_id", transactionID, "amount_cents", amountCents)
	return out, nil
}

func (p *paymob) refund(ctx context.Context, transactionID string, amountCents int64) (map[string]any, error) {
	if transactionID == "" {
		return nil, &ValidationError{Field: "transaction_id", Rule: "required"}
	}
	if amountCents <= 0 {
		return nil, &ValidationError{Field: "amount_cents", Rule: "gt=0"}
	}
	token, err := p.authToken(ctx)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := p.post(ctx, "/api/acceptance/void_refund/refund", map[string]any{
		"auth_token":     token,
		"transaction_id": transactionID,
		"amount_cents":   amountCents,
	}, &out); err != nil {
		return nil, err
	}
	if ok, _ := out["success"].(bool); !ok {
		code, _ := out["txn_response_code"].(string)
		return Redact(out), &DeclinedError{Provider: p.provider, Code: code, Reason: DeclineMessage(paymobMessages, code)}
	}
	return Redact(out), nil
}
