package payments

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/httpx"
	"paygate/internal/signature"
	"paygate/internal/validation"
)

const opaySuccessCode = "00000"

type opay struct {
	base
	cfg OpayConfig
}

type opayProduct struct {
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
}

type opayReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		CashierURL string `json:"cashierUrl"`
		Reference  string `json:"reference"`
		Status     string `json:"status"`
	} `json:"data"`
}

func (o *opay) endpoint(path string) string {
	return strings.TrimRight(o.cfg.BaseURL, "/") + path
}

func (o *opay) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return o.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := o.begin(ctx, &req, validation.Union(validation.PayRules, validation.NamedItemRules), o.cfg.Currency); err != nil {
			return o.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		link, err := o.create(ctx, req)
		if err != nil {
			return o.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Redirect(link).withCode(req.TransactionCode)
	})
}

func (o *opay) create(ctx context.Context, req PaymentRequest) (string, error) {
	products := make([]opayProduct, len(req.Items))
	for i, it := range req.Items {
		products[i] = opayProduct{
			ProductID:   orDefault(it.ID, it.Name),
			Name:        it.Name,
			Description: it.Name,
			Price:       minorUnits(it.UnitPrice, 100),
			Quantity:    it.Quantity,
		}
	}
	callback := o.app.CallbackURL(Opay, url.Values{"reference_id": {req.TransactionCode}})
	payload := map[string]any{
		"amount": map[string]any{
			"currency": o.cfg.Currency,
			"total":    minorUnits(req.Amount, 100),
		},
		"callbackUrl": callback,
		"cancelUrl":   callback,
		"returnUrl":   callback,
		"country":     o.cfg.Country,
		"expireAt":    780,
		"payMethod":   "BankCard",
		"productList": products,
		"reference":   req.TransactionCode,
		"userInfo": map[string]any{
			"userEmail":  req.Buyer.Email,
			"userId":     req.Buyer.ID,
			"userMobile": req.Buyer.Phone,
			"userName":   req.Buyer.Name,
		},
	}
	h := bearer(o.cfg.PublicKey)
	h.Set("MerchantId", o.cfg.MerchantID)

	resp, err := o.sendJSON(ctx, http.MethodPost, o.endpoint("/api/v1/international/cashier/create"), h, payload)
	if err != nil {
		return "", err
	}
	if err := o.expect(resp); err != nil {
		return "", err
	}
	var out opayReply
	if err := o.decode(resp, &out); err != nil {
		return "", err
	}
	if out.Code != opaySuccessCode || out.Data.CashierURL == "" {
		return "", &DeclinedError{Provider: Opay, Code: out.Code, Reason: out.Message}
	}
	return out.Data.CashierURL, nil
}

// OpayStatusBody is the exact JSON body signed for a status query. The
// signature covers these bytes, so they are sent unchanged.
func OpayStatusBody(country, reference string) ([]byte, error) {
	return httpx.JSON(struct {
		Country   string `json:"country"`
		Reference string `json:"reference"`
	}{country, reference})
}

func (o *opay) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	ref := orDefault(req.Get("reference_id"), req.Get("reference"))
	return o.guard(ctx, stageVerify, func() string { return ref }, fields, func() Envelope {
		if ref == "" {
			return o.fail(ctx, stageVerify, "", &ValidationError{Field: "reference_id", Rule: "required"}, fields)
		}
		if err := o.status(ctx, ref); err != nil {
			return o.fail(ctx, stageVerify, ref, err, fields)
		}
		return o.paid(ctx, ref, fields)
	})
}

func (o *opay) status(ctx context.Context, ref string) error {
	body, err := OpayStatusBody(o.cfg.Country, ref)
	if err != nil {
		return err
	}
	h := bearer(signature.Sign(string(body), o.cfg.SecretKey, signature.HMACSHA512))
	h.Set("MerchantId", o.cfg.MerchantID)
	h.Set("Content-Type", "application/json")

	resp, err := o.send(ctx, http.MethodPost, o.endpoint("/api/v1/international/cashier/status"), h, body)
	if err != nil {
		return err
	}
	if err := o.expect(resp); err != nil {
		return err
	}
	var out opayReply
	if err := o.decode(resp, &out); err != nil {
		return err
	}
	if out.Code == opaySuccessCode && out.Data.Status == "SUCCESS" {
		return nil
	}
	code := out.Data.Status
	if code == "" {
		code = out.Code
	}
	return &DeclinedError{Provider: Opay, Code: code, Reason: code}
}
