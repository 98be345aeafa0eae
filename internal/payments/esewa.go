package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"paygate/internal/signature"
	"paygate/internal/validation"
)

const esewaSignedFields = "total_amount,transaction_uuid,product_code"

type esewa struct {
	base
	cfg EsewaConfig
}

func newEsewa(b base, cfg EsewaConfig) *esewa {
	live := b.app.Live()
	if cfg.FormURL == "" {
		cfg.FormURL = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
		if live {
			cfg.FormURL = "https://epay.esewa.com.np/api/epay/main/v2/form"
		}
	}
	if cfg.StatusURL == "" {
		cfg.StatusURL = "https://rc.esewa.com.np/api/epay/transaction/status/"
		if live {
			cfg.StatusURL = "https://epay.esewa.com.np/api/epay/transaction/status/"
		}
	}
	return &esewa{base: b, cfg: cfg}
}

// EsewaCanonical joins the fields named in signedFieldNames as k=v with ",".
func EsewaCanonical(fields map[string]string, signedFieldNames string) string {
	names := strings.Split(signedFieldNames, ",")
	parts := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		parts = append(parts, n+"="+fields[n])
	}
	return strings.Join(parts, ",")
}

func (e *esewa) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return e.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := e.begin(ctx, &req, validation.PayRules, "NPR"); err != nil {
			return e.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		total := formatAmount(req.Amount)
		signed := map[string]string{
			"total_amount":     total,
			"transaction_uuid": req.TransactionCode,
			"product_code":     e.cfg.MerchantCode,
		}
		sig := signature.Sign(EsewaCanonical(signed, esewaSignedFields), e.cfg.SecretKey, signature.HMACSHA256Base64)

		html, err := render(autoPostForm, autoPostFormData{
			ID:     "esewa-checkout",
			Action: e.cfg.FormURL,
			Fields: []formField{
				{Name: "amount", Value: total},
				{Name: "tax_amount", Value: "0"},
				{Name: "total_amount", Value: total},
				{Name: "transaction_uuid", Value: req.TransactionCode},
				{Name: "product_code", Value: e.cfg.MerchantCode},
				{Name: "product_service_charge", Value: "0"},
				{Name: "product_delivery_charge", Value: "0"},
				{Name: "success_url", Value: e.app.CallbackURL(Esewa, nil)},
				{Name: "failure_url", Value: e.app.CallbackURL(Esewa, url.Values{"status": {"failure"}})},
				{Name: "signed_field_names", Value: esewaSignedFields},
				{Name: "signature", Value: sig},
			},
		})
		if err != nil {
			return e.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Inline(html).withCode(req.TransactionCode)
	})
}

func (e *esewa) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	var code string
	return e.guard(ctx, stageVerify, func() string { return code }, fields, func() Envelope {
		if req.Get("status") == "failure" {
			return e.fail(ctx, stageVerify, "", &DeclinedError{Provider: Esewa, Reason: "canceled"}, fields)
		}
		data, err := decodeEsewaData(req.Get("data"))
		if err != nil {
			return e.fail(ctx, stageVerify, "", err, fields)
		}
		code = data["transaction_uuid"]

		canonical := EsewaCanonical(data, data["signed_field_names"])
		if !signature.Verify(canonical, e.cfg.SecretKey, signature.HMACSHA256Base64, data["signature"]) {
			return e.fail(ctx, stageVerify, code, ErrSignatureMismatch, fields)
		}
		if data["status"] != "COMPLETE" {
			return e.fail(ctx, stageVerify, code, &DeclinedError{Provider: Esewa, Code: data["status"], Reason: data["status"]}, fields)
		}
		if code == "" {
			return e.fail(ctx, stageVerify, "", &ValidationError{Field: "transaction_uuid", Rule: "required"}, fields)
		}
		if err := e.status(ctx, data["total_amount"], code); err != nil {
			return e.fail(ctx, stageVerify, code, err, fields)
		}
		return e.paid(ctx, code, fields)
	})
}

// status asks eSewa to confirm the transaction independently of the redirect.
func (e *esewa) status(ctx context.Context, total, code string) error {
	q := url.Values{
		"product_code":     {e.cfg.MerchantCode},
		"total_amount":     {total},
		"transaction_uuid": {code},
	}
	resp, err := e.send(ctx, http.MethodGet, e.cfg.StatusURL+"?"+q.Encode(), http.Header{"Accept": {"application/json"}}, nil)
	if err != nil {
		return err
	}
	if err := e.expect(resp); err != nil {
		return err
	}
	var out struct {
		Status string `json:"status"`
		RefID  any    `json:"ref_id"`
	}
	if err := e.decode(resp, &out); err != nil {
		return err
	}
	if out.Status != "COMPLETE" {
		return &DeclinedError{Provider: Esewa, Code: out.Status, Reason: out.Status}
	}
	return nil
}

// decodeEsewaData unpacks the base64 JSON eSewa appends to the success URL.
// Numbers keep their literal text so the signature can be recomputed.
func decodeEsewaData(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, &ValidationError{Field: "data", Rule: "required"}
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		if b, err = base64.URLEncoding.DecodeString(raw); err != nil {
			return nil, &ValidationError{Field: "data", Rule: "base64"}
		}
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, &ValidationError{Field: "data", Rule: "json"}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}
