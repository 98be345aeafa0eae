package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"paygate/internal/validation"
)

// hyperPaySuccessCodes are the result codes HyperPay reports for a settled payment.
var hyperPaySuccessCodes = []string{"000.000.000", "000.100.110", "000.100.111", "000.100.112"}

type hyperPay struct {
	base
	cfg HyperPayConfig
}

// hyperPayCheckout is what pay leaves in the bridge cache for verify.
type hyperPayCheckout struct {
	Source          string `json:"source"`
	TransactionCode string `json:"transaction_code"`
}

func (h *hyperPay) entityID(source string) string {
	switch source {
	case "CREDIT":
		return h.cfg.CreditID
	case "MADA":
		return h.cfg.MadaID
	case "APPLE":
		return h.cfg.AppleID
	}
	return ""
}

func hyperPayBrands(source string) string {
	switch source {
	case "MADA":
		return "MADA"
	case "APPLE":
		return "APPLEPAY"
	}
	return "VISA MASTER"
}

func (h *hyperPay) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return h.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := h.begin(ctx, &req, validation.Union(validation.PayRules, validation.CardSourceRules), h.cfg.Currency); err != nil {
			return h.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		html, err := h.checkout(ctx, req)
		if err != nil {
			return h.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Inline(html).withCode(req.TransactionCode)
	})
}

func (h *hyperPay) checkout(ctx context.Context, req PaymentRequest) (string, error) {
	entityID := h.entityID(req.Source)
	if entityID == "" {
		return "", &ConfigError{Provider: HyperPay, Err: fmt.Errorf("no entity id for source %s", req.Source)}
	}

	form := url.Values{}
	form.Set("entityId", entityID)
	form.Set("amount", formatAmount(req.Amount))
	form.Set("currency", h.cfg.Currency)
	form.Set("paymentType", "DB")
	form.Set("merchantTransactionId", req.TransactionCode)
	form.Set("billing.street1", "riyadh")
	form.Set("billing.city", "riyadh")
	form.Set("billing.state", "riyadh")
	form.Set("billing.country", "SA")
	form.Set("billing.postcode", "123456")
	form.Set("customer.email", req.Buyer.Email)
	form.Set("customer.givenName", req.Buyer.Name)
	form.Set("customer.surname", req.Buyer.Name)

	resp, err := h.sendForm(ctx, h.cfg.URL, bearer(h.cfg.Token), form)
	if err != nil {
		return "", err
	}
	if err := h.expect(resp); err != nil {
		return "", err
	}
	var out struct {
		ID     string `json:"id"`
		Result struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"result"`
	}
	if err := h.decode(resp, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &DeclinedError{Provider: HyperPay, Code: out.Result.Code, Reason: out.Result.Description}
	}

	state, err := json.Marshal(hyperPayCheckout{Source: req.Source, TransactionCode: req.TransactionCode})
	if err != nil {
		return "", err
	}
	if err := h.remember(ctx, out.ID, string(state)); err != nil {
		return "", err
	}

	return render(hyperPayForm, hyperPayFormData{
		BaseURL:    strings.TrimRight(h.cfg.BaseURL, "/"),
		CheckoutID: out.ID,
		ReturnURL:  h.app.CallbackURL(HyperPay, nil),
		Brands:     hyperPayBrands(req.Source),
	})
}

type hyperPayCallback struct {
	ID           string `schema:"id"`
	ResourcePath string `schema:"resourcePath"`
}

func (h *hyperPay) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	var code string
	return h.guard(ctx, stageVerify, func() string { return code }, fields, func() Envelope {
		var cb hyperPayCallback
		if err := decodeCallback(req, &cb); err != nil {
			return h.fail(ctx, stageVerify, "", err, fields)
		}
		if cb.ID == "" {
			return h.fail(ctx, stageVerify, "", &ValidationError{Field: "id", Rule: "required"}, fields)
		}

		raw, err := h.recall(ctx, cb.ID)
		if err != nil {
			return h.fail(ctx, stageVerify, "", err, fields)
		}
		var state hyperPayCheckout
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return h.fail(ctx, stageVerify, "", fmt.Errorf("decode checkout state: %w", err), fields)
		}
		code = state.TransactionCode

		if err := h.status(ctx, cb.ID, state.Source); err != nil {
			return h.fail(ctx, stageVerify, code, err, fields)
		}
		return h.paid(ctx, code, fields)
	})
}

func (h *hyperPay) status(ctx context.Context, checkoutID, source string) error {
	endpoint := fmt.Sprintf("%s/%s/payment?entityId=%s",
		strings.TrimRight(h.cfg.URL, "/"), url.PathEscape(checkoutID), url.QueryEscape(h.entityID(source)))

	resp, err := h.send(ctx, http.MethodGet, endpoint, bearer(h.cfg.Token), nil)
	if err != nil {
		return err
	}
	// Declined payments come back as 4xx with a result block, so the body is
	// read before the status.
	var out struct {
		Result struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"result"`
	}
	if err := h.decode(resp, &out); err != nil {
		return err
	}
	if out.Result.Code == "" {
		if err := h.expect(resp); err != nil {
			return err
		}
		return &DeclinedError{Provider: HyperPay}
	}
	if slices.Contains(hyperPaySuccessCodes, out.Result.Code) {
		return nil
	}
	return &DeclinedError{Provider: HyperPay, Code: out.Result.Code, Reason: out.Result.Code}
}
