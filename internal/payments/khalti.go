package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/validation"
)

type khalti struct {
	base
	cfg KhaltiConfig
}

func newKhalti(b base, cfg KhaltiConfig) *khalti {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dev.khalti.com/api/v2/epayment/"
		if b.app.Live() {
			cfg.BaseURL = "https://khalti.com/api/v2/epayment/"
		}
	}
	if cfg.ReturnURL == "" {
		cfg.ReturnURL = b.app.CallbackURL(Khalti, nil)
	}
	return &khalti{base: b, cfg: cfg}
}

func (k *khalti) endpoint(path string) string {
	return strings.TrimRight(k.cfg.BaseURL, "/") + "/" + path + "/"
}

func (k *khalti) header() http.Header {
	return http.Header{"Authorization": {"key " + k.cfg.SecretKey}}
}

func (k *khalti) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return k.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := k.begin(ctx, &req, validation.PayRules, "NPR"); err != nil {
			return k.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		link, err := k.initiate(ctx, req)
		if err != nil {
			return k.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Redirect(link).withCode(req.TransactionCode)
	})
}

func (k *khalti) initiate(ctx context.Context, req PaymentRequest) (string, error) {
	name := req.OrderTable
	if len(req.Items) > 0 && req.Items[0].Name != "" {
		name = req.Items[0].Name
	}
	payload := map[string]any{
		"return_url":          k.cfg.ReturnURL,
		"website_url":         k.cfg.WebsiteURL,
		"amount":              minorUnits(req.Amount, 100),
		"purchase_order_id":   req.TransactionCode,
		"purchase_order_name": orDefault(name, "order"),
		"customer_info": map[string]string{
			"name":  req.Buyer.Name,
			"email": req.Buyer.Email,
			"phone": req.Buyer.Phone,
		},
	}
	resp, err := k.sendJSON(ctx, http.MethodPost, k.endpoint("initiate"), k.header(), payload)
	if err != nil {
		return "", err
	}
	if err := k.expect(resp, http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}
	var out struct {
		Pidx       string `json:"pidx"`
		PaymentURL string `json:"payment_url"`
	}
	if err := k.decode(resp, &out); err != nil {
		return "", err
	}
	if out.PaymentURL == "" || out.Pidx == "" {
		return "", &DeclinedError{Provider: Khalti, Reason: "no payment url in reply"}
	}
	if err := k.remember(ctx, khaltiPidxKey(out.Pidx), req.TransactionCode); err != nil {
		return "", err
	}
	k.logger.Infow("khalti payment initiated", "transaction_code", req.TransactionCode, "pidx", out.Pidx)
	return out.PaymentURL, nil
}

// khaltiTerminal are lookup states after which the payment can never complete.
var khaltiTerminal = map[string]bool{
	"expired":       true,
	"user canceled": true,
}

func khaltiPidxKey(pidx string) string { return "pidx:" + pidx }

func (k *khalti) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	claimed := req.Get("purchase_order_id")
	code := claimed
	return k.guard(ctx, stageVerify, func() string { return code }, fields, func() Envelope {
		pidx := req.Get("pidx")
		if pidx == "" {
			return k.fail(ctx, stageVerify, code, &ValidationError{Field: "pidx", Rule: "required"}, fields)
		}
		// pidx was bound to its transaction code at initiate time.
		bound, err := k.bound(ctx, khaltiPidxKey(pidx))
		if err != nil {
			return k.fail(ctx, stageVerify, code, err, fields)
		}
		code = bound
		if claimed != "" && claimed != bound {
			return k.fail(ctx, stageVerify, bound, ErrSignatureMismatch, fields)
		}
		status, err := k.lookup(ctx, pidx)
		if err != nil {
			return k.fail(ctx, stageVerify, code, err, fields)
		}
		if strings.EqualFold(status, "Completed") {
			return k.paid(ctx, code, fields)
		}
		if khaltiTerminal[strings.ToLower(status)] {
			if serr := k.store.SetStatus(ctx, code, paymentsrepo.StatusFailed); serr != nil && !errors.Is(serr, paymentsrepo.ErrNotFound) {
				k.logger.Errorw("mark payment failed", "transaction_code", code, "err", serr)
			}
		}
		return k.fail(ctx, stageVerify, code, &DeclinedError{Provider: Khalti, Code: status, Reason: status}, fields)
	})
}

// lookup returns the Khalti state of pidx. Expired and canceled payments come
// back with a 400 and a regular body, so the body is read before the status.
func (k *khalti) lookup(ctx context.Context, pidx string) (string, error) {
	resp, err := k.sendJSON(ctx, http.MethodPost, k.endpoint("lookup"), k.header(), map[string]string{"pidx": pidx})
	if err != nil {
		return "", err
	}
	var out struct {
		Pidx   string `json:"pidx"`
		Status string `json:"status"`
	}
	if err := k.decode(resp, &out); err != nil {
		return "", err
	}
	if out.Status == "" {
		if err := k.expect(resp); err != nil {
			return "", err
		}
		return "", &DeclinedError{Provider: Khalti, Reason: "no status in lookup reply"}
	}
	return strings.TrimSpace(out.Status), nil
}
