package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"paygate/internal/signature"
	"paygate/internal/validation"
)

type fawry struct {
	base
	cfg FawryConfig
}

type fawryChargeItem struct {
	ItemID      string  `json:"itemId"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// FawryChargeCanonical is the string signed on a charge request: merchant code,
// reference, customer profile id, return URL, every item as
// id+quantity+price(2dp), then the secure key.
func FawryChargeCanonical(merchant, ref, profileID, returnURL string, items []Item, secret string) string {
	var sb strings.Builder
	sb.WriteString(merchant)
	sb.WriteString(ref)
	sb.WriteString(profileID)
	sb.WriteString(returnURL)
	for _, it := range items {
		sb.WriteString(it.ID)
		sb.WriteString(strconv.Itoa(it.Quantity))
		sb.WriteString(formatAmount(it.UnitPrice))
	}
	sb.WriteString(secret)
	return sb.String()
}

// FawryStatusCanonical is the string signed on a payment status query.
func FawryStatusCanonical(merchant, ref, secret string) string {
	return merchant + ref + secret
}

type fawryChargeResponse struct {
	FawryRefNumber        flexString `json:"fawryRefNumber"`
	MerchantRefNumber     flexString `json:"merchantRefNumber"`
	PaymentAmount         float64    `json:"paymentAmount"`
	OrderAmount           float64    `json:"orderAmount"`
	OrderStatus           string     `json:"orderStatus"`
	PaymentMethod         string     `json:"paymentMethod"`
	PaymentRefrenceNumber flexString `json:"paymentRefrenceNumber"`
	Signature             string     `json:"signature"`
}

// FawryCallbackCanonical is the string Fawry signs on the charge response it
// hands back to the return URL.
func FawryCallbackCanonical(c fawryChargeResponse, secret string) string {
	return c.FawryRefNumber.String() +
		c.MerchantRefNumber.String() +
		formatAmount(c.PaymentAmount) +
		formatAmount(c.OrderAmount) +
		c.OrderStatus +
		c.PaymentMethod +
		c.PaymentRefrenceNumber.String() +
		secret
}

func (f *fawry) returnURL() string {
	return orDefault(f.cfg.ReturnURL, f.app.CallbackURL(Fawry, nil))
}

func (f *fawry) Pay(ctx context.Context, req PaymentRequest) Envelope {
	return f.guard(ctx, stagePay, func() string { return req.TransactionCode }, req.echo(), func() Envelope {
		if err := f.begin(ctx, &req, validation.Union(validation.PayRules, validation.FawryItemRules), "EGP"); err != nil {
			return f.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		link, err := f.charge(ctx, req)
		if err != nil {
			return f.fail(ctx, stagePay, req.TransactionCode, err, req.echo())
		}
		return Redirect(link).withCode(req.TransactionCode)
	})
}

func (f *fawry) charge(ctx context.Context, req PaymentRequest) (string, error) {
	returnURL := f.returnURL()
	items := make([]fawryChargeItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = fawryChargeItem{ItemID: it.ID, Description: it.Name, Price: it.UnitPrice, Quantity: it.Quantity}
	}
	canonical := FawryChargeCanonical(f.cfg.Merchant, req.TransactionCode, req.Buyer.ID, returnURL, req.Items, f.cfg.Secret)

	payload := map[string]any{
		"merchantCode":           f.cfg.Merchant,
		"merchantRefNum":         req.TransactionCode,
		"customerProfileId":      req.Buyer.ID,
		"customerName":           orDefault(req.Buyer.Name, "buyer"),
		"customerEmail":          orDefault(req.Buyer.Email, "example@example.com"),
		"customerMobile":         orDefault(req.Buyer.Phone, "+201000000000"),
		"language":               f.cfg.Language,
		"chargeItems":            items,
		"returnUrl":              returnURL,
		"authCaptureModePayment": false,
		"signature":              signature.Sign(canonical, "", signature.SHA256),
	}
	resp, err := f.sendJSON(ctx, http.MethodPost, f.cfg.PayURL, nil, payload)
	if err != nil {
		return "", err
	}
	if err := f.expect(resp, http.StatusOK); err != nil {
		return "", err
	}
	link := strings.Trim(strings.TrimSpace(string(resp.Body)), `"`)
	if _, err := url.ParseRequestURI(link); err != nil {
		return "", &DeclinedError{Provider: Fawry, Reason: "no checkout link in reply"}
	}
	return link, nil
}

func (f *fawry) Verify(ctx context.Context, req VerifyRequest) Envelope {
	fields := req.Fields()
	var ref string
	return f.guard(ctx, stageVerify, func() string { return ref }, fields, func() Envelope {
		var err error
		ref, err = f.checkCharge(req)
		if err != nil {
			return f.fail(ctx, stageVerify, ref, err, fields)
		}
		if err := f.status(ctx, ref); err != nil {
			return f.fail(ctx, stageVerify, ref, err, fields)
		}
		return f.paid(ctx, ref, fields)
	})
}

// checkCharge reads the merchant reference from the callback and, when Fawry
// signed the charge response, checks that signature.
func (f *fawry) checkCharge(req VerifyRequest) (string, error) {
	raw := req.Get("chargeResponse")
	if raw == "" {
		ref := req.Get("merchantRefNumber")
		if ref == "" {
			return "", &ValidationError{Field: "chargeResponse", Rule: "required"}
		}
		return ref, nil
	}

	var charge fawryChargeResponse
	if err := json.Unmarshal([]byte(raw), &charge); err != nil {
		return "", &ValidationError{Field: "chargeResponse", Rule: "json"}
	}
	ref := charge.MerchantRefNumber.String()
	if ref == "" {
		return "", &ValidationError{Field: "chargeResponse.merchantRefNumber", Rule: "required"}
	}
	if charge.Signature != "" {
		canonical := FawryCallbackCanonical(charge, f.cfg.Secret)
		if !signature.Verify(canonical, "", signature.SHA256, charge.Signature) {
			return ref, ErrSignatureMismatch
		}
	}
	return ref, nil
}

func (f *fawry) status(ctx context.Context, ref string) error {
	q := url.Values{}
	q.Set("merchantCode", f.cfg.Merchant)
	q.Set("merchantRefNumber", ref)
	q.Set("signature", signature.Sign(FawryStatusCanonical(f.cfg.Merchant, ref, f.cfg.Secret), "", signature.SHA256))
	endpoint := strings.TrimRight(f.cfg.URL, "/") + "/ECommerceWeb/Fawry/payments/status/v2?" + q.Encode()

	resp, err := f.send(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return err
	}
	var out struct {
		StatusCode        int    `json:"statusCode"`
		StatusDescription string `json:"statusDescription"`
		PaymentStatus     string `json:"paymentStatus"`
	}
	if err := f.decode(resp, &out); err != nil {
		return err
	}
	if out.StatusCode == http.StatusOK && out.PaymentStatus == "PAID" {
		return nil
	}
	code := out.PaymentStatus
	if code == "" {
		code = fmt.Sprint(out.StatusCode)
	}
	return &DeclinedError{Provider: Fawry, Code: code, Reason: code}
}
