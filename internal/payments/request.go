package payments

import (
	"net/url"
	"strings"
)

type Item struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// Buyer is the paying party. Every field is optional; adapters fall back to
// provider-specific placeholders.
type Buyer struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type PaymentRequest struct {
	Amount          float64 `json:"amount"`
	TransactionCode string  `json:"transaction_code"`
	// OrderID and OrderTable link the payment to any business entity.
	OrderID    int64   `json:"order_id"`
	OrderTable string  `json:"order_table"`
	Items      []Item  `json:"items,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	// Source selects the card scheme for HyperPay and Kashier: CREDIT, MADA or APPLE.
	Source string `json:"source,omitempty"`
	Buyer  Buyer  `json:"buyer"`
}

// Fields flattens the request into the shape the validation gate walks.
func (r PaymentRequest) Fields() map[string]any {
	m := map[string]any{
		"amount":           r.Amount,
		"transaction_code": r.TransactionCode,
		"order_id":         r.OrderID,
		"order_table":      r.OrderTable,
		"source":           r.Source,
	}
	if r.Notes != nil {
		m["notes"] = *r.Notes
	} else {
		m["notes"] = nil
	}
	if r.Items != nil {
		items := make([]any, len(r.Items))
		for i, it := range r.Items {
			items[i] = map[string]any{
				"id":         it.ID,
				"name":       it.Name,
				"unit_price": it.UnitPrice,
				"quantity":   it.Quantity,
			}
		}
		m["items"] = items
	}
	return m
}

// echo is the request as it appears in envelopes and failure logs.
func (r PaymentRequest) echo() map[string]any {
	m := r.Fields()
	buyer := map[string]any{}
	if r.Buyer.ID != "" {
		buyer["id"] = r.Buyer.ID
	}
	if r.Buyer.Name != "" {
		buyer["name"] = r.Buyer.Name
	}
	if r.Buyer.Email != "" {
		buyer["email"] = r.Buyer.Email
	}
	if r.Buyer.Phone != "" {
		buyer["phone"] = r.Buyer.Phone
	}
	m["buyer"] = buyer
	return m
}

// VerifyRequest carries the fields of a provider callback or a polling call.
// Order keeps the arrival order of keys; signature schemes computed over the
// echoed query need it.
type VerifyRequest struct {
	Params url.Values
	Order  []string
}

// NewVerifyRequest builds a request from already-parsed values. Keys keep the
// order given in order, or are left unordered when order is nil.
func NewVerifyRequest(params url.Values, order ...string) VerifyRequest {
	if params == nil {
		params = url.Values{}
	}
	return VerifyRequest{Params: params, Order: order}
}

// ParseQuery parses a raw query or form body and records key order.
func ParseQuery(raw string) (VerifyRequest, error) {
	params, err := url.ParseQuery(raw)
	if err != nil {
		return VerifyRequest{}, err
	}
	var order []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, _, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(k)
		if err != nil || seen[k] {
			continue
		}
		seen[k] = true
		order = append(order, k)
	}
	return VerifyRequest{Params: params, Order: order}, nil
}

func (v VerifyRequest) Get(key string) string {
	return strings.TrimSpace(v.Params.Get(key))
}

// Has reports whether key was delivered, even with an empty value.
func (v VerifyRequest) Has(key string) bool {
	_, ok := v.Params[key]
	return ok
}

// Fields returns the first value of every key.
func (v VerifyRequest) Fields() map[string]any {
	m := make(map[string]any, len(v.Params))
	for k := range v.Params {
		m[k] = v.Params.Get(k)
	}
	return m
}

// Merge returns a copy with extra values added under keys not already present.
func (v VerifyRequest) Merge(extra url.Values) VerifyRequest {
	out := url.Values{}
	for k, vs := range v.Params {
		out[k] = append([]string(nil), vs...)
	}
	order := append([]string(nil), v.Order...)
	for k, vs := range extra {
		if _, ok := out[k]; ok {
			continue
		}
		out[k] = append([]string(nil), vs...)
		if order != nil {
			order = append(order, k)
		}
	}
	return VerifyRequest{Params: out, Order: order}
}
