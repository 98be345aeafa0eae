package payments

import (
	"bytes"
	"fmt"
	"html/template"
)

var hyperPayForm = template.Must(template.New("hyperpay").Parse(
	`<script src="{{.BaseURL}}/v1/paymentWidgets.js?checkoutId={{.CheckoutID}}"></script>
<form action="{{.ReturnURL}}" class="paymentWidgets" data-brands="{{.Brands}}"></form>
`))

type hyperPayFormData struct {
	BaseURL    string
	CheckoutID string
	ReturnURL  string
	Brands     string
}

var kashierForm = template.Must(template.New("kashier").Parse(
	`<script id="kashier-iFrame" src="{{.URL}}/kashier-checkout.js"
	data-amount="{{.Amount}}"
	data-description="{{.Description}}"
	data-hash="{{.Hash}}"
	data-currency="{{.Currency}}"
	data-orderId="{{.OrderID}}"
	data-merchantId="{{.MerchantID}}"
	data-merchantRedirect="{{.RedirectBack}}"
	data-mode="{{.Mode}}"
	data-display="en"
	data-allowedMethods="{{.AllowedMethods}}"
	data-redirectMethod="get"
	data-type="external"></script>
`))

type kashierFormData struct {
	URL            string
	Amount         string
	Description    string
	Hash           string
	Currency       string
	OrderID        string
	MerchantID     string
	RedirectBack   string
	Mode           string
	AllowedMethods string
}

// autoPostForm renders a form that submits itself to Action on load.
var autoPostForm = template.Must(template.New("autopost").Parse(
	`<form id="{{.ID}}" action="{{.Action}}" method="POST">
{{- range .Fields}}
	<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
</form>
<script>document.getElementById("{{.ID}}").submit();</script>
`))

type formField struct {
	Name  string
	Value string
}

type autoPostFormData struct {
	ID     string
	Action string
	Fields []formField
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s form: %w", t.Name(), err)
	}
	return buf.String(), nil
}
