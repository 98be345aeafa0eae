package payments

import (
	"fmt"
	"strings"
)

// Provider identifies one payment gateway. The set is closed; ParseProvider
// rejects anything outside it.
type Provider string

const (
	CashOnDelivery Provider = "cash_on_delivery"
	Fawry          Provider = "fawry"
	HyperPay       Provider = "hyperpay"
	Kashier        Provider = "kashier"
	Opay           Provider = "opay"
	PayPal         Provider = "paypal"
	Paymob         Provider = "paymob"
	PaymobWallet   Provider = "paymob_wallet"
	Paytabs        Provider = "paytabs"
	Tap            Provider = "tap"
	Thawani        Provider = "thawani"
	Khalti         Provider = "khalti"
	Esewa          Provider = "esewa"
)

var providers = []Provider{
	CashOnDelivery, Fawry, HyperPay, Kashier, Opay, PayPal,
	Paymob, PaymobWallet, Paytabs, Tap, Thawani, Khalti, Esewa,
}

// Providers lists every supported provider in a stable order.
func Providers() []Provider {
	out := make([]Provider, len(providers))
	copy(out, providers)
	return out
}

func ParseProvider(s string) (Provider, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range providers {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

func (p Provider) String() string { return string(p) }
