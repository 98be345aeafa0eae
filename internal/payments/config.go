package payments

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

const (
	ModeTest = "test"
	ModeLive = "live"
)

// App holds settings shared by every provider.
type App struct {
	// VerifyURL is the public base under which provider callbacks land, e.g.
	// https://pay.example.com/v1/payments. The provider name and "/verify"
	// are appended.
	VerifyURL string `validate:"required,url"`
	Mode      string `default:"test" validate:"oneof=test live"`
	Name      string `default:"paygate"`
}

func (a App) Live() bool { return a.Mode == ModeLive }

// CallbackURL is where provider p sends the buyer (or its webhook) after checkout.
func (a App) CallbackURL(p Provider, query url.Values) string {
	u := strings.TrimRight(a.VerifyURL, "/") + "/" + string(p) + "/verify"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

type CashOnDeliveryConfig struct{}

type FawryConfig struct {
	// URL is the Fawry base used for status queries.
	URL      string `default:"https://atfawry.fawrystaging.com/" validate:"required,url"`
	PayURL   string `default:"https://atfawry.fawrystaging.com/fawrypay-api/api/payments/init" validate:"required,url"`
	Merchant string `validate:"required"`
	Secret   string `validate:"required"`
	// ReturnURL defaults to the app callback URL.
	ReturnURL string `validate:"omitempty,url"`
	Language  string `default:"en-gb"`
}

type HyperPayConfig struct {
	URL      string `default:"https://eu-test.oppwa.com/v1/checkouts" validate:"required,url"`
	BaseURL  string `default:"https://eu-test.oppwa.com" validate:"required,url"`
	Token    string `validate:"required"`
	Currency string `default:"SAR" validate:"len=3"`
	CreditID string `validate:"required"`
	MadaID   string
	AppleID  string
}

type KashierConfig struct {
	URL        string `default:"https://checkout.kashier.io" validate:"required,url"`
	AccountKey string `validate:"required"`
	IframeKey  string `validate:"required"`
	// Token authorizes the order lookup used when a callback carries no signature.
	Token string
	// APIURL defaults to the test or live API host by mode.
	APIURL   string `validate:"omitempty,url"`
	Currency string `default:"EGP" validate:"len=3"`
}

type OpayConfig struct {
	BaseURL    string `default:"https://testapi.opaycheckout.com" validate:"required,url"`
	SecretKey  string `validate:"required"`
	PublicKey  string `validate:"required"`
	MerchantID string `validate:"required"`
	Country    string `default:"EG" validate:"len=2"`
	Currency   string `default:"EGP" validate:"len=3"`
}

type PayPalConfig struct {
	// BaseURL defaults to the sandbox or live REST host by mode.
	BaseURL  string `validate:"omitempty,url"`
	ClientID string `validate:"required"`
	Secret   string `validate:"required"`
	Currency string `default:"USD" validate:"len=3"`
}

type PaymobConfig struct {
	BaseURL             string `default:"https://accept.paymob.com" validate:"required,url"`
	APIKey              string `validate:"required"`
	IntegrationID       string `validate:"omitempty,numeric"`
	WalletIntegrationID string `validate:"omitempty,numeric"`
	IframeID            string
	HMAC                string `validate:"required"`
	Currency            string `default:"EGP" validate:"len=3"`
}

type PaytabsConfig struct {
	BaseURL   string `default:"https://secure-egypt.paytabs.com" validate:"required,url"`
	ProfileID string `validate:"required,numeric"`
	ServerKey string `validate:"required"`
	Currency  string `default:"EGP" validate:"len=3"`
	Lang      string `default:"en"`
	// HashSalt seeds the opaque return references.
	HashSalt string `default:"paygate"`
}

type TapConfig struct {
	BaseURL          string `default:"https://api.tap.company" validate:"required,url"`
	SecretKey        string `validate:"required"`
	PublicKey        string
	Currency         string `default:"USD" validate:"len=3"`
	LangCode         string `default:"en"`
	PhoneCountryCode string `default:"20"`
}

type ThawaniConfig struct {
	URL            string `default:"https://uatcheckout.thawani.om" validate:"required,url"`
	APIKey         string `validate:"required"`
	PublishableKey string `validate:"required"`
}

type KhaltiConfig struct {
	// BaseURL defaults to the dev or live host by mode.
	BaseURL    string `validate:"omitempty,url"`
	SecretKey  string `validate:"required"`
	WebsiteURL string `validate:"required,url"`
	// ReturnURL defaults to the app callback URL.
	ReturnURL string `validate:"omitempty,url"`
}

type EsewaConfig struct {
	MerchantCode string `validate:"required"`
	SecretKey    string `validate:"required"`
	// FormURL and StatusURL default to the rc or live hosts by mode.
	FormURL   string `validate:"omitempty,url"`
	StatusURL string `validate:"omitempty,url"`
}

// Config aggregates everything payments.New needs. Only the section of the
// provider being built is checked.
type Config struct {
	App      App
	Fawry    FawryConfig
	HyperPay HyperPayConfig
	Kashier  KashierConfig
	Opay     OpayConfig
	PayPal   PayPalConfig
	Paymob   PaymobConfig
	Paytabs  PaytabsConfig
	Tap      TapConfig
	Thawani  ThawaniConfig
	Khalti   KhaltiConfig
	Esewa    EsewaConfig
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// section returns a pointer to the provider's own config struct.
func (c *Config) section(p Provider) any {
	switch p {
	case Fawry:
		return &c.Fawry
	case HyperPay:
		return &c.HyperPay
	case Kashier:
		return &c.Kashier
	case Opay:
		return &c.Opay
	case PayPal:
		return &c.PayPal
	case Paymob, PaymobWallet:
		return &c.Paymob
	case Paytabs:
		return &c.Paytabs
	case Tap:
		return &c.Tap
	case Thawani:
		return &c.Thawani
	case Khalti:
		return &c.Khalti
	case Esewa:
		return &c.Esewa
	}
	return &CashOnDeliveryConfig{}
}

// prepare applies defaults and validates the App and provider sections.
func (c *Config) prepare(p Provider) error {
	if err := defaults.Set(&c.App); err != nil {
		return &ConfigError{Provider: p, Err: err}
	}
	sec := c.section(p)
	if err := defaults.Set(sec); err != nil {
		return &ConfigError{Provider: p, Err: err}
	}
	if p == CashOnDelivery {
		return nil
	}
	if err := configValidator.Struct(c.App); err != nil {
		return &ConfigError{Provider: p, Err: fmt.Errorf("app: %w", err)}
	}
	if err := configValidator.Struct(sec); err != nil {
		return &ConfigError{Provider: p, Err: err}
	}
	switch {
	case p == Paymob && c.Paymob.IntegrationID == "":
		return &ConfigError{Provider: p, Err: fmt.Errorf("IntegrationID is required")}
	case p == Paymob && c.Paymob.IframeID == "":
		return &ConfigError{Provider: p, Err: fmt.Errorf("IframeID is required")}
	case p == PaymobWallet && c.Paymob.WalletIntegrationID == "":
		return &ConfigError{Provider: p, Err: fmt.Errorf("WalletIntegrationID is required")}
	}
	return nil
}
