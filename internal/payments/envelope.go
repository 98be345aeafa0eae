package payments

const (
	MessagePaid      = "Paid Successfully"
	MessageInitiated = "Payment initiated, complete it on the provider page"
)

// Envelope is the only result a caller sees from Pay or Verify. A successful
// envelope carries at most one of RedirectURL and HTML; Message is never empty.
type Envelope struct {
	Status          bool           `json:"status"`
	Message         string         `json:"message"`
	TransactionCode string         `json:"transaction_code,omitempty"`
	RedirectURL     string         `json:"redirect_url,omitempty"`
	HTML            string         `json:"html,omitempty"`
	Errors          map[string]any `json:"errors,omitempty"`
	Request         map[string]any `json:"request,omitempty"`
}

func Success(message string) Envelope {
	if message == "" {
		message = MessagePaid
	}
	return Envelope{Status: true, Message: message}
}

func Redirect(url string) Envelope {
	return Envelope{Status: true, Message: MessageInitiated, RedirectURL: url}
}

func Inline(html string) Envelope {
	return Envelope{Status: true, Message: MessageInitiated, HTML: html}
}

func Failure(message string, errs map[string]any) Envelope {
	if message == "" {
		message = MessageUnknown
	}
	return Envelope{Status: false, Message: message, Errors: errs}
}

func (e Envelope) withCode(code string) Envelope {
	e.TransactionCode = code
	return e
}

func (e Envelope) withRequest(req map[string]any) Envelope {
	e.Request = Redact(req)
	return e
}
