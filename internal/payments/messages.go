package payments

const (
	MessageFailed         = "Payment failed"
	MessageFailedWithCode = "Payment failed with code: "
	MessageUnknown        = "An error occurred while executing the operation"
)

// paymobMessages maps Paymob txn_response_code values.
var paymobMessages = map[string]string{
	"BLOCKED": "Process has been blocked from system",
	"B":       "Process has been blocked from system",
	"5":       "Balance is not enough",
	"F":       "Your card is not authorized with 3D secure",
	"7":       "Incorrect card expiration date",
	"2":       "Declined",
	"6051":    "Balance is not enough",
	"637":     "The OTP number was entered incorrectly",
	"11":      "Security checks are not passed by the system",
}

// DeclineMessage looks up a provider response code. Unmapped codes get the
// generic message.
func DeclineMessage(table map[string]string, code string) string {
	if m, ok := table[code]; ok {
		return m
	}
	return MessageUnknown
}
