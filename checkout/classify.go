package checkout

import (
	"strings"
)

type messageRule struct {
	needles []string
	message string
}

const (
	genericBootstrapMessage = "The payment form could not be loaded. Please refresh the page and try again."
	genericPaymentMessage   = "Your payment could not be processed. Please try again."
	tokenizeFailedMessage   = "We could not verify your card. Please check your card details and try again."
	secureContextMessage    = "Payments require a secure (HTTPS) connection. Please reload this page over HTTPS."
	missingCredentials      = "Payments are not configured for this store. Please contact support."
	sdkUnavailableMessage   = "The payment service is unavailable right now. Please refresh the page or try again later."
	attachFailedMessage     = "The card form could not be displayed. Please refresh the page and try again."
	declinedMessage         = "Your card was declined. Please use a different card or contact your bank."
)

var bootstrapRules = []messageRule{
	{[]string{"application id", "applicationid", "application_id", "invalid app"},
		"The payment form is misconfigured (invalid application ID). Please contact support."},
	{[]string{"location id", "locationid", "location_id", "invalid location"},
		"The payment form is misconfigured (invalid location ID). Please contact support."},
	{[]string{"cors", "domain", "not authorized", "origin"},
		"This website is not authorized to take payments. Please contact support."},
}

// Ordered from most to least specific: "declined: insufficient funds"
// must resolve to the funds message.
var paymentRules = []messageRule{
	{[]string{"insufficient funds", "insufficient_funds"},
		"Your card has insufficient funds. Please use a different card."},
	{[]string{"expired", "expiration"},
		"Your card has expired or the expiration date is incorrect. Please check and try again."},
	{[]string{"cvv", "cvc", "security code"},
		"The security code (CVV) is incorrect. Please check and try again."},
	{[]string{"location"},
		"The store's payment location is misconfigured. Please contact support."},
	{[]string{"declined", "decline"}, declinedMessage},
	{[]string{"card"},
		"There was a problem with your card. Please check your card details and try again."},
	{[]string{"amount"},
		"The payment amount is invalid. Please refresh your cart and try again."},
	{[]string{"network", "timeout", "connection", "fetch"},
		"A network error occurred. Please check your connection and try again."},
}

// Provider error codes that identify a cause without looking at prose.
var paymentCodeMessages = map[string]string{
	"CARD_DECLINED":                       declinedMessage,
	"GENERIC_DECLINE":                     declinedMessage,
	"CARD_DECLINED_VERIFICATION_REQUIRED": declinedMessage,
	"INSUFFICIENT_FUNDS":                  paymentRules[0].message,
	"CARD_EXPIRED":                        paymentRules[1].message,
	"INVALID_EXPIRATION":                  paymentRules[1].message,
	"EXPIRATION_FAILURE":                  paymentRules[1].message,
	"CVV_FAILURE":                         paymentRules[2].message,
	"INVALID_LOCATION":                    paymentRules[3].message,
}

func match(raw string, rules []messageRule) (string, bool) {
	lower := strings.ToLower(raw)
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(lower, n) {
				return r.message, true
			}
		}
	}
	return "", false
}

// ClassifyBootstrapError maps a payments constructor failure to a message
// for the shopper. Unrecognised messages are passed through.
func ClassifyBootstrapError(err error) string {
	if err == nil {
		return genericBootstrapMessage
	}
	raw := strings.TrimSpace(err.Error())
	if msg, ok := match(raw, bootstrapRules); ok {
		return msg
	}
	if raw != "" {
		return raw
	}
	return genericBootstrapMessage
}

// ClassifyPaymentError maps a failed submission to a message for the
// shopper. A known provider code wins over the wording of raw.
func ClassifyPaymentError(code, raw string) string {
	if msg, ok := paymentCodeMessages[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return msg
	}
	raw = strings.TrimSpace(raw)
	if msg, ok := match(raw, paymentRules); ok {
		return msg
	}
	if raw != "" {
		return raw
	}
	return genericPaymentMessage
}
