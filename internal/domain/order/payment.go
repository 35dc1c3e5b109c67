package order

import (
	"regexp"
	"strings"
)

// PaymentMethod is a checkout payment option.
type PaymentMethod string

// Supported payment methods.
const (
	PaymentCard      PaymentMethod = "Card"
	PaymentOpay      PaymentMethod = "Opay"
	PaymentGooglePay PaymentMethod = "Google Pay"
	PaymentUSSD      PaymentMethod = "USSD"
)

var (
	paymentMethods = []PaymentMethod{PaymentCard, PaymentOpay, PaymentGooglePay, PaymentUSSD}
	expiryPattern  = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
)

// Payment is the payment input collected at checkout. Card details are only
// validated, never stored.
type Payment struct {
	Method     string
	CardNumber string
	Expiry     string
	CVV        string
}

// Validate checks the payment input and returns the canonical method.
func (p Payment) Validate() (PaymentMethod, error) {
	var method PaymentMethod
	for _, m := range paymentMethods {
		if strings.EqualFold(strings.TrimSpace(p.Method), string(m)) {
			method = m
			break
		}
	}
	if method == "" {
		return "", &ValidationError{Field: "payment method", Reason: "unsupported payment method"}
	}
	if method != PaymentCard {
		return method, nil
	}

	number := strings.ReplaceAll(p.CardNumber, " ", "")
	if len(number) != 16 || !allDigits(number) {
		return "", &ValidationError{Field: "card number", Reason: "must be 16 digits"}
	}
	if !expiryPattern.MatchString(p.Expiry) {
		return "", &ValidationError{Field: "expiry", Reason: "must be MM/YY"}
	}
	if len(p.CVV) != 3 || !allDigits(p.CVV) {
		return "", &ValidationError{Field: "cvv", Reason: "must be 3 digits"}
	}
	return method, nil
}

func allDigits(s string) bool {
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
