package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayment_Validate(t *testing.T) {
	card := Payment{Method: "Card", CardNumber: "4111 1111 1111 1111", Expiry: "09/28", CVV: "123"}

	tests := []struct {
		name      string
		payment   Payment
		want      PaymentMethod
		wantField string
	}{
		{"Card", card, PaymentCard, ""},
		{"CaseInsensitive", Payment{Method: "google pay"}, PaymentGooglePay, ""},
		{"USSD", Payment{Method: "USSD"}, PaymentUSSD, ""},
		{"Unsupported", Payment{Method: "Cash"}, "", "payment method"},
		{"ShortCard", Payment{Method: "Card", CardNumber: "4111", Expiry: "09/28", CVV: "123"}, "", "card number"},
		{"LettersInCard", Payment{Method: "Card", CardNumber: "4111x11111111111", Expiry: "09/28", CVV: "123"}, "", "card number"},
		{"BadMonth", Payment{Method: "Card", CardNumber: card.CardNumber, Expiry: "13/28", CVV: "123"}, "", "expiry"},
		{"BadCVV", Payment{Method: "Card", CardNumber: card.CardNumber, Expiry: "09/28", CVV: "12"}, "", "cvv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.payment.Validate()
			if tt.wantField != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.wantField, verr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
