package order

import (
	"fmt"
	"strings"
)

// ConfirmationTemplate is the notification template for order confirmations.
const ConfirmationTemplate = "order_confirmation"

// confirmationVars renders the variables of an order confirmation email.
func confirmationVars(o *Order, userName string) map[string]string {
	return map[string]string{
		"order_id":       o.ID,
		"to_email":       o.Email,
		"user_name":      userName,
		"payment_method": o.PaymentMethod,
		"order_summary":  summaryText(o),
	}
}

func summaryText(o *Order) string {
	var b strings.Builder
	b.WriteString("Order Summary\n")
	for _, l := range o.Lines {
		fmt.Fprintf(&b, "%s\n  Qty: %d\n", l.Name, l.Quantity)
		if l.Size != "" {
			fmt.Fprintf(&b, "  Size: %s\n", l.Size)
		}
		fmt.Fprintf(&b, "  ₦%s\n", l.LineTotal.StringFixed(0))
	}
	fmt.Fprintf(&b, "\nDelivery Fee: ₦%s\n", o.DeliveryFee.StringFixed(0))
	fmt.Fprintf(&b, "Discount: ₦%s\n", o.Discount.StringFixed(0))
	fmt.Fprintf(&b, "Total: ₦%s\n", o.Total.StringFixed(0))
	return b.String()
}
