package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod names how a customer chose to settle an order.
type PaymentMethod string

const (
	PaymentMethodPaystack       PaymentMethod = "paystack"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodPaystack,
	PaymentMethodBankTransfer,
	PaymentMethodCashOnDelivery,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// RequiresGateway reports whether the method is settled through the hosted gateway.
func (p PaymentMethod) RequiresGateway() bool {
	return p == PaymentMethodPaystack
}

// ParsePaymentMethod converts raw input into a PaymentMethod, ignoring case.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentMethods {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
