package enums

import "fmt"

// PaymentProvider identifies how an order is paid.
type PaymentProvider string

const (
	PaymentProviderClick        PaymentProvider = "click"
	PaymentProviderPayme        PaymentProvider = "payme"
	PaymentProviderCash         PaymentProvider = "cash"
	PaymentProviderCardTransfer PaymentProvider = "card_transfer"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderClick,
	PaymentProviderPayme,
	PaymentProviderCash,
	PaymentProviderCardTransfer,
}

func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProvider.
func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsOnline reports whether the provider reconciles through webhook callbacks.
func (p PaymentProvider) IsOnline() bool {
	return p == PaymentProviderClick || p == PaymentProviderPayme
}

// RequiresProof reports whether the provider is settled by a manually
// reviewed transfer receipt.
func (p PaymentProvider) RequiresProof() bool {
	return p == PaymentProviderCardTransfer
}

// ParsePaymentProvider converts raw input into a PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
