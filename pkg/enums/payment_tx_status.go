package enums

import "fmt"

// PaymentTxStatus tracks a provider-side payment attempt.
type PaymentTxStatus string

const (
	PaymentTxStatusPrepared  PaymentTxStatus = "prepared"
	PaymentTxStatusConfirmed PaymentTxStatus = "confirmed"
	PaymentTxStatusCancelled PaymentTxStatus = "cancelled"
	PaymentTxStatusRejected  PaymentTxStatus = "rejected"
)

var validPaymentTxStatuses = []PaymentTxStatus{
	PaymentTxStatusPrepared,
	PaymentTxStatusConfirmed,
	PaymentTxStatusCancelled,
	PaymentTxStatusRejected,
}

func (s PaymentTxStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentTxStatus.
func (s PaymentTxStatus) IsValid() bool {
	for _, candidate := range validPaymentTxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsFinal reports whether the transaction can no longer change state.
func (s PaymentTxStatus) IsFinal() bool {
	return s != PaymentTxStatusPrepared
}

// ParsePaymentTxStatus converts raw input into a PaymentTxStatus.
func ParsePaymentTxStatus(value string) (PaymentTxStatus, error) {
	for _, candidate := range validPaymentTxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment transaction status %q", value)
}
