package enums

import "fmt"

// CancelReason explains why an order reached a cancellation state.
type CancelReason string

const (
	CancelReasonOutOfStock      CancelReason = "out_of_stock"
	CancelReasonCantFulfill     CancelReason = "cant_fulfill"
	CancelReasonCustomerRequest CancelReason = "customer_request"
	CancelReasonTechnicalIssue  CancelReason = "technical_issue"
	CancelReasonOther           CancelReason = "other"
)

var validCancelReasons = []CancelReason{
	CancelReasonOutOfStock,
	CancelReasonCantFulfill,
	CancelReasonCustomerRequest,
	CancelReasonTechnicalIssue,
	CancelReasonOther,
}

func (r CancelReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known CancelReason.
func (r CancelReason) IsValid() bool {
	for _, candidate := range validCancelReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseCancelReason converts raw input into a CancelReason.
func ParseCancelReason(value string) (CancelReason, error) {
	for _, candidate := range validCancelReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancel reason %q", value)
}
