package enums

import "fmt"

// OrderType distinguishes pickup orders from delivery orders.
type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
)

func (t OrderType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OrderType.
func (t OrderType) IsValid() bool {
	return t == OrderTypePickup || t == OrderTypeDelivery
}

// ParseOrderType converts raw input into an OrderType.
func ParseOrderType(value string) (OrderType, error) {
	switch OrderType(value) {
	case OrderTypePickup:
		return OrderTypePickup, nil
	case OrderTypeDelivery:
		return OrderTypeDelivery, nil
	default:
		return "", fmt.Errorf("invalid order type %q", value)
	}
}
