package enums

import "fmt"

// FiscalStatus tracks a fiscal receipt attempt, independent of the
// payment and order lifecycles.
type FiscalStatus string

const (
	FiscalStatusPending FiscalStatus = "pending"
	FiscalStatusSuccess FiscalStatus = "success"
	FiscalStatusFailed  FiscalStatus = "failed"
)

func (s FiscalStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known FiscalStatus.
func (s FiscalStatus) IsValid() bool {
	switch s {
	case FiscalStatusPending, FiscalStatusSuccess, FiscalStatusFailed:
		return true
	default:
		return false
	}
}

// ParseFiscalStatus converts raw input into a FiscalStatus.
func ParseFiscalStatus(value string) (FiscalStatus, error) {
	switch FiscalStatus(value) {
	case FiscalStatusPending:
		return FiscalStatusPending, nil
	case FiscalStatusSuccess:
		return FiscalStatusSuccess, nil
	case FiscalStatusFailed:
		return FiscalStatusFailed, nil
	default:
		return "", fmt.Errorf("invalid fiscal status %q", value)
	}
}
