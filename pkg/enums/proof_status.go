package enums

import "fmt"

// ProofStatus tracks the manual bank-transfer proof workflow.
type ProofStatus string

const (
	ProofStatusAwaitingPayment ProofStatus = "awaiting_payment"
	ProofStatusAwaitingProof   ProofStatus = "awaiting_proof"
	ProofStatusSubmitted       ProofStatus = "proof_submitted"
	ProofStatusConfirmed       ProofStatus = "confirmed"
	ProofStatusRejected        ProofStatus = "payment_rejected"
)

var validProofStatuses = []ProofStatus{
	ProofStatusAwaitingPayment,
	ProofStatusAwaitingProof,
	ProofStatusSubmitted,
	ProofStatusConfirmed,
	ProofStatusRejected,
}

func (s ProofStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProofStatus.
func (s ProofStatus) IsValid() bool {
	for _, candidate := range validProofStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// AllowsSubmission reports whether a proof image may be submitted in
// this state. Submitted proofs only move on through operator review,
// and a final rejection closes the workflow.
func (s ProofStatus) AllowsSubmission() bool {
	switch s {
	case ProofStatusAwaitingPayment, ProofStatusAwaitingProof:
		return true
	default:
		return false
	}
}

// ParseProofStatus converts raw input into a ProofStatus.
func ParseProofStatus(value string) (ProofStatus, error) {
	for _, candidate := range validProofStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid proof status %q", value)
}
