package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/enums"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
)

// Outcome is the provider-agnostic result of a complete callback.
type Outcome string

const (
	// OutcomeSuccess confirms the charge and moves the order forward.
	OutcomeSuccess Outcome = "success"
	// OutcomeCancelled means the provider voided the transaction; the
	// order is rejected as a technical issue.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed records a provider-side failure but leaves the order
	// untouched for manual resolution.
	OutcomeFailed Outcome = "failed"
)

// IsValid reports whether the value is a known Outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeCancelled, OutcomeFailed:
		return true
	default:
		return false
	}
}

// PrepareInput carries a provider prepare callback after adapter parsing.
type PrepareInput struct {
	Provider     enums.PaymentProvider
	ProviderTxID string
	OrderID      uuid.UUID
	AmountMinor  int64
	RawRequest   json.RawMessage
}

// CompleteInput carries a provider complete callback after adapter parsing.
type CompleteInput struct {
	Provider     enums.PaymentProvider
	ProviderTxID string
	Outcome      Outcome
	ErrorCode    *string
	ErrorNote    *string
	RawResponse  json.RawMessage
}

// Result reports the (possibly pre-existing) transaction state after a
// callback. Replays observe the same Result as the original delivery,
// timestamps included, so provider status queries stay consistent.
type Result struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	OrderID       uuid.UUID             `json:"order_id"`
	Status        enums.PaymentTxStatus `json:"status"`
	AmountMinor   int64                 `json:"amount_minor"`
	PreparedAt    time.Time             `json:"prepared_at"`
	ConfirmedAt   *time.Time            `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time            `json:"cancelled_at,omitempty"`
}

// SubmitProofInput attaches a transfer receipt image to an order.
type SubmitProofInput struct {
	OrderID  uuid.UUID
	ImageRef string
	UserID   int64
}

// ReviewDecision is the operator's verdict on a submitted proof.
type ReviewDecision string

const (
	ReviewConfirm ReviewDecision = "confirm"
	ReviewReject  ReviewDecision = "reject"
)

// ReviewProofInput carries the operator decision for a submitted proof.
type ReviewProofInput struct {
	OrderID  uuid.UUID
	Decision ReviewDecision
	Note     *string
	Operator string
}

// ProofView is the read projection of a proof workflow.
type ProofView struct {
	OrderID     uuid.UUID         `json:"order_id"`
	Status      enums.ProofStatus `json:"status"`
	ImageRef    *string           `json:"image_ref,omitempty"`
	RejectCount int               `json:"reject_count"`
}

// Failure reasons attached to PAYMENT_PROVIDER_ERROR details. Adapters
// map these onto their protocol's error codes.
const (
	ReasonWrongProvider   = "wrong_provider"
	ReasonOrderNotPayable = "order_not_payable"
	ReasonAmountMismatch  = "amount_mismatch"
)

// FailureReason extracts the adapter-facing reason from a payment error,
// or "" when the error carries none.
func FailureReason(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return ""
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := details["reason"].(string)
	return reason
}

// PaymentPreparedEvent is emitted when a provider transaction is opened.
type PaymentPreparedEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	OrderID       uuid.UUID             `json:"order_id"`
	Provider      enums.PaymentProvider `json:"provider"`
	ProviderTxID  string                `json:"provider_tx_id"`
	AmountMinor   int64                 `json:"amount_minor"`
}

// PaymentFinalizedEvent is emitted when a transaction reaches a final state.
type PaymentFinalizedEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	OrderID       uuid.UUID             `json:"order_id"`
	Provider      enums.PaymentProvider `json:"provider"`
	Status        enums.PaymentTxStatus `json:"status"`
	ErrorCode     *string               `json:"error_code,omitempty"`
}

// ProofEvent is emitted on proof submission and review.
type ProofEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	Status      enums.ProofStatus `json:"status"`
	RejectCount int               `json:"reject_count"`
}
