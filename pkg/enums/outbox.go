package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder              OutboxAggregateType = "order"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregateFiscalReceipt      OutboxAggregateType = "fiscal_receipt"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePaymentTransaction,
	AggregateFiscalReceipt,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventOrderCancelled      OutboxEventType = "order_cancelled"
	EventOrderExpired        OutboxEventType = "order_expired"
	EventPaymentPrepared     OutboxEventType = "payment_prepared"
	EventPaymentConfirmed    OutboxEventType = "payment_confirmed"
	EventPaymentRejected     OutboxEventType = "payment_rejected"
	EventProofSubmitted      OutboxEventType = "proof_submitted"
	EventProofReviewed       OutboxEventType = "proof_reviewed"
	EventFiscalReceiptFailed OutboxEventType = "fiscal_receipt_failed"
	EventFiscalReceiptIssued OutboxEventType = "fiscal_receipt_issued"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventOrderExpired,
	EventPaymentPrepared,
	EventPaymentConfirmed,
	EventPaymentRejected,
	EventProofSubmitted,
	EventProofReviewed,
	EventFiscalReceiptFailed,
	EventFiscalReceiptIssued,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
