package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// LineInput is one cart line as submitted by a collaborator. Unit prices
// are never taken from the caller; the current offer price is used.
type LineInput struct {
	OfferID uuid.UUID
	Qty     int
}

// CreateOrderInput carries a fully materialized cart into order creation.
type CreateOrderInput struct {
	UserID          int64
	StoreID         uuid.UUID
	Lines           []LineInput
	Type            enums.OrderType
	PaymentProvider enums.PaymentProvider
	DeliveryAddress *string
	PickupTime      *time.Time
}

// CancelOrderInput identifies the order and the terminal reason.
type CancelOrderInput struct {
	OrderID uuid.UUID
	Reason  enums.CancelReason
	Actor   ActorInput
}

// AdvanceOrderInput moves an order forward through the lifecycle.
type AdvanceOrderInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Actor   ActorInput
}

// ActorInput identifies who triggered a mutation, for event attribution.
type ActorInput struct {
	UserID int64
	Role   string
}

// OrderLineView is the read projection of one line.
type OrderLineView struct {
	OfferID        uuid.UUID `json:"offer_id"`
	Qty            int       `json:"qty"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	TotalMinor     int64     `json:"total_minor"`
}

// OrderView is the read-only projection returned to collaborators.
type OrderView struct {
	ID              uuid.UUID             `json:"id"`
	UserID          int64                 `json:"user_id"`
	StoreID         uuid.UUID             `json:"store_id"`
	Type            enums.OrderType       `json:"order_type"`
	Status          enums.OrderStatus     `json:"status"`
	CancelReason    *enums.CancelReason   `json:"cancel_reason,omitempty"`
	PaymentProvider enums.PaymentProvider `json:"payment_provider"`
	PickupCode      *string               `json:"pickup_code,omitempty"`
	PickupTime      *time.Time            `json:"pickup_time,omitempty"`
	DeliveryAddress *string               `json:"delivery_address,omitempty"`
	TotalMinor      int64                 `json:"total_minor"`
	Lines           []OrderLineView       `json:"lines"`
	CreatedAt       time.Time             `json:"created_at"`
}

// OrderCreatedEvent is emitted when a new order is persisted.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID             `json:"order_id"`
	UserID          int64                 `json:"user_id"`
	StoreID         uuid.UUID             `json:"store_id"`
	Type            enums.OrderType       `json:"order_type"`
	PaymentProvider enums.PaymentProvider `json:"payment_provider"`
	TotalMinor      int64                 `json:"total_minor"`
	LineCount       int                   `json:"line_count"`
}

// OrderStatusChangedEvent is emitted on every lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID      uuid.UUID           `json:"order_id"`
	UserID       int64               `json:"user_id"`
	StoreID      uuid.UUID           `json:"store_id"`
	From         enums.OrderStatus   `json:"from"`
	To           enums.OrderStatus   `json:"to"`
	CancelReason *enums.CancelReason `json:"cancel_reason,omitempty"`
}
