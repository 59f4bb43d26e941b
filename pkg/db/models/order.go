package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// Order is the central aggregate. Rows are never deleted; cancellation
// is a terminal status, not a row removal.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          int64                 `gorm:"column:user_id;not null;index"`
	StoreID         uuid.UUID             `gorm:"column:store_id;type:uuid;not null;index"`
	Type            enums.OrderType       `gorm:"column:order_type;type:order_type;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'pending'"`
	CancelReason    *enums.CancelReason   `gorm:"column:cancel_reason;type:cancel_reason"`
	PaymentProvider enums.PaymentProvider `gorm:"column:payment_provider;type:payment_provider;not null;default:'cash'"`
	PickupCode      *string               `gorm:"column:pickup_code"`
	PickupTime      *time.Time            `gorm:"column:pickup_time"`
	DeliveryAddress *string               `gorm:"column:delivery_address"`
	TotalMinor      int64                 `gorm:"column:total_minor;not null"`
	StatusMessageID *int64                `gorm:"column:status_message_id"` // live-edit handle owned by the notification collaborator
	Lines           []OrderLine           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLine is owned by its Order and has no independent lifecycle.
type OrderLine struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	OfferID        uuid.UUID `gorm:"column:offer_id;type:uuid;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceMinor int64     `gorm:"column:unit_price_minor;not null"`
	TotalMinor     int64     `gorm:"column:total_minor;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
