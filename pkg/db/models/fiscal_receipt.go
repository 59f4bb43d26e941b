package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// FiscalReceipt links an order and payment transaction to a fiscal
// receipt attempt. It retries on its own schedule; a failure here never
// rolls back the confirmed payment.
type FiscalReceipt struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	PaymentTransactionID uuid.UUID          `gorm:"column:payment_transaction_id;type:uuid;not null"`
	Status               enums.FiscalStatus `gorm:"column:status;type:fiscal_status;not null;default:'pending'"`
	QRCodeURL            *string            `gorm:"column:qr_code_url"`
	ErrorNote            *string            `gorm:"column:error_note"`
	Attempts             int                `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt        *time.Time         `gorm:"column:last_attempt_at"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
