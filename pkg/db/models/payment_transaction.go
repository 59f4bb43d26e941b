package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// PaymentTransaction records one provider-side payment attempt.
// (provider, provider_tx_id) is the idempotency key that makes replayed
// webhooks harmless.
type PaymentTransaction struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Provider     enums.PaymentProvider `gorm:"column:provider;type:payment_provider;not null;uniqueIndex:ux_payment_tx_provider_tx"`
	ProviderTxID string                `gorm:"column:provider_tx_id;not null;uniqueIndex:ux_payment_tx_provider_tx"`
	AmountMinor  int64                 `gorm:"column:amount_minor;not null"`
	Status       enums.PaymentTxStatus `gorm:"column:status;type:payment_tx_status;not null;default:'prepared'"`
	ErrorCode    *string               `gorm:"column:error_code"`
	ErrorNote    *string               `gorm:"column:error_note"`
	RawRequest   json.RawMessage       `gorm:"column:raw_request;type:jsonb"`
	RawResponse  json.RawMessage       `gorm:"column:raw_response;type:jsonb"`
	PreparedAt   time.Time             `gorm:"column:prepared_at;autoCreateTime"`
	ConfirmedAt  *time.Time            `gorm:"column:confirmed_at"`
	CancelledAt  *time.Time            `gorm:"column:cancelled_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
