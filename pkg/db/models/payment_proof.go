package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// PaymentProof tracks the manual transfer-receipt workflow for an order.
// Resubmissions overwrite ImageRef; RejectCount is audit only.
type PaymentProof struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payment_proofs_order"`
	Status      enums.ProofStatus `gorm:"column:status;type:proof_status;not null;default:'awaiting_payment'"`
	ImageRef    *string           `gorm:"column:image_ref"`
	RejectCount int               `gorm:"column:reject_count;not null;default:0"`
	ReviewNote  *string           `gorm:"column:review_note"`
	SubmittedAt *time.Time        `gorm:"column:submitted_at"`
	ReviewedAt  *time.Time        `gorm:"column:reviewed_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
