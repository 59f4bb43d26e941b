package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// Repository is the persistence surface of the payment ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)

	CreateTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	FindTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindTransactionByProviderTxID(ctx context.Context, provider enums.PaymentProvider, providerTxID string) (*models.PaymentTransaction, error)
	// FinalizeTransaction moves a prepared transaction to a final status.
	// It reports false when the row was not in prepared state, which is
	// how concurrent deliveries of the same callback lose the race.
	FinalizeTransaction(ctx context.Context, id uuid.UUID, to enums.PaymentTxStatus, updates map[string]any) (bool, error)

	FindProofByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error)
	UpdateProof(ctx context.Context, id uuid.UUID, updates map[string]any) error

	CreateFiscalReceipt(ctx context.Context, receipt *models.FiscalReceipt) error
}
