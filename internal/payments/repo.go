package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreateTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *repository) FindTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindTransactionByProviderTxID(ctx context.Context, provider enums.PaymentProvider, providerTxID string) (*models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_tx_id = ?", provider, providerTxID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FinalizeTransaction(ctx context.Context, id uuid.UUID, to enums.PaymentTxStatus, updates map[string]any) (bool, error) {
	set := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	for column, value := range updates {
		set[column] = value
	}
	res := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, enums.PaymentTxStatusPrepared).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindProofByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentProof, error) {
	var row models.PaymentProof
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) UpdateProof(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	set := map[string]any{
		"updated_at": time.Now(),
	}
	for column, value := range updates {
		set[column] = value
	}
	return r.db.WithContext(ctx).Model(&models.PaymentProof{}).
		Where("id = ?", id).
		Updates(set).Error
}

func (r *repository) CreateFiscalReceipt(ctx context.Context, receipt *models.FiscalReceipt) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}
