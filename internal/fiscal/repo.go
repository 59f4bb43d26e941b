package fiscal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// Repository is the persistence surface of fiscalization attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindReceipt(ctx context.Context, id uuid.UUID) (*models.FiscalReceipt, error)
	// FindRetryable lists receipts that need another dispatch, oldest
	// first: failed ones still under the attempt cap, plus pending ones
	// created before the cutoff whose dispatching process never reported
	// an outcome.
	FindRetryable(ctx context.Context, maxAttempts, limit int, pendingBefore time.Time) ([]models.FiscalReceipt, error)
	UpdateReceipt(ctx context.Context, id uuid.UUID, updates map[string]any) error
	// TransactionAmount reads the settled amount behind a receipt.
	TransactionAmount(ctx context.Context, paymentTransactionID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a fiscal repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindReceipt(ctx context.Context, id uuid.UUID) (*models.FiscalReceipt, error) {
	var row models.FiscalReceipt
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindRetryable(ctx context.Context, maxAttempts, limit int, pendingBefore time.Time) ([]models.FiscalReceipt, error) {
	var rows []models.FiscalReceipt
	err := r.db.WithContext(ctx).
		Where("(status = ? OR (status = ? AND created_at < ?)) AND attempts < ?",
			enums.FiscalStatusFailed, enums.FiscalStatusPending, pendingBefore, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateReceipt(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	set := map[string]any{
		"updated_at": time.Now(),
	}
	for column, value := range updates {
		set[column] = value
	}
	return r.db.WithContext(ctx).Model(&models.FiscalReceipt{}).
		Where("id = ?", id).
		Updates(set).Error
}

func (r *repository) TransactionAmount(ctx context.Context, paymentTransactionID uuid.UUID) (int64, error) {
	var amount int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Select("amount_minor").
		Where("id = ?", paymentTransactionID).
		Scan(&amount).Error
	if err != nil {
		return 0, err
	}
	return amount, nil
}
