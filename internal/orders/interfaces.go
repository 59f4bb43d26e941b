package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	"github.com/sarqyt/sarqyt-backend/pkg/enums"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreatePaymentProof(ctx context.Context, proof *models.PaymentProof) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOffers(ctx context.Context, offerIDs []uuid.UUID) ([]models.Offer, error)
	// UpdateOrderStatus flips status only when the row still holds
	// fromStatus; the boolean reports whether the guarded write won.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, fromStatus, toStatus enums.OrderStatus, updates map[string]any) (bool, error)
	FindStalePendingOrders(ctx context.Context, cutoff time.Time, providers []enums.PaymentProvider, limit int) ([]models.Order, error)
}
