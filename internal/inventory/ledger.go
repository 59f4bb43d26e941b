package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sarqyt/sarqyt-backend/pkg/db/models"
	pkgerrors "github.com/sarqyt/sarqyt-backend/pkg/errors"
)

// The ledger never loads a row, mutates it in Go and writes it back.
// Every decrement/increment is a single guarded UPDATE so concurrent
// checkouts serialize on the row and the guard decides who wins.

// ReserveStock atomically decrements an offer's stock inside the caller's
// transaction. Fails with CodeOutOfStock when fewer than qty units remain.
func ReserveStock(ctx context.Context, tx *gorm.DB, offerID uuid.UUID, qty int) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}
	if offerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE offers
		SET stock_qty = stock_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock_qty >= ?
	`, qty, offerID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		exists, err := offerExists(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeNotFound, "offer not found")
		}
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "insufficient stock")
	}
	return nil
}

// ReleaseStock returns previously reserved units. It always succeeds for
// an existing offer; stock ceilings are store-defined elsewhere.
func ReleaseStock(ctx context.Context, tx *gorm.DB, offerID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE offers
		SET stock_qty = stock_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, offerID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	return nil
}

// ReserveSlot claims one unit of pickup-slot capacity. Fails with
// CodeSlotFull when the slot is at capacity.
func ReserveSlot(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, slotAt time.Time) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for slot reservation")
	}
	if storeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if slotAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "slot timestamp is required")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE pickup_slots
		SET reserved = reserved + 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE store_id = ? AND slot_at = ? AND reserved < capacity
	`, storeID, slotAt)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve slot")
	}
	if res.RowsAffected == 0 {
		exists, err := slotExists(ctx, tx, storeID, slotAt)
		if err != nil {
			return err
		}
		if !exists {
			return pkgerrors.New(pkgerrors.CodeNotFound, "pickup slot not found")
		}
		return pkgerrors.New(pkgerrors.CodeSlotFull, "pickup slot is full")
	}
	return nil
}

// ReleaseSlot returns one unit of slot capacity, floored at zero.
func ReleaseSlot(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, slotAt time.Time) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for slot release")
	}
	if storeID == uuid.Nil || slotAt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id and slot timestamp are required")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE pickup_slots
		SET reserved = reserved - 1,
			updated_at = CURRENT_TIMESTAMP
		WHERE store_id = ? AND slot_at = ? AND reserved > 0
	`, storeID, slotAt)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release slot")
	}
	return nil
}

func offerExists(ctx context.Context, tx *gorm.DB, offerID uuid.UUID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&models.Offer{}).
		Where("id = ?", offerID).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup offer")
	}
	return count > 0, nil
}

func slotExists(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, slotAt time.Time) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&models.PickupSlot{}).
		Where("store_id = ? AND slot_at = ?", storeID, slotAt).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup pickup slot")
	}
	return count > 0, nil
}
