package models

import (
	"time"

	"github.com/google/uuid"
)

// PickupSlot is a capacity bucket for a store at a timestamp.
type PickupSlot struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID   uuid.UUID `gorm:"column:store_id;type:uuid;not null;uniqueIndex:ux_pickup_slots_store_slot"`
	SlotAt    time.Time `gorm:"column:slot_at;not null;uniqueIndex:ux_pickup_slots_store_slot"`
	Capacity  int       `gorm:"column:capacity;not null"`
	Reserved  int       `gorm:"column:reserved;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
