package models

import (
	"time"

	"github.com/google/uuid"
)

// Offer is a sellable discounted item. StockQty is only ever changed by
// the inventory ledger's guarded updates, never by direct writes.
type Offer struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID            uuid.UUID  `gorm:"column:store_id;type:uuid;not null;index"`
	Title              string     `gorm:"column:title;not null"`
	Category           string     `gorm:"column:category;not null;default:''"`
	Unit               string     `gorm:"column:unit;not null;default:'pcs'"`
	OriginalPriceMinor int64      `gorm:"column:original_price_minor;not null"`
	DiscountPriceMinor int64      `gorm:"column:discount_price_minor;not null"`
	StockQty           int        `gorm:"column:stock_qty;not null;default:0"`
	ExpiresAt          *time.Time `gorm:"column:expires_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
