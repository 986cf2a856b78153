package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Why a wish left the active state. Cancelled remains the single source of
// truth for "resolved"; Resolution only records the reason.
const (
	WishResolutionCancelled = "cancelled"
	WishResolutionFired     = "fired"
)

// Wish is a deferred purchase intent. It is "due" once RemindAt has passed
// and it has not been cancelled; the reminder process then notifies the
// owner and resolves it. Price is informational, nothing is debited.
type Wish struct {
	ID         uint `gorm:"primaryKey"`
	CreatedAt  time.Time
	UserID     uint            `gorm:"index;not null"`
	Item       string          `gorm:"size:255;not null"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2)"`
	RemindAt   time.Time       `gorm:"index;not null"`
	Cancelled  bool            `gorm:"index;not null;default:false"`
	Resolution string          `gorm:"size:16"`
}
