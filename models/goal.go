package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goal is a savings target. Saved stays within [0, Target]; both bounds are
// enforced by the goal service, never by clamping in raw SQL alone.
// The "current" goal for a user is the most recently created one.
type Goal struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint            `gorm:"index;not null"`
	Name      string          `gorm:"size:64;not null"`
	Target    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Saved     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
}
