package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet represents a named money container with a running balance.
// Balance is authoritative: it is only ever adjusted together with a
// transaction row inside one database transaction, so at any quiescent
// point it equals sum(income) - sum(expense) over the wallet's transactions.
type Wallet struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint            `gorm:"index;not null"`
	Name      string          `gorm:"size:64;not null"`
	Icon      string          `gorm:"size:16"`
	Balance   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
}
