package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one income or expense posting. Rows are append-only: there
// is no update or delete path, history survives everything but a user purge.
type Transaction struct {
	ID          uint            `gorm:"primaryKey"`
	CreatedAt   time.Time       `gorm:"index"`
	UserID      uint            `gorm:"index;not null"`
	Kind        string          `gorm:"size:10;index;not null"` // income / expense
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CategoryID  uint            `gorm:"index;not null"`
	Category    Category        `gorm:"foreignKey:CategoryID;references:ID"`
	WalletID    uint            `gorm:"index;not null"`
	Description string          `gorm:"size:255"`
}
