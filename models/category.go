package models

import "time"

// Transaction kinds. Categories carry the same kind so a category can only
// be used for postings of its own kind.
const (
	KindIncome  = "income"
	KindExpense = "expense"
)

// ValidKind reports whether s is a known transaction kind.
func ValidKind(s string) bool {
	return s == KindIncome || s == KindExpense
}

// SavingsCategory is the shared category goal transfers are posted under.
const SavingsCategory = "Savings"

// Category represents an income/expense category. A nil UserID marks a
// shared system category visible to every user.
type Category struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    *uint  `gorm:"index"`
	Name      string `gorm:"size:64;not null"`
	Icon      string `gorm:"size:16"`
	Kind      string `gorm:"size:10;index;not null"` // income / expense
}
