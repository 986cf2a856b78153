package models

import (
	"time"
)

// User model
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Username       string `gorm:"size:50;not null;unique"`
	HashedPassword []byte `gorm:"not null"`
	// TelegramChatID is the chat the reminder process delivers to. Nil until
	// the user binds their Telegram account.
	TelegramChatID *int64 `gorm:"index"`
	Wallets        []Wallet
	Goals          []Goal
	Wishes         []Wish
}
