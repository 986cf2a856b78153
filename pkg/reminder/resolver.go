package reminder

import (
	"errors"

	"gorm.io/gorm"

	"finbot/models"
	"finbot/pkg/dberr"
)

// UserResolver resolves notification addresses from the users table.
type UserResolver struct {
	DB *gorm.DB
}

// NotificationAddress returns the user's bound Telegram chat, or ok=false
// when the user is missing or has not bound one yet.
func (r *UserResolver) NotificationAddress(userID uint) (int64, bool, error) {
	var u models.User
	err := r.DB.Select("telegram_chat_id").First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, dberr.Classify(err)
	}
	if u.TelegramChatID == nil {
		return 0, false, nil
	}
	return *u.TelegramChatID, true, nil
}
