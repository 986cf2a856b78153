package ledger

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"finbot/models"
	"finbot/pkg/dberr"
)

// CreateWallet creates an empty wallet for the user.
func (s *Service) CreateWallet(userID uint, name, icon string) (uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty wallet name", dberr.ErrInvalidReference)
	}
	w := models.Wallet{UserID: userID, Name: name, Icon: icon}
	if err := s.db.Create(&w).Error; err != nil {
		return 0, dberr.Classify(err)
	}
	return w.ID, nil
}

// ListWallets returns the user's wallets, oldest first.
func (s *Service) ListWallets(userID uint) ([]models.Wallet, error) {
	var items []models.Wallet
	if err := s.db.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, dberr.Classify(err)
	}
	return items, nil
}

// DeleteWallet removes a wallet. Deletion is blocked with ErrWalletInUse
// while any transaction still references the wallet; history is append-only
// and is never detached or dropped.
func (s *Service) DeleteWallet(userID, walletID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var w models.Wallet
		if err := tx.Where("id = ? AND user_id = ?", walletID, userID).First(&w).Error; err != nil {
			return dberr.Classify(err)
		}
		var cnt int64
		if err := tx.Model(&models.Transaction{}).
			Where("wallet_id = ?", walletID).Count(&cnt).Error; err != nil {
			return dberr.Classify(err)
		}
		if cnt > 0 {
			return ErrWalletInUse
		}
		if err := tx.Delete(&w).Error; err != nil {
			return dberr.Classify(err)
		}
		return nil
	})
}
