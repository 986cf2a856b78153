// Package ledger owns wallets, transactions and all balance arithmetic.
// Every balance mutation happens together with its transaction row inside
// one database transaction, with the precondition folded into the UPDATE
// itself so concurrent postings against the same wallet cannot interleave a
// read-modify-write.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"finbot/models"
	"finbot/pkg/dberr"
)

var (
	// ErrInsufficientFunds: an expense would drive the wallet balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount: a posting amount was zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidKind: unknown transaction kind.
	ErrInvalidKind = errors.New("invalid transaction kind")
	// ErrWalletInUse: the wallet still has transactions and cannot be deleted.
	ErrWalletInUse = errors.New("wallet has transactions")
)

// Service provides ledger operations over a gorm handle.
type Service struct {
	db *gorm.DB
}

// NewService creates a ledger Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// WithTx returns a Service bound to an open transaction, so composite
// operations (goal deposits/withdrawals) can post through the ledger inside
// their own atomic unit.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

// PostParams holds parameters for creating a transaction posting.
type PostParams struct {
	UserID      uint
	Amount      decimal.Decimal
	Kind        string // models.KindIncome or models.KindExpense
	CategoryID  uint
	WalletID    uint
	Description string
}

// PostTransaction appends a transaction row and atomically adjusts the
// wallet balance. For expenses the balance check and the debit are one
// conditional UPDATE, so two concurrent postings can never both pass the
// check and over-draw the wallet. Returns the new transaction ID.
func (s *Service) PostTransaction(p PostParams) (uint, error) {
	if !p.Amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if !models.ValidKind(p.Kind) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, p.Kind)
	}

	var id uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// the category must exist and be either shared or owned by the caller
		var cat models.Category
		if err := tx.Where("id = ? AND (user_id IS NULL OR user_id = ?)", p.CategoryID, p.UserID).
			First(&cat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: category %d", dberr.ErrInvalidReference, p.CategoryID)
			}
			return dberr.Classify(err)
		}

		if err := adjustBalance(tx, p.UserID, p.WalletID, p.Kind, p.Amount); err != nil {
			return err
		}

		t := models.Transaction{
			UserID:      p.UserID,
			Kind:        p.Kind,
			Amount:      p.Amount,
			CategoryID:  p.CategoryID,
			WalletID:    p.WalletID,
			Description: p.Description,
		}
		if err := tx.Create(&t).Error; err != nil {
			return dberr.Classify(err)
		}
		id = t.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// adjustBalance applies a signed balance change to a wallet. The expense
// path refuses to go below zero; zero rows affected is disambiguated into
// ErrInsufficientFunds versus a dangling wallet reference.
func adjustBalance(tx *gorm.DB, userID, walletID uint, kind string, amount decimal.Decimal) error {
	q := tx.Model(&models.Wallet{}).Where("id = ? AND user_id = ?", walletID, userID)
	var res *gorm.DB
	if kind == models.KindExpense {
		res = q.Where("balance >= ?", amount).
			Update("balance", gorm.Expr("balance - ?", amount))
	} else {
		res = q.Update("balance", gorm.Expr("balance + ?", amount))
	}
	if res.Error != nil {
		return dberr.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		var cnt int64
		if err := tx.Model(&models.Wallet{}).
			Where("id = ? AND user_id = ?", walletID, userID).
			Count(&cnt).Error; err != nil {
			return dberr.Classify(err)
		}
		if cnt == 0 {
			return fmt.Errorf("%w: wallet %d", dberr.ErrInvalidReference, walletID)
		}
		return ErrInsufficientFunds
	}
	return nil
}

// GetBalance returns the stored, authoritative balance of a wallet.
func (s *Service) GetBalance(userID, walletID uint) (decimal.Decimal, error) {
	var w models.Wallet
	if err := s.db.Where("id = ? AND user_id = ?", walletID, userID).First(&w).Error; err != nil {
		return decimal.Zero, dberr.Classify(err)
	}
	return w.Balance, nil
}

// ListTransactions returns the user's transactions newest first, optionally
// restricted to one wallet.
func (s *Service) ListTransactions(userID uint, walletID *uint) ([]models.Transaction, error) {
	q := s.db.Where("user_id = ?", userID)
	if walletID != nil {
		q = q.Where("wallet_id = ?", *walletID)
	}
	var items []models.Transaction
	if err := q.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, dberr.Classify(err)
	}
	return items, nil
}

// LastTransaction returns the user's most recent posting, or nil when the
// history is empty.
func (s *Service) LastTransaction(userID uint) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Classify(err)
	}
	return &t, nil
}

// MonthSummary aggregates income and expense over the current calendar month.
type MonthSummary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal // Income - Expense for the month window
}

// monthStart is the first instant of now's month in now's location.
func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// Summary returns the month-to-date income/expense totals for a user.
// The month boundary is the first instant of now's month, server-local time.
func (s *Service) Summary(userID uint, now time.Time) (MonthSummary, error) {
	var out MonthSummary
	err := s.db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(CASE WHEN kind = ? THEN amount ELSE 0 END), 0) AS income, "+
			"COALESCE(SUM(CASE WHEN kind = ? THEN amount ELSE 0 END), 0) AS expense",
			models.KindIncome, models.KindExpense).
		Where("user_id = ? AND created_at >= ?", userID, monthStart(now)).
		Scan(&out).Error
	if err != nil {
		return MonthSummary{}, dberr.Classify(err)
	}
	out.Balance = out.Income.Sub(out.Expense)
	return out, nil
}

// CategoryTotal is one row of the top-spending-categories report.
type CategoryTotal struct {
	Name  string
	Total decimal.Decimal
}

// TopCategories returns the limit biggest expense categories for the current
// month, largest first.
func (s *Service) TopCategories(userID uint, limit int, now time.Time) ([]CategoryTotal, error) {
	var out []CategoryTotal
	err := s.db.Model(&models.Transaction{}).
		Select("categories.name AS name, COALESCE(SUM(transactions.amount), 0) AS total").
		Joins("JOIN categories ON categories.id = transactions.category_id").
		Where("transactions.user_id = ? AND transactions.kind = ? AND transactions.created_at >= ?",
			userID, models.KindExpense, monthStart(now)).
		Group("categories.name").
		Order("total DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, dberr.Classify(err)
	}
	return out, nil
}
