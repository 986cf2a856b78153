// Package goal tracks savings goals and the transfers between goals and
// wallets. Saved never leaves [0, Target]; composite transfers mutate the
// goal and the wallet in one database transaction, posting a Savings
// transaction through the ledger so the wallet balance invariant keeps
// holding.
package goal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"finbot/models"
	"finbot/pkg/dberr"
	"finbot/pkg/ledger"
)

var (
	// ErrGoalOverfunded: a deposit exceeds the goal's remaining target - saved.
	ErrGoalOverfunded = errors.New("deposit exceeds remaining goal amount")
	// ErrInsufficientGoalFunds: a withdrawal exceeds the goal's saved amount.
	ErrInsufficientGoalFunds = errors.New("insufficient goal funds")
	// ErrInvalidTarget: a goal target was zero or negative.
	ErrInvalidTarget = errors.New("target must be positive")
	// ErrInvalidAmount: a transfer amount was zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Service provides goal operations over a gorm handle.
type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
}

// NewService creates a goal Service. The ledger is used for the wallet leg
// of deposits and withdrawals.
func NewService(db *gorm.DB, led *ledger.Service) *Service {
	return &Service{db: db, ledger: led}
}

// Create adds a new goal, which becomes the user's current goal.
func (s *Service) Create(userID uint, name string, target decimal.Decimal) (uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", dberr.ErrInvalidReference)
	}
	if !target.IsPositive() {
		return 0, ErrInvalidTarget
	}
	g := models.Goal{UserID: userID, Name: name, Target: target, Saved: decimal.Zero}
	if err := s.db.Create(&g).Error; err != nil {
		return 0, dberr.Classify(err)
	}
	return g.ID, nil
}

// Current returns the user's most recently created goal, or nil when the
// user has none. Single-active-goal selection is deliberate: contributions
// always land on the newest goal.
func (s *Service) Current(userID uint) (*models.Goal, error) {
	var g models.Goal
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Classify(err)
	}
	return &g, nil
}

// List returns all of the user's goals, newest first.
func (s *Service) List(userID uint) ([]models.Goal, error) {
	var items []models.Goal
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, dberr.Classify(err)
	}
	return items, nil
}

// Contribute adds amount to the current goal's saved, clamped to the target.
// A goal already at target, or a user without any goal, makes this a silent
// no-op. No wallet is debited here; callers wanting the explicit, rejecting
// variant use Deposit instead.
func (s *Service) Contribute(userID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	g, err := s.Current(userID)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	err = s.db.Model(&models.Goal{}).
		Where("id = ?", g.ID).
		Update("saved", gorm.Expr(
			"CASE WHEN saved + ? > target THEN target ELSE saved + ? END",
			amount, amount)).Error
	return dberr.Classify(err)
}

// Deposit moves amount from a wallet into a goal: the wallet is debited
// through the ledger (a Savings expense posting) and saved grows, both or
// neither. Deposits past the remaining target are rejected with
// ErrGoalOverfunded, insufficient wallet balance propagates from the ledger.
func (s *Service) Deposit(userID, goalID, walletID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Goal{}).
			Where("id = ? AND user_id = ?", goalID, userID).
			Where("saved + ? <= target", amount).
			Update("saved", gorm.Expr("saved + ?", amount))
		if res.Error != nil {
			return dberr.Classify(res.Error)
		}
		if res.RowsAffected == 0 {
			return s.refusalReason(tx, userID, goalID, ErrGoalOverfunded)
		}

		catID, err := savingsCategory(tx, models.KindExpense)
		if err != nil {
			return err
		}
		_, err = s.ledger.WithTx(tx).PostTransaction(ledger.PostParams{
			UserID:      userID,
			Amount:      amount,
			Kind:        models.KindExpense,
			CategoryID:  catID,
			WalletID:    walletID,
			Description: "deposit to goal",
		})
		return err
	})
}

// Withdraw moves amount back from a goal into a wallet: saved shrinks and
// the wallet is credited through the ledger (a Savings income posting),
// both or neither. Withdrawing more than saved fails with
// ErrInsufficientGoalFunds.
func (s *Service) Withdraw(userID, goalID, walletID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Goal{}).
			Where("id = ? AND user_id = ?", goalID, userID).
			Where("saved >= ?", amount).
			Update("saved", gorm.Expr("saved - ?", amount))
		if res.Error != nil {
			return dberr.Classify(res.Error)
		}
		if res.RowsAffected == 0 {
			return s.refusalReason(tx, userID, goalID, ErrInsufficientGoalFunds)
		}

		catID, err := savingsCategory(tx, models.KindIncome)
		if err != nil {
			return err
		}
		_, err = s.ledger.WithTx(tx).PostTransaction(ledger.PostParams{
			UserID:      userID,
			Amount:      amount,
			Kind:        models.KindIncome,
			CategoryID:  catID,
			WalletID:    walletID,
			Description: "withdrawal from goal",
		})
		return err
	})
}

// refusalReason tells a bounds refusal apart from a missing goal after a
// guarded UPDATE matched nothing.
func (s *Service) refusalReason(tx *gorm.DB, userID, goalID uint, bounds error) error {
	var cnt int64
	if err := tx.Model(&models.Goal{}).
		Where("id = ? AND user_id = ?", goalID, userID).Count(&cnt).Error; err != nil {
		return dberr.Classify(err)
	}
	if cnt == 0 {
		return fmt.Errorf("%w: goal %d", dberr.ErrNotFound, goalID)
	}
	return bounds
}

// savingsCategory finds (or lazily seeds) the shared Savings category of the
// given kind, used for the wallet leg of goal transfers.
func savingsCategory(tx *gorm.DB, kind string) (uint, error) {
	var cat models.Category
	err := tx.Where("user_id IS NULL AND name = ? AND kind = ?", models.SavingsCategory, kind).
		First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cat = models.Category{Name: models.SavingsCategory, Kind: kind, Icon: "💰"}
		err = tx.Create(&cat).Error
	}
	if err != nil {
		return 0, dberr.Classify(err)
	}
	return cat.ID, nil
}

// Update renames and/or retargets a goal. Retargeting below the saved
// amount clamps saved down to the new target, so the saved <= target bound
// survives without rejecting shrinking targets.
func (s *Service) Update(userID, goalID uint, name string, target decimal.Decimal) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", dberr.ErrInvalidReference)
	}
	if !target.IsPositive() {
		return ErrInvalidTarget
	}
	res := s.db.Model(&models.Goal{}).
		Where("id = ? AND user_id = ?", goalID, userID).
		Updates(map[string]interface{}{
			"name":   name,
			"target": target,
			"saved":  gorm.Expr("CASE WHEN saved > ? THEN ? ELSE saved END", target, target),
		})
	if res.Error != nil {
		return dberr.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: goal %d", dberr.ErrNotFound, goalID)
	}
	return nil
}

// Delete removes a goal. Saved funds are simply forgotten: they were never
// debited from any wallet unless deposited, and a deposited goal should be
// withdrawn first.
func (s *Service) Delete(userID, goalID uint) error {
	res := s.db.Where("id = ? AND user_id = ?", goalID, userID).Delete(&models.Goal{})
	if res.Error != nil {
		return dberr.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: goal %d", dberr.ErrNotFound, goalID)
	}
	return nil
}

// Percent is the goal's completion percentage, rounded and clamped to
// [0, 100]. A non-positive target reads as 0% rather than dividing by zero.
func Percent(g *models.Goal) int {
	if g == nil || !g.Target.IsPositive() {
		return 0
	}
	p := g.Saved.Div(g.Target).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}
