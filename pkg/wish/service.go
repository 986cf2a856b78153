// Package wish keeps deferred purchase intents and their reminder times.
// A wish stays "due" until the reminder process resolves it or the user
// cancels it; both end in the same terminal cancelled state, with the
// resolution reason recorded alongside.
package wish

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"finbot/models"
	"finbot/pkg/dberr"
)

var (
	// ErrInvalidOffset: the due offset could not be interpreted.
	ErrInvalidOffset = errors.New("invalid due offset")
	// ErrEmptyItem: a wish needs an item description.
	ErrEmptyItem = errors.New("item must not be empty")
)

// Offset is a user-specified delay, e.g. {3, "days"}.
type Offset struct {
	Amount int
	Unit   string
}

// From returns the reminder time obtained by applying the offset to t.
// Months follow the calendar; everything else is a fixed duration.
func (o Offset) From(t time.Time) (time.Time, error) {
	if o.Amount < 0 {
		return time.Time{}, fmt.Errorf("%w: negative amount %d", ErrInvalidOffset, o.Amount)
	}
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o.Unit)), "s") {
	case "minute":
		return t.Add(time.Duration(o.Amount) * time.Minute), nil
	case "hour":
		return t.Add(time.Duration(o.Amount) * time.Hour), nil
	case "day":
		return t.Add(time.Duration(o.Amount) * 24 * time.Hour), nil
	case "week":
		return t.Add(time.Duration(o.Amount) * 7 * 24 * time.Hour), nil
	case "month":
		return t.AddDate(0, o.Amount, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidOffset, o.Unit)
	}
}

// Service provides wish registry operations over a gorm handle.
type Service struct {
	db *gorm.DB

	// Now is the clock used for remind-at arithmetic; overridable in tests.
	Now func() time.Time
}

// NewService creates a wish Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, Now: time.Now}
}

// Create registers a wish whose reminder fires after the given offset.
// An offset of zero makes the wish due immediately.
func (s *Service) Create(userID uint, item string, price decimal.Decimal, off Offset) (uint, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return 0, ErrEmptyItem
	}
	remindAt, err := off.From(s.Now())
	if err != nil {
		return 0, err
	}
	w := models.Wish{UserID: userID, Item: item, Price: price, RemindAt: remindAt}
	if err := s.db.Create(&w).Error; err != nil {
		return 0, dberr.Classify(err)
	}
	return w.ID, nil
}

// Cancel resolves a wish on the user's behalf. Cancelling an already
// resolved wish is a no-op, not an error; the guard also keeps a
// scheduler-fired resolution from being relabelled as a user cancel.
func (s *Service) Cancel(userID, wishID uint) error {
	res := s.db.Model(&models.Wish{}).
		Where("id = ? AND user_id = ? AND cancelled = ?", wishID, userID, false).
		Updates(map[string]interface{}{
			"cancelled":  true,
			"resolution": models.WishResolutionCancelled,
		})
	if res.Error != nil {
		return dberr.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		var cnt int64
		if err := s.db.Model(&models.Wish{}).
			Where("id = ? AND user_id = ?", wishID, userID).Count(&cnt).Error; err != nil {
			return dberr.Classify(err)
		}
		if cnt == 0 {
			return fmt.Errorf("%w: wish %d", dberr.ErrNotFound, wishID)
		}
		// already resolved: idempotent
	}
	return nil
}

// Postpone pushes the reminder out to now + days. The cancelled flag is
// left alone.
func (s *Service) Postpone(userID, wishID uint, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: %d days", ErrInvalidOffset, days)
	}
	res := s.db.Model(&models.Wish{}).
		Where("id = ? AND user_id = ?", wishID, userID).
		Update("remind_at", s.Now().Add(time.Duration(days)*24*time.Hour))
	if res.Error != nil {
		return dberr.Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: wish %d", dberr.ErrNotFound, wishID)
	}
	return nil
}

// ListActive returns the user's unresolved wishes, soonest reminder first.
func (s *Service) ListActive(userID uint) ([]models.Wish, error) {
	var items []models.Wish
	err := s.db.Where("user_id = ? AND cancelled = ?", userID, false).
		Order("remind_at ASC, id ASC").Find(&items).Error
	if err != nil {
		return nil, dberr.Classify(err)
	}
	return items, nil
}

// ListDue returns every unresolved wish across all users whose reminder
// time has passed. Consumed only by the reminder scheduler.
func (s *Service) ListDue(now time.Time) ([]models.Wish, error) {
	var items []models.Wish
	err := s.db.Where("cancelled = ? AND remind_at <= ?", false, now).
		Order("remind_at ASC, id ASC").Find(&items).Error
	if err != nil {
		return nil, dberr.Classify(err)
	}
	return items, nil
}

// ResolveFired marks a delivered wish resolved, but only if it is still due
// and unresolved: the compare-and-swap loses against a concurrent cancel or
// postpone, and the caller must not then treat the wish as its own. Returns
// whether this call performed the resolution.
func (s *Service) ResolveFired(wishID uint, now time.Time) (bool, error) {
	res := s.db.Model(&models.Wish{}).
		Where("id = ? AND cancelled = ? AND remind_at <= ?", wishID, false, now).
		Updates(map[string]interface{}{
			"cancelled":  true,
			"resolution": models.WishResolutionFired,
		})
	if res.Error != nil {
		return false, dberr.Classify(res.Error)
	}
	return res.RowsAffected == 1, nil
}
