// Package reminder runs the background loop that turns due wishes into
// notifications. Delivery is at-least-once: a wish is only resolved after
// its notification went out, so a failed delivery (or a crash in between)
// is retried on the next cycle, and a success racing a user cancel may
// produce one extra notification. It is never resolved without a delivery.
package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"finbot/models"
)

// Default timings: a 30 second poll and a short per-message delivery
// timeout so one unreachable recipient cannot stall the whole cycle.
const (
	DefaultInterval       = 30 * time.Second
	DefaultDeliverTimeout = 5 * time.Second
)

// Registry is the wish-store slice the scheduler consumes.
type Registry interface {
	ListDue(now time.Time) ([]models.Wish, error)
	ResolveFired(wishID uint, now time.Time) (bool, error)
}

// Resolver looks up where a user's notifications go. ok is false while the
// user has not bound a chat yet.
type Resolver interface {
	NotificationAddress(userID uint) (chatID int64, ok bool, err error)
}

// Sink delivers one reminder text. Implementations must report failure so
// the scheduler can retry; the passed context carries the delivery timeout.
type Sink interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

// Scheduler polls the registry and dispatches reminders.
type Scheduler struct {
	registry Registry
	resolver Resolver
	sink     Sink

	Interval       time.Duration
	DeliverTimeout time.Duration
	Now            func() time.Time
	Logger         *log.Logger
}

// New creates a Scheduler with default timings.
func New(reg Registry, res Resolver, sink Sink) *Scheduler {
	return &Scheduler{
		registry:       reg,
		resolver:       res,
		sink:           sink,
		Interval:       DefaultInterval,
		DeliverTimeout: DefaultDeliverTimeout,
		Now:            time.Now,
		Logger:         log.Default(),
	}
}

// Run polls until ctx is cancelled. One cycle runs immediately so a restart
// does not add a full interval of reminder latency.
func (s *Scheduler) Run(ctx context.Context) {
	s.Logger.Printf("reminder: polling every %s", s.Interval)
	s.runCycle(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Printf("reminder: stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle fetches due wishes and dispatches each one. Per-wish failures
// are logged and skipped, never fatal: an undeliverable or unaddressable
// wish simply stays due and is retried on the next cycle.
func (s *Scheduler) runCycle(ctx context.Context) {
	now := s.Now()
	due, err := s.registry.ListDue(now)
	if err != nil {
		s.Logger.Printf("reminder: listing due wishes: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.Logger.Printf("reminder: %d due wish(es)", len(due))

	for _, w := range due {
		if ctx.Err() != nil {
			return
		}
		s.dispatch(ctx, w, now)
	}
}

// dispatch delivers one wish's reminder and, on success, resolves it.
func (s *Scheduler) dispatch(ctx context.Context, w models.Wish, now time.Time) {
	chatID, ok, err := s.resolver.NotificationAddress(w.UserID)
	if err != nil {
		s.Logger.Printf("reminder: wish %d: resolving address for user %d: %v", w.ID, w.UserID, err)
		return
	}
	if !ok {
		// left due on purpose: it fires once the user binds a chat
		s.Logger.Printf("reminder: wish %d: user %d has no notification address, skipping", w.ID, w.UserID)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, s.DeliverTimeout)
	err = s.sink.Deliver(dctx, chatID, Message(w))
	cancel()
	if err != nil {
		s.Logger.Printf("reminder: wish %d: delivery failed, will retry: %v", w.ID, err)
		return
	}

	fired, err := s.registry.ResolveFired(w.ID, now)
	if err != nil {
		// delivered but not resolved: the wish stays due and the next
		// cycle may notify again (at-least-once)
		s.Logger.Printf("reminder: wish %d: delivered but resolve failed: %v", w.ID, err)
		return
	}
	if !fired {
		s.Logger.Printf("reminder: wish %d: resolved elsewhere before the swap (cancelled or postponed)", w.ID)
	}
}

// Message renders the reminder text for a wish.
func Message(w models.Wish) string {
	return fmt.Sprintf("🔔 Reminder!\nYou wanted to buy: %s", w.Item)
}
