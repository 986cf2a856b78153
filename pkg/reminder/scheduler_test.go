package reminder

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/models"
	"finbot/pkg/testdb"
	"finbot/pkg/wish"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeRegistry struct {
	mu       sync.Mutex
	due      []models.Wish
	resolved []uint
	listErr  error
	swapLost bool
}

func (r *fakeRegistry) ListDue(time.Time) ([]models.Wish, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]models.Wish, len(r.due))
	copy(out, r.due)
	return out, nil
}

func (r *fakeRegistry) ResolveFired(wishID uint, _ time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.swapLost {
		return false, nil
	}
	r.resolved = append(r.resolved, wishID)
	for i, w := range r.due {
		if w.ID == wishID {
			r.due = append(r.due[:i], r.due[i+1:]...)
			break
		}
	}
	return true, nil
}

type fakeResolver struct {
	chats map[uint]int64
	err   error
}

func (r *fakeResolver) NotificationAddress(userID uint) (int64, bool, error) {
	if r.err != nil {
		return 0, false, r.err
	}
	chat, ok := r.chats[userID]
	return chat, ok, nil
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []string
	chats     []int64
	failNext  int
	block     bool
}

func (s *fakeSink) Deliver(ctx context.Context, chatID int64, text string) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return errors.New("telegram unreachable")
	}
	s.delivered = append(s.delivered, text)
	s.chats = append(s.chats, chatID)
	return nil
}

func newScheduler(reg Registry, res Resolver, sink Sink) *Scheduler {
	s := New(reg, res, sink)
	s.Logger = log.New(io.Discard, "", 0)
	s.DeliverTimeout = 50 * time.Millisecond
	return s
}

func TestCycle_DeliversOncePerDueState(t *testing.T) {
	reg := &fakeRegistry{due: []models.Wish{{ID: 1, UserID: 7, Item: "Headphones"}}}
	res := &fakeResolver{chats: map[uint]int64{7: 4242}}
	sink := &fakeSink{}
	s := newScheduler(reg, res, sink)

	s.runCycle(context.Background())
	require.Len(t, sink.delivered, 1)
	assert.Equal(t, int64(4242), sink.chats[0])
	assert.Contains(t, sink.delivered[0], "Headphones")
	assert.Equal(t, []uint{1}, reg.resolved)

	// resolved wish is gone: the next cycle must not redeliver
	s.runCycle(context.Background())
	assert.Len(t, sink.delivered, 1)
}

func TestCycle_SkipsUnboundAddress(t *testing.T) {
	reg := &fakeRegistry{due: []models.Wish{{ID: 1, UserID: 7, Item: "Headphones"}}}
	res := &fakeResolver{chats: map[uint]int64{}}
	sink := &fakeSink{}
	s := newScheduler(reg, res, sink)

	s.runCycle(context.Background())
	assert.Empty(t, sink.delivered)
	assert.Empty(t, reg.resolved, "unaddressable wish stays due")

	// once the user binds a chat, the still-due wish finally fires
	res.chats[7] = 4242
	s.runCycle(context.Background())
	assert.Len(t, sink.delivered, 1)
	assert.Equal(t, []uint{1}, reg.resolved)
}

func TestCycle_RetriesFailedDelivery(t *testing.T) {
	reg := &fakeRegistry{due: []models.Wish{{ID: 1, UserID: 7, Item: "Headphones"}}}
	res := &fakeResolver{chats: map[uint]int64{7: 4242}}
	sink := &fakeSink{failNext: 2}
	s := newScheduler(reg, res, sink)

	s.runCycle(context.Background())
	s.runCycle(context.Background())
	assert.Empty(t, sink.delivered)
	assert.Empty(t, reg.resolved, "failed delivery must not resolve the wish")

	s.runCycle(context.Background())
	assert.Len(t, sink.delivered, 1)
	assert.Equal(t, []uint{1}, reg.resolved)
}

func TestCycle_LostSwapIsNotAnError(t *testing.T) {
	reg := &fakeRegistry{
		due:      []models.Wish{{ID: 1, UserID: 7, Item: "Headphones"}},
		swapLost: true,
	}
	res := &fakeResolver{chats: map[uint]int64{7: 4242}}
	sink := &fakeSink{}
	s := newScheduler(reg, res, sink)

	// delivery happened but a concurrent cancel won the resolve; accepted
	// best-effort bound, nothing to retry
	s.runCycle(context.Background())
	assert.Len(t, sink.delivered, 1)
	assert.Empty(t, reg.resolved)
}

func TestCycle_DeliveryTimeoutIsBounded(t *testing.T) {
	reg := &fakeRegistry{due: []models.Wish{
		{ID: 1, UserID: 7, Item: "Headphones"},
		{ID: 2, UserID: 7, Item: "Camera"},
	}}
	res := &fakeResolver{chats: map[uint]int64{7: 4242}}
	sink := &fakeSink{block: true}
	s := newScheduler(reg, res, sink)
	s.DeliverTimeout = 20 * time.Millisecond

	start := time.Now()
	s.runCycle(context.Background())
	assert.Less(t, time.Since(start), time.Second, "one stuck recipient must not stall the cycle")
	assert.Empty(t, reg.resolved)
}

func TestCycle_ListErrorIsRetriedNextCycle(t *testing.T) {
	reg := &fakeRegistry{listErr: errors.New("storage unavailable")}
	s := newScheduler(reg, &fakeResolver{}, &fakeSink{})
	s.runCycle(context.Background()) // must not panic or resolve anything
	assert.Empty(t, reg.resolved)
}

func TestRun_StopsOnCancel(t *testing.T) {
	reg := &fakeRegistry{}
	s := newScheduler(reg, &fakeResolver{}, &fakeSink{})
	s.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

// End-to-end over the real registry and resolver: a due wish fires once its
// owner has a bound chat, and ends up resolved as fired.
func TestScheduler_WithWishRegistry(t *testing.T) {
	db := testdb.Open(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	wishes := wish.NewService(db)
	wishes.Now = func() time.Time { return now }

	user := models.User{Username: "alice", HashedPassword: []byte("x")}
	require.NoError(t, db.Create(&user).Error)
	id, err := wishes.Create(user.ID, "Headphones", dec("1.00"), wish.Offset{Amount: 0, Unit: "minutes"})
	require.NoError(t, err)

	sink := &fakeSink{}
	s := newScheduler(wishes, &UserResolver{DB: db}, sink)
	s.Now = func() time.Time { return now }

	// unbound user: wish stays due across cycles
	s.runCycle(context.Background())
	s.runCycle(context.Background())
	assert.Empty(t, sink.delivered)

	chat := int64(4242)
	require.NoError(t, db.Model(&models.User{}).
		Where("id = ?", user.ID).Update("telegram_chat_id", chat).Error)

	s.runCycle(context.Background())
	require.Len(t, sink.delivered, 1)
	assert.Equal(t, chat, sink.chats[0])

	var w models.Wish
	require.NoError(t, db.First(&w, id).Error)
	assert.True(t, w.Cancelled)
	assert.Equal(t, models.WishResolutionFired, w.Resolution)

	// resolved: later cycles stay quiet
	s.runCycle(context.Background())
	assert.Len(t, sink.delivered, 1)
}
