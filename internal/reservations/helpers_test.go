package reservations

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"slotbook/pkg/logger"
)

type recordedEvent struct {
	Event   string
	UserID  uuid.UUID
	SlotID  uuid.UUID
	Payload map[string]interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingNotifier) Notify(_ context.Context, event string, userID, slotID uuid.UUID, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Event: event, UserID: userID, SlotID: slotID, Payload: payload})
}

func (r *recordingNotifier) byEvent(name string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

// testClock advances a millisecond on every read so arrivals are strictly ordered.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine   *Engine
	store    *MemoryStore
	notifier *recordingNotifier
	clock    *testClock
}

func testConfig() Config {
	return Config{
		MaxAttempts:     1000,
		BaseBackoff:     50 * time.Microsecond,
		MaxBackoff:      2 * time.Millisecond,
		TxTimeout:       30 * time.Second,
		WaitlistEnabled: true,
	}
}

func quietLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "error")
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    NewMemoryStore(),
		notifier: &recordingNotifier{},
		clock:    newTestClock(),
	}
	base := []Option{WithNotifier(env.notifier), WithClock(env.clock.Now), WithLogger(quietLogger())}
	env.engine = NewEngine(env.store, cfg, append(base, opts...)...)
	return env
}

func (env *testEnv) slot(t *testing.T, capacity int, seats ...string) *Slot {
	t.Helper()
	starts := env.clock.Now().Add(24 * time.Hour)
	slot, err := env.engine.CreateSlot(context.Background(), NewSlotInput{
		ParentID:   uuid.New(),
		ParentType: ParentEvent,
		StartsAt:   starts,
		EndsAt:     starts.Add(2 * time.Hour),
		Capacity:   capacity,
		Seats:      seats,
	})
	require.NoError(t, err)
	return slot
}

func (env *testEnv) reserve(t *testing.T, slotID uuid.UUID, quantity int) *ReserveResult {
	t.Helper()
	res, err := env.engine.Reserve(context.Background(), ReserveRequest{
		UserID:   uuid.New(),
		SlotID:   slotID,
		Quantity: quantity,
	})
	require.NoError(t, err)
	return res
}

func (env *testEnv) booked(t *testing.T, slotID uuid.UUID) int {
	t.Helper()
	slot, err := env.store.GetSlot(context.Background(), slotID)
	require.NoError(t, err)
	return slot.Booked()
}

// confirmedSum adds up CONFIRMED booking quantities on a slot across users.
func (env *testEnv) confirmedSum(slotID uuid.UUID) int {
	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	sum := 0
	for _, b := range env.store.slots[slotID].bookings {
		if b.Status == BookingConfirmed {
			sum += b.Quantity
		}
	}
	return sum
}
